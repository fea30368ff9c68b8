package signvideo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tamkeen-edu/tamkeen/internal/convert"
)

const maxClipBytes = 64 << 20

// HTTPSource downloads clips. Relative refs are resolved against BaseURL.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// Fetch GETs the clip and fails on any non-200 response.
func (s *HTTPSource) Fetch(ctx context.Context, ref convert.AssetRef) ([]byte, error) {
	url := s.resolve(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(data) > maxClipBytes {
		return nil, fmt.Errorf("fetch %s: clip larger than %d bytes", url, maxClipBytes)
	}
	return data, nil
}

func (s *HTTPSource) resolve(ref convert.AssetRef) string {
	r := string(ref)
	if strings.HasPrefix(r, "http://") || strings.HasPrefix(r, "https://") || s.BaseURL == "" {
		return r
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(r, "/")
}
