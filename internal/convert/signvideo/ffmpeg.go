package signvideo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpeg joins MP4 clips with the concat demuxer, copying streams without
// re-encoding. Clips must share codec parameters.
type FFmpeg struct {
	Bin     string // ffmpeg binary; empty means "ffmpeg" on PATH
	TempDir string // parent for scratch directories; empty means os.TempDir
}

// Concatenate writes clips to a scratch directory, runs ffmpeg and returns
// the joined video.
func (f *FFmpeg) Concatenate(ctx context.Context, clips [][]byte) ([]byte, error) {
	if len(clips) == 0 {
		return nil, errors.New("no clips to concatenate")
	}

	dir, err := os.MkdirTemp(f.TempDir, "signs-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	listPath, err := writeClips(dir, clips)
	if err != nil {
		return nil, err
	}
	outPath := filepath.Join(dir, "output.mp4")

	cmd := ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(outPath, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().
		Compile()
	if f.Bin != "" {
		path, err := exec.LookPath(f.Bin)
		if err != nil {
			return nil, fmt.Errorf("find ffmpeg: %w", err)
		}
		cmd.Path = path
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("ffmpeg concat: %w: %s", err, lastLine(stderr.String()))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return out, nil
}

// writeClips stores each clip and the concat list naming them in order.
func writeClips(dir string, clips [][]byte) (string, error) {
	var list strings.Builder
	for i, clip := range clips {
		name := fmt.Sprintf("clip%03d.mp4", i)
		if err := os.WriteFile(filepath.Join(dir, name), clip, 0o600); err != nil {
			return "", fmt.Errorf("write clip %d: %w", i, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", name)
	}
	listPath := filepath.Join(dir, "concat_list.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o600); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return listPath, nil
}

// run starts cmd and kills it if ctx ends first.
func run(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
