package signvideo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tamkeen-edu/tamkeen/internal/convert"
)

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()
	if tbl.Len() != 10 {
		t.Fatalf("default table has %d words, want 10", tbl.Len())
	}
	for _, w := range []string{"مرحبا", "شكرا", "لا"} {
		if _, ok := tbl.Lookup(w); !ok {
			t.Errorf("Lookup(%q) missing", w)
		}
	}
	if _, ok := tbl.Lookup("xyz"); ok {
		t.Error("Lookup(xyz) should miss")
	}
}

func TestTableReplace(t *testing.T) {
	tbl := DefaultTable()
	tbl.Replace(map[string]string{"Hello": "a.mp4", " ": "b.mp4", "empty": " "})
	if tbl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tbl.Len())
	}
	if _, ok := tbl.Lookup("hello"); ok {
		t.Error("lookup must be case-sensitive")
	}
	if ref, ok := tbl.Lookup("Hello"); !ok || ref != "a.mp4" {
		t.Errorf("Lookup(Hello) = %q, %v", ref, ok)
	}
}

func TestTableEntriesSorted(t *testing.T) {
	tbl := NewTable(map[string]string{"b": "2", "a": "1", "c": "3"})
	got := tbl.Entries()
	if len(got) != 3 || got[0].Word != "a" || got[2].Word != "c" || got[1].Ref != "2" {
		t.Errorf("unexpected entries %+v", got)
	}
}

func TestLibraryWithoutSource(t *testing.T) {
	lib := &Library{Table: DefaultTable()}
	var store convert.AssetStore = lib
	if _, err := store.Fetch(context.Background(), "videos/hello.mp4"); !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos/hello.mp4" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("clip-bytes"))
	}))
	defer srv.Close()

	src := &HTTPSource{BaseURL: srv.URL + "/", Client: srv.Client()}

	data, err := src.Fetch(context.Background(), "videos/hello.mp4")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "clip-bytes" {
		t.Errorf("Fetch = %q", data)
	}

	if _, err := src.Fetch(context.Background(), "videos/missing.mp4"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestHTTPSourceResolve(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"https://cdn.example/", "videos/a.mp4", "https://cdn.example/videos/a.mp4"},
		{"https://cdn.example", "/videos/a.mp4", "https://cdn.example/videos/a.mp4"},
		{"https://cdn.example", "https://other.example/a.mp4", "https://other.example/a.mp4"},
		{"", "videos/a.mp4", "videos/a.mp4"},
	}
	for _, tt := range tests {
		s := &HTTPSource{BaseURL: tt.base}
		if got := s.resolve(convert.AssetRef(tt.ref)); got != tt.want {
			t.Errorf("resolve(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}

func TestWriteClips(t *testing.T) {
	dir := t.TempDir()
	listPath, err := writeClips(dir, [][]byte{[]byte("one"), []byte("two")})
	if err != nil {
		t.Fatalf("writeClips: %v", err)
	}
	list, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "file 'clip000.mp4'\nfile 'clip001.mp4'\n"
	if string(list) != want {
		t.Errorf("concat list = %q, want %q", list, want)
	}
	second, err := os.ReadFile(filepath.Join(dir, "clip001.mp4"))
	if err != nil || string(second) != "two" {
		t.Errorf("clip001 = %q, %v", second, err)
	}
}

func TestConcatenateNoClips(t *testing.T) {
	f := &FFmpeg{}
	if _, err := f.Concatenate(context.Background(), nil); err == nil {
		t.Error("expected error for empty clip list")
	}
}

func TestBucketURLExpiry(t *testing.T) {
	tests := []struct {
		name   string
		expiry time.Duration
		want   time.Duration
	}{
		{"default", 0, convert.DefaultURLExpiry},
		{"configured", 2 * time.Hour, 2 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBucket(BucketConfig{Endpoint: "localhost:9000", Bucket: "clips", URLExpiry: tt.expiry})
			if err != nil {
				t.Fatal(err)
			}
			if b.URLExpiry() != tt.want {
				t.Errorf("URLExpiry = %v, want %v", b.URLExpiry(), tt.want)
			}
			if ttl := convert.CacheTTLFor(b.URLExpiry()); ttl >= b.URLExpiry() {
				t.Errorf("cache TTL %v outlives URL expiry %v", ttl, b.URLExpiry())
			}
		})
	}
}

func TestLastLine(t *testing.T) {
	got := lastLine("banner\nconfig\nconcat_list.txt: Invalid data found\n")
	if !strings.HasPrefix(got, "concat_list.txt") {
		t.Errorf("lastLine = %q", got)
	}
}
