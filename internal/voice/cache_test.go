package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Superstone-han/supertonic-v2/internal/inference"
)

const sampleStyle = `{
  "style_ttl": {"data": [[[0.1, 0.2], [0.3, 0.4], [0.5, 0.6]]], "dims": [1, 3, 2], "type": "float32"},
  "style_dp": {"data": [[[1, 2]]], "dims": [1, 1, 2], "type": "float32"}
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseStyle(t *testing.T) {
	style, err := ParseStyle("M1", []byte(sampleStyle))
	if err != nil {
		t.Fatalf("ParseStyle: %v", err)
	}
	if !style.Encoding.SameShape([]int{1, 3, 2}) || style.Encoding.At(0, 2, 1) != 0.6 {
		t.Fatalf("unexpected encoding %+v", style.Encoding)
	}
	if !style.Duration.SameShape([]int{1, 1, 2}) || style.Duration.Data[1] != 2 {
		t.Fatalf("unexpected duration %+v", style.Duration)
	}
}

func TestParseStyleRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"missing dp":     `{"style_ttl": {"data": [1], "dims": [1]}}`,
		"dims mismatch":  `{"style_ttl": {"data": [1, 2], "dims": [1, 3]}, "style_dp": {"data": [1], "dims": [1]}}`,
		"bad type":       `{"style_ttl": {"data": [1], "dims": [1], "type": "int8"}, "style_dp": {"data": [1], "dims": [1]}}`,
		"non numeric":    `{"style_ttl": {"data": ["x"], "dims": [1]}, "style_dp": {"data": [1], "dims": [1]}}`,
		"zero dimension": `{"style_ttl": {"data": [], "dims": [0]}, "style_dp": {"data": [1], "dims": [1]}}`,
	}
	for name, doc := range cases {
		_, err := ParseStyle("M1", []byte(doc))
		var ae *inference.AssetError
		if !errors.As(err, &ae) || ae.Asset != "voice_style/M1" {
			t.Fatalf("%s: expected AssetError, got %v", name, err)
		}
	}
}

func TestCacheLoadsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "M2.json"), []byte(sampleStyle), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cache := NewCache(NewFileProvider(dir), discardLogger())
	if _, err := cache.Get(context.Background(), "M2"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached style, got %d", cache.Len())
	}

	_, err := cache.Get(context.Background(), "F9")
	var ae *inference.AssetError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AssetError for missing voice, got %v", err)
	}
	if _, err := cache.Get(context.Background(), "../etc/passwd"); !errors.Is(err, inference.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for path-like id, got %v", err)
	}
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voice_styles/F1.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, sampleStyle)
	}))
	defer srv.Close()

	cache := NewCache(NewHTTPProvider(srv.URL+"/", 0), discardLogger())
	if _, err := cache.Get(context.Background(), "F1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := cache.Get(context.Background(), "F2"); err == nil {
		t.Fatal("expected error for missing remote voice")
	}
}

type blockingProvider struct {
	calls   atomic.Int32
	release chan struct{}
}

func (p *blockingProvider) Fetch(ctx context.Context, id string) ([]byte, error) {
	p.calls.Add(1)
	<-p.release
	return []byte(sampleStyle), nil
}

func TestCacheSingleFlight(t *testing.T) {
	provider := &blockingProvider{release: make(chan struct{})}
	cache := NewCache(provider, discardLogger())

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	started := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			_, err := cache.Get(context.Background(), "M5")
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		<-started
	}
	close(provider.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	// Late callers may miss the shared flight but then hit the cache.
	if n := provider.calls.Load(); n != 1 {
		t.Fatalf("expected a single provider load, got %d", n)
	}
}
