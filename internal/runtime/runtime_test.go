package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Superstone-han/supertonic-v2/internal/audio"
	"github.com/Superstone-han/supertonic-v2/internal/config"
	"github.com/Superstone-han/supertonic-v2/internal/eventstore"
)

const testStyle = `{
  "style_ttl": {"data": [[[0.1, 0.2], [0.3, 0.4]]], "dims": [1, 2, 2], "type": "float32"},
  "style_dp": {"data": [[[1, 2]]], "dims": [1, 1, 2], "type": "float32"}
}`

func newTestRuntime(t *testing.T, mutate func(*config.Config)) (*Runtime, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	voices := filepath.Join(dir, "voices")
	if err := os.MkdirAll(voices, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(voices, "M3.json"), []byte(testStyle), 0o644); err != nil {
		t.Fatalf("write style: %v", err)
	}

	cfg := config.Default()
	cfg.EventStore.Path = filepath.Join(dir, "events.db")
	cfg.Voices.Directory = voices
	cfg.Voices.Preload = []string{"M3"}
	cfg.Bus.Port = -1
	if mutate != nil {
		mutate(&cfg)
	}

	rt := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	if err := rt.wire(ctx); err != nil {
		cancel()
		rt.closeComponents()
		t.Fatalf("wire runtime: %v", err)
	}
	rt.ready.Store(true)
	srv := httptest.NewServer(rt.routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		rt.closeComponents()
	})
	return rt, srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSynthesizeReturnsWAV(t *testing.T) {
	rt, srv := newTestRuntime(t, nil)

	resp := postJSON(t, srv.URL+"/v1/synthesize", `{"text": "Hello world.", "language": "en-US"}`)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	clip, err := audio.DecodeWAVBytes(data)
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if clip.SampleRate != 24000 || clip.Channels != 1 || len(clip.Samples) == 0 {
		t.Fatalf("unexpected clip: rate %d, channels %d, %d samples", clip.SampleRate, clip.Channels, len(clip.Samples))
	}

	id := resp.Header.Get("X-Utterance-Id")
	u, err := rt.store.GetUtterance(context.Background(), id)
	if err != nil {
		t.Fatalf("get utterance: %v", err)
	}
	if u.Status != eventstore.StatusCompleted || u.Source != "http" || u.Language != "en" || u.Duration <= 0 {
		t.Fatalf("unexpected utterance record %+v", u)
	}
}

func TestSynthesizeRejectsBadRequests(t *testing.T) {
	_, srv := newTestRuntime(t, func(cfg *config.Config) {
		cfg.HTTP.MaxTextLength = 20
		cfg.Control.Enabled = false
	})

	cases := map[string]struct {
		body   string
		status int
	}{
		"malformed json": {`{"text": `, http.StatusBadRequest},
		"empty text":     {`{"text": "  "}`, http.StatusBadRequest},
		"too long":       {`{"text": "This sentence is far longer than twenty characters."}`, http.StatusRequestEntityTooLarge},
		"negative speed": {`{"text": "Hi.", "speed": -1}`, http.StatusBadRequest},
		"zero speed":     {`{"text": "Hi.", "speed": 0}`, http.StatusBadRequest},
		"negative steps": {`{"text": "Hi.", "steps": -2}`, http.StatusBadRequest},
		"unknown voice":  {`{"text": "Hi.", "voice": "F5"}`, http.StatusNotFound},
		"bad voice id":   {`{"text": "Hi.", "voice": "../etc"}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/synthesize", tc.body)
			if resp.StatusCode != tc.status {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("expected %d, got %d: %s", tc.status, resp.StatusCode, body)
			}
		})
	}
}

func TestVoicesAndProbes(t *testing.T) {
	_, srv := newTestRuntime(t, nil)

	resp, err := http.Get(srv.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("get voices: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		Voices []voiceResponse `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode voices: %v", err)
	}
	if len(payload.Voices) != 10 {
		t.Fatalf("expected 10 voices, got %d", len(payload.Voices))
	}
	defaults := 0
	for _, v := range payload.Voices {
		if v.Default {
			defaults++
			if v.ID != "M3" {
				t.Fatalf("unexpected default voice %s", v.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default voice, got %d", defaults)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s returned %d", path, resp.StatusCode)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
