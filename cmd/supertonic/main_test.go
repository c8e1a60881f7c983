package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Superstone-han/supertonic-v2/internal/audio"
)

func TestParseSay(t *testing.T) {
	opts, err := parseSay([]string{"-lang", "ko", "-steps", "8", "hello", "there"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.text != "hello there" || opts.lang != "ko" || opts.steps != 8 || opts.speed != 1.0 || opts.out != "out.wav" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := parseSay([]string{"-lang", "en"}); err == nil {
		t.Fatal("expected error without text")
	}
}

func TestBatchPath(t *testing.T) {
	if got := batchPath("speech.wav", 0); got != "speech_1.wav" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := batchPath("speech", 2); got != "speech_3.wav" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestInspectReportsWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(make([]float32, 2400), 24000), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	var out bytes.Buffer
	if err := runInspect([]string{path}, &out); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out.String(), "24000 Hz, 1 ch, 16 bit, 2400 samples, 0.100s") {
		t.Fatalf("unexpected inspect output %q", out.String())
	}
	if err := runInspect(nil, &out); err == nil {
		t.Fatal("expected error without files")
	}
}

func TestVoicesListsCatalog(t *testing.T) {
	var out bytes.Buffer
	if err := runVoices(&out); err != nil {
		t.Fatalf("voices: %v", err)
	}
	text := out.String()
	for _, want := range []string{"M1", "F5", "languages: en, ko, es, pt, fr"} {
		if !strings.Contains(text, want) {
			t.Fatalf("voices output missing %q:\n%s", want, text)
		}
	}
}
