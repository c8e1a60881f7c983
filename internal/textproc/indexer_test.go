package textproc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncodePadsAndMasks(t *testing.T) {
	table := make([]int64, 68)
	table['A'], table['B'], table['C'] = 11, 12, 13
	ix := NewIndexer(table)
	batch := ix.Encode([]string{"ABC", "A", "Aé"})

	if batch.Size() != 3 || batch.Width() != 3 {
		t.Fatalf("unexpected batch dims %v", batch.IDs.Shape)
	}
	want := []int64{
		11, 12, 13,
		11, 0, 0,
		11, UnknownID, 0,
	}
	for i, v := range want {
		if batch.IDs.Data[i] != v {
			t.Fatalf("id %d: got %d want %d", i, batch.IDs.Data[i], v)
		}
	}
	wantMask := []float32{1, 1, 1, 1, 0, 0, 1, 1, 0}
	for i, v := range wantMask {
		if batch.Mask.Data[i] != v {
			t.Fatalf("mask %d: got %v want %v", i, batch.Mask.Data[i], v)
		}
	}
}

func TestLoadIndexer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unicode_indexer.json")
	if err := os.WriteFile(path, []byte(`[5, 6, 7]`), 0o644); err != nil {
		t.Fatal(err)
	}
	ix, err := LoadIndexer(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ix.ID(2) != 7 || ix.ID(3) != UnknownID {
		t.Fatalf("unexpected lookups")
	}
	if _, err := LoadIndexer(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
