package inference

import (
	"math"
	"testing"
)

func smallConfig() ModelConfig {
	return ModelConfig{SampleRate: 1000, BaseChunkSize: 10, ChunkCompressFactor: 1, LatentDim: 10}
}

func TestSampleIsStandardNormal(t *testing.T) {
	s := NewLatentSampler(smallConfig(), 42)
	latent, _ := s.Sample([]float32{10})
	if latent.Len() != 10000 {
		t.Fatalf("expected 10000 draws, got %d", latent.Len())
	}
	var sum, sumSq float64
	for _, v := range latent.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			t.Fatalf("non-finite draw %v", v)
		}
		sum += f
		sumSq += f * f
	}
	n := float64(latent.Len())
	mean := sum / n
	variance := sumSq/n - mean*mean
	if math.Abs(mean) > 0.05 {
		t.Fatalf("mean %f too far from 0", mean)
	}
	if variance < 0.9 || variance > 1.1 {
		t.Fatalf("variance %f too far from 1", variance)
	}
}

func TestSampleMasksBeyondItemLength(t *testing.T) {
	s := NewLatentSampler(smallConfig(), 7)
	latent, mask := s.Sample([]float32{1.0, 0.5})
	if got := latent.Shape; len(got) != 3 || got[0] != 2 || got[1] != 10 || got[2] != 100 {
		t.Fatalf("unexpected latent shape %v", got)
	}
	if mask.Dim(2) != 100 {
		t.Fatalf("unexpected mask width %d", mask.Dim(2))
	}
	for c := 0; c < 10; c++ {
		for i := 50; i < 100; i++ {
			if v := latent.At(1, c, i); v != 0 {
				t.Fatalf("expected zero beyond length at c=%d t=%d, got %v", c, i, v)
			}
		}
	}
	if mask.At(1, 0, 49) != 1 || mask.At(1, 0, 50) != 0 || mask.At(0, 0, 99) != 1 {
		t.Fatalf("mask does not follow item lengths")
	}
}

func TestSampleSeedIsDeterministic(t *testing.T) {
	a, _ := NewLatentSampler(smallConfig(), 9).Sample([]float32{0.2})
	b, _ := NewLatentSampler(smallConfig(), 9).Sample([]float32{0.2})
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("draw %d differs: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
}

func TestLatentLength(t *testing.T) {
	cfg := DefaultModelConfig()
	cases := []struct {
		seconds float64
		want    int
	}{
		{0, 0},
		{-1, 0},
		{math.NaN(), 0},
		{1, 8}, // 24000 / 3072 = 7.8
		{0.125, 1},
	}
	for _, tc := range cases {
		if got := cfg.LatentLength(tc.seconds); got != tc.want {
			t.Fatalf("LatentLength(%v) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
}
