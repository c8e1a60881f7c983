package inference

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Superstone-han/supertonic-v2/internal/tensor"
)

const minUniform = 1e-10

// LatentSampler draws the initial noisy latent for a batch.
type LatentSampler struct {
	cfg ModelConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLatentSampler returns a sampler seeded with seed, or from the clock when
// seed is zero.
func NewLatentSampler(cfg ModelConfig, seed uint64) *LatentSampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &LatentSampler{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample returns a [B, C, T] latent of standard normal noise and its
// [B, 1, T] mask. T covers the longest duration; positions beyond an item's
// own length are zero in both tensors.
func (s *LatentSampler) Sample(durations []float32) (tensor.Tensor[float32], tensor.Tensor[float32]) {
	lengths := make([]int, len(durations))
	for i, d := range durations {
		lengths[i] = s.cfg.LatentLength(float64(d))
	}
	width := tensor.MaxLength(lengths)
	channels := s.cfg.LatentChannels()

	latent := tensor.New[float32](len(durations), channels, width)
	mask := tensor.LengthToMask(lengths, width)

	s.mu.Lock()
	defer s.mu.Unlock()
	for b, n := range lengths {
		for c := 0; c < channels; c++ {
			row := latent.Data[(b*channels+c)*width : (b*channels+c+1)*width]
			for t := 0; t < n; t++ {
				row[t] = s.gaussian()
			}
		}
	}
	return latent, mask
}

// gaussian draws one standard normal value with the Box–Muller transform.
func (s *LatentSampler) gaussian() float32 {
	u1 := max(s.rng.Float64(), minUniform)
	u2 := s.rng.Float64()
	return float32(math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2))
}
