package inference

import (
	"context"
	"math"

	"github.com/Superstone-han/supertonic-v2/internal/tensor"
)

// StubProvider serves deterministic stages that exercise the whole pipeline
// without model assets. Durations grow with token count and the vocoder
// emits one chunk of samples per latent frame.
type StubProvider struct {
	cfg             ModelConfig
	secondsPerToken float32
}

func NewStubProvider(cfg ModelConfig) *StubProvider {
	return &StubProvider{cfg: cfg, secondsPerToken: 0.06}
}

func (p *StubProvider) DurationPredictor(context.Context) (DurationPredictor, error) {
	return DurationPredictorFunc(func(ctx context.Context, ids tensor.Tensor[int64], _ tensor.Tensor[float32], mask tensor.Tensor[float32]) ([]float32, error) {
		out := make([]float32, ids.Dim(0))
		for b := range out {
			out[b] = float32(tensor.ValidLength(mask, b)) * p.secondsPerToken
		}
		return out, nil
	}), nil
}

func (p *StubProvider) TextEncoder(context.Context) (TextEncoder, error) {
	return TextEncoderFunc(func(ctx context.Context, ids tensor.Tensor[int64], _ tensor.Tensor[float32], mask tensor.Tensor[float32]) (tensor.Tensor[float32], error) {
		emb := tensor.New[float32](ids.Dim(0), 1, ids.Dim(1))
		for i, id := range ids.Data {
			emb.Data[i] = float32(id) * mask.Data[i]
		}
		return emb, nil
	}), nil
}

func (p *StubProvider) VectorEstimator(context.Context) (VectorEstimator, error) {
	return VectorEstimatorFunc(func(ctx context.Context, in RefineInput) (tensor.Tensor[float32], error) {
		out := in.Latent.Clone()
		batch, channels, width := out.Dim(0), out.Dim(1), out.Dim(2)
		for b := 0; b < batch; b++ {
			for c := 0; c < channels; c++ {
				for t := 0; t < width; t++ {
					i := (b*channels+c)*width + t
					out.Data[i] *= 0.5 * in.LatentMask.Data[b*width+t]
				}
			}
		}
		return out, nil
	}), nil
}

func (p *StubProvider) Vocoder(context.Context) (Vocoder, error) {
	chunk := p.cfg.ChunkSize()
	return VocoderFunc(func(ctx context.Context, latent tensor.Tensor[float32]) ([]float32, error) {
		batch, channels, width := latent.Dim(0), latent.Dim(1), latent.Dim(2)
		wave := make([]float32, batch*width*chunk)
		for b := 0; b < batch; b++ {
			for t := 0; t < width; t++ {
				var sum float64
				for c := 0; c < channels; c++ {
					sum += float64(latent.Data[(b*channels+c)*width+t])
				}
				level := 0.1 * math.Tanh(sum/float64(max(channels, 1)))
				frame := wave[(b*width+t)*chunk : (b*width+t+1)*chunk]
				for i := range frame {
					frame[i] = float32(level * math.Sin(2*math.Pi*220*float64(t*chunk+i)/float64(p.cfg.SampleRate)))
				}
			}
		}
		return wave, nil
	}), nil
}

func (p *StubProvider) Close() error { return nil }
