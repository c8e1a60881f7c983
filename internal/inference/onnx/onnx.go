//go:build onnx

package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Superstone-han/supertonic-v2/internal/inference"
	"github.com/Superstone-han/supertonic-v2/internal/tensor"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("initialize onnx runtime from %s: %w", libPath, err)
		}
	})
	return envErr
}

// Provider opens one ONNX Runtime session per stage.
type Provider struct {
	opts    Options
	mu      sync.Mutex
	options *ort.SessionOptions
	opened  []*ort.DynamicAdvancedSession
}

func NewProvider(opts Options) (*Provider, error) {
	if err := initEnvironment(opts.libraryPath()); err != nil {
		return nil, err
	}
	p := &Provider{opts: opts}
	if opts.IntraOpThreads > 0 {
		so, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("create session options: %w", err)
		}
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
		p.options = so
	}
	return p, nil
}

func (p *Provider) open(file string, inputs, outputs []string) (*session, error) {
	s, err := ort.NewDynamicAdvancedSession(p.opts.path(file), inputs, outputs, p.options)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", file, err)
	}
	p.mu.Lock()
	p.opened = append(p.opened, s)
	p.mu.Unlock()
	return &session{s: s}, nil
}

func (p *Provider) DurationPredictor(context.Context) (inference.DurationPredictor, error) {
	s, err := p.open(DurationPredictorFile, []string{"text_ids", "style_dp", "text_mask"}, []string{"duration"})
	if err != nil {
		return nil, err
	}
	return inference.DurationPredictorFunc(func(ctx context.Context, ids tensor.Tensor[int64], style, mask tensor.Tensor[float32]) ([]float32, error) {
		out, err := s.run(ctx, newInputs().int64s(ids).float32s(style).float32s(mask))
		if err != nil {
			return nil, err
		}
		return out.Data, nil
	}), nil
}

func (p *Provider) TextEncoder(context.Context) (inference.TextEncoder, error) {
	s, err := p.open(TextEncoderFile, []string{"text_ids", "style_ttl", "text_mask"}, []string{"text_emb"})
	if err != nil {
		return nil, err
	}
	return inference.TextEncoderFunc(func(ctx context.Context, ids tensor.Tensor[int64], style, mask tensor.Tensor[float32]) (tensor.Tensor[float32], error) {
		return s.run(ctx, newInputs().int64s(ids).float32s(style).float32s(mask))
	}), nil
}

func (p *Provider) VectorEstimator(context.Context) (inference.VectorEstimator, error) {
	s, err := p.open(VectorEstimatorFile,
		[]string{"noisy_latent", "text_emb", "style_ttl", "latent_mask", "text_mask", "current_step", "total_step"},
		[]string{"denoised_latent"})
	if err != nil {
		return nil, err
	}
	return inference.VectorEstimatorFunc(func(ctx context.Context, in inference.RefineInput) (tensor.Tensor[float32], error) {
		batch := in.Latent.Dim(0)
		current := tensor.New[float32](batch)
		total := tensor.New[float32](batch)
		for b := 0; b < batch; b++ {
			current.Data[b] = float32(in.Step)
			total.Data[b] = float32(in.TotalSteps)
		}
		return s.run(ctx, newInputs().
			float32s(in.Latent).
			float32s(in.Embedding).
			float32s(in.Style).
			float32s(in.LatentMask).
			float32s(in.TextMask).
			float32s(current).
			float32s(total))
	}), nil
}

func (p *Provider) Vocoder(context.Context) (inference.Vocoder, error) {
	s, err := p.open(VocoderFile, []string{"latent"}, []string{"wav_tts"})
	if err != nil {
		return nil, err
	}
	return inference.VocoderFunc(func(ctx context.Context, latent tensor.Tensor[float32]) ([]float32, error) {
		out, err := s.run(ctx, newInputs().float32s(latent))
		if err != nil {
			return nil, err
		}
		return out.Data, nil
	}), nil
}

// Close releases every session opened by the provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, s := range p.opened {
		if err := s.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	p.opened = nil
	if p.options != nil {
		if err := p.options.Destroy(); err != nil {
			errs = append(errs, err)
		}
		p.options = nil
	}
	return errors.Join(errs...)
}

// session serializes runs on one graph.
type session struct {
	mu sync.Mutex
	s  *ort.DynamicAdvancedSession
}

func (s *session) run(ctx context.Context, in *inputs) (tensor.Tensor[float32], error) {
	defer in.destroy()
	if in.err != nil {
		return tensor.Tensor[float32]{}, in.err
	}
	if err := ctx.Err(); err != nil {
		return tensor.Tensor[float32]{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	outputs := []ort.Value{nil}
	if err := s.s.Run(in.values, outputs); err != nil {
		return tensor.Tensor[float32]{}, err
	}
	defer outputs[0].Destroy()
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return tensor.Tensor[float32]{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	shape := make([]int, len(out.GetShape()))
	for i, d := range out.GetShape() {
		shape[i] = int(d)
	}
	return tensor.FromData(append([]float32(nil), out.GetData()...), shape...)
}

// inputs accumulates runtime tensors, keeping the first creation error.
type inputs struct {
	values []ort.Value
	err    error
}

func newInputs() *inputs { return &inputs{} }

func (in *inputs) int64s(t tensor.Tensor[int64]) *inputs {
	if in.err != nil {
		return in
	}
	v, err := ort.NewTensor(ort.Shape(t.Shape64()), t.Data)
	if err != nil {
		in.err = err
		return in
	}
	in.values = append(in.values, v)
	return in
}

func (in *inputs) float32s(t tensor.Tensor[float32]) *inputs {
	if in.err != nil {
		return in
	}
	v, err := ort.NewTensor(ort.Shape(t.Shape64()), t.Data)
	if err != nil {
		in.err = err
		return in
	}
	in.values = append(in.values, v)
	return in
}

func (in *inputs) destroy() {
	for _, v := range in.values {
		_ = v.Destroy()
	}
}
