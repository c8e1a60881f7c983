// Package inference drives the four model stages that turn an encoded text
// batch into a waveform.
package inference

import (
	"context"

	"github.com/Superstone-han/supertonic-v2/internal/tensor"
)

// Stage names, used for error tagging, spans and metrics.
const (
	StageDurationPredictor = "duration_predictor"
	StageTextEncoder       = "text_encoder"
	StageVectorEstimator   = "vector_estimator"
	StageVocoder           = "vocoder"
)

// DurationPredictor estimates the spoken length in seconds of every batch item.
type DurationPredictor interface {
	PredictDuration(ctx context.Context, ids tensor.Tensor[int64], style tensor.Tensor[float32], mask tensor.Tensor[float32]) ([]float32, error)
}

// TextEncoder produces the text embedding that conditions refinement.
type TextEncoder interface {
	EncodeText(ctx context.Context, ids tensor.Tensor[int64], style tensor.Tensor[float32], mask tensor.Tensor[float32]) (tensor.Tensor[float32], error)
}

// RefineInput is everything one refinement step sees.
type RefineInput struct {
	Latent     tensor.Tensor[float32]
	Embedding  tensor.Tensor[float32]
	Style      tensor.Tensor[float32]
	LatentMask tensor.Tensor[float32]
	TextMask   tensor.Tensor[float32]
	Step       int
	TotalSteps int
}

// VectorEstimator performs one refinement step and returns a latent of the
// same shape as its input.
type VectorEstimator interface {
	Estimate(ctx context.Context, in RefineInput) (tensor.Tensor[float32], error)
}

// Vocoder converts a refined latent into a flat waveform.
type Vocoder interface {
	Vocode(ctx context.Context, latent tensor.Tensor[float32]) ([]float32, error)
}

type DurationPredictorFunc func(ctx context.Context, ids tensor.Tensor[int64], style tensor.Tensor[float32], mask tensor.Tensor[float32]) ([]float32, error)

func (f DurationPredictorFunc) PredictDuration(ctx context.Context, ids tensor.Tensor[int64], style tensor.Tensor[float32], mask tensor.Tensor[float32]) ([]float32, error) {
	return f(ctx, ids, style, mask)
}

type TextEncoderFunc func(ctx context.Context, ids tensor.Tensor[int64], style tensor.Tensor[float32], mask tensor.Tensor[float32]) (tensor.Tensor[float32], error)

func (f TextEncoderFunc) EncodeText(ctx context.Context, ids tensor.Tensor[int64], style tensor.Tensor[float32], mask tensor.Tensor[float32]) (tensor.Tensor[float32], error) {
	return f(ctx, ids, style, mask)
}

type VectorEstimatorFunc func(ctx context.Context, in RefineInput) (tensor.Tensor[float32], error)

func (f VectorEstimatorFunc) Estimate(ctx context.Context, in RefineInput) (tensor.Tensor[float32], error) {
	return f(ctx, in)
}

type VocoderFunc func(ctx context.Context, latent tensor.Tensor[float32]) ([]float32, error)

func (f VocoderFunc) Vocode(ctx context.Context, latent tensor.Tensor[float32]) ([]float32, error) {
	return f(ctx, latent)
}

// Stages groups one implementation of every stage.
type Stages struct {
	Duration  DurationPredictor
	Encoder   TextEncoder
	Estimator VectorEstimator
	Vocoder   Vocoder
}

func (s Stages) validate() error {
	switch {
	case s.Duration == nil:
		return &AssetError{Asset: StageDurationPredictor, Err: errMissingStage}
	case s.Encoder == nil:
		return &AssetError{Asset: StageTextEncoder, Err: errMissingStage}
	case s.Estimator == nil:
		return &AssetError{Asset: StageVectorEstimator, Err: errMissingStage}
	case s.Vocoder == nil:
		return &AssetError{Asset: StageVocoder, Err: errMissingStage}
	}
	return nil
}
