//go:build !onnx

package onnx

import (
	"context"

	"github.com/Superstone-han/supertonic-v2/internal/inference"
)

// Provider is a placeholder that reports the backend is unavailable.
type Provider struct{}

func NewProvider(Options) (*Provider, error) { return nil, ErrNotCompiled }

func (*Provider) DurationPredictor(context.Context) (inference.DurationPredictor, error) {
	return nil, ErrNotCompiled
}

func (*Provider) TextEncoder(context.Context) (inference.TextEncoder, error) {
	return nil, ErrNotCompiled
}

func (*Provider) VectorEstimator(context.Context) (inference.VectorEstimator, error) {
	return nil, ErrNotCompiled
}

func (*Provider) Vocoder(context.Context) (inference.Vocoder, error) { return nil, ErrNotCompiled }

func (*Provider) Close() error { return nil }
