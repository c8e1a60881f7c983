package inference

import (
	"context"
	"errors"
)

var errMissingStage = errors.New("stage not provided")

// ModelProvider builds the stage implementations from model assets.
type ModelProvider interface {
	DurationPredictor(ctx context.Context) (DurationPredictor, error)
	TextEncoder(ctx context.Context) (TextEncoder, error)
	VectorEstimator(ctx context.Context) (VectorEstimator, error)
	Vocoder(ctx context.Context) (Vocoder, error)
	Close() error
}

// LoadStages asks the provider for every stage. Any failure is fatal to the
// caller and is reported as an *AssetError naming the stage.
func LoadStages(ctx context.Context, p ModelProvider) (Stages, error) {
	var (
		stages Stages
		err    error
	)
	if stages.Duration, err = p.DurationPredictor(ctx); err != nil {
		return Stages{}, assetError(StageDurationPredictor, err)
	}
	if stages.Encoder, err = p.TextEncoder(ctx); err != nil {
		return Stages{}, assetError(StageTextEncoder, err)
	}
	if stages.Estimator, err = p.VectorEstimator(ctx); err != nil {
		return Stages{}, assetError(StageVectorEstimator, err)
	}
	if stages.Vocoder, err = p.Vocoder(ctx); err != nil {
		return Stages{}, assetError(StageVocoder, err)
	}
	if err := stages.validate(); err != nil {
		return Stages{}, err
	}
	return stages, nil
}

func assetError(asset string, err error) error {
	var ae *AssetError
	if errors.As(err, &ae) {
		return err
	}
	return &AssetError{Asset: asset, Err: err}
}
