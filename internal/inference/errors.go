package inference

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks requests rejected before any stage runs.
var ErrInvalidInput = errors.New("invalid input")

// StageError reports a failed model stage invocation. The request that
// triggered it is aborted.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AssetError reports a model or voice asset that could not be loaded or
// parsed.
type AssetError struct {
	Asset string
	Err   error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %s: %v", e.Asset, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

func stageError(stage string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
