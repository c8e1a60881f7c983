package synth

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Superstone-han/supertonic-v2/internal/audio"
	"github.com/Superstone-han/supertonic-v2/internal/inference"
)

// ErrStopped is returned when a stop token fires before the result is ready.
var ErrStopped = errors.New("synthesis stopped")

// Request describes one utterance.
type Request struct {
	Text     string
	Language string
	Voice    string
	// Steps of 0 selects the orchestrator default.
	Steps int
	// Speed scales the speaking rate and must be positive; 1 is normal.
	Speed float64
	// OnProgress, when set, is called with (completed, total) after each chunk.
	OnProgress func(completed, total int)
}

// Result is an assembled utterance.
type Result struct {
	Samples    []float32
	Duration   float64
	SampleRate int
	Chunks     int
}

// WAV encodes the result as a WAV file.
func (r Result) WAV() []byte {
	return audio.EncodeWAV(r.Samples, r.SampleRate)
}

// StopToken is a cooperative cancellation flag shared between the caller and
// a running synthesis.
type StopToken struct {
	stopped atomic.Bool
}

func NewStopToken() *StopToken { return &StopToken{} }

// Stop marks the token. It is safe to call from any goroutine.
func (t *StopToken) Stop() {
	if t != nil {
		t.stopped.Store(true)
	}
}

// Stopped reports whether Stop has been called. A nil token never stops.
func (t *StopToken) Stopped() bool {
	return t != nil && t.stopped.Load()
}

// StyleSource resolves a voice id to its style.
type StyleSource interface {
	Get(ctx context.Context, id string) (inference.Style, error)
}
