package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Superstone-han/supertonic-v2/internal/tensor"
	"github.com/Superstone-han/supertonic-v2/internal/textproc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Superstone-han/supertonic-v2/inference"

// DefaultSteps is the refinement step count used when a request asks for 0.
const DefaultSteps = 5

// Style is the per-voice conditioning passed to the stages. Tensors have a
// leading batch axis of 1 or of the batch size.
type Style struct {
	Duration tensor.Tensor[float32]
	Encoding tensor.Tensor[float32]
}

// Output is the result of one batched inference.
type Output struct {
	Waveform     []float32
	Durations    []float32
	LatentLength int
}

// Orchestrator runs duration prediction, text encoding, latent refinement
// and vocoding for one batch at a time. It holds no per-request state and
// may be shared.
type Orchestrator struct {
	stages       Stages
	sampler      *LatentSampler
	defaultSteps int
	tracer       trace.Tracer
	latency      metric.Float64Histogram
}

func NewOrchestrator(stages Stages, sampler *LatentSampler, defaultSteps int) (*Orchestrator, error) {
	if err := stages.validate(); err != nil {
		return nil, err
	}
	if sampler == nil {
		return nil, errors.New("latent sampler is required")
	}
	if defaultSteps <= 0 {
		defaultSteps = DefaultSteps
	}
	o := &Orchestrator{
		stages:       stages,
		sampler:      sampler,
		defaultSteps: defaultSteps,
		tracer:       otel.Tracer(instrumentationName),
	}
	hist, err := otel.Meter(instrumentationName).Float64Histogram("supertonic.stage.duration",
		metric.WithDescription("Model stage latency"),
		metric.WithUnit("s"))
	if err == nil {
		o.latency = hist
	}
	return o, nil
}

// ModelConfig returns the acoustic constants the orchestrator samples with.
func (o *Orchestrator) ModelConfig() ModelConfig { return o.sampler.cfg }

// Infer synthesizes every item of batch. steps of 0 selects the default;
// speed scales the predicted durations and must be positive.
func (o *Orchestrator) Infer(ctx context.Context, batch textproc.Batch, style Style, steps int, speed float64) (Output, error) {
	if batch.Size() == 0 {
		return Output{}, invalidInput("empty batch")
	}
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed <= 0 {
		return Output{}, invalidInput("speed must be a positive finite number, got %v", speed)
	}
	if steps < 0 {
		return Output{}, invalidInput("steps must not be negative, got %d", steps)
	}
	if steps == 0 {
		steps = o.defaultSteps
	}
	styleDP, err := broadcastStyle(style.Duration, batch.Size())
	if err != nil {
		return Output{}, err
	}
	styleTTL, err := broadcastStyle(style.Encoding, batch.Size())
	if err != nil {
		return Output{}, err
	}

	ctx, span := o.tracer.Start(ctx, "inference.infer", trace.WithAttributes(
		attribute.Int("batch.size", batch.Size()),
		attribute.Int("batch.width", batch.Width()),
		attribute.Int("steps", steps),
		attribute.Float64("speed", speed),
	))
	defer span.End()

	out, err := o.infer(ctx, batch, styleDP, styleTTL, steps, speed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Output{}, err
	}
	span.SetAttributes(attribute.Int("latent.length", out.LatentLength))
	return out, nil
}

func (o *Orchestrator) infer(ctx context.Context, batch textproc.Batch, styleDP, styleTTL tensor.Tensor[float32], steps int, speed float64) (Output, error) {
	var durations []float32
	err := o.timeStage(ctx, StageDurationPredictor, func(ctx context.Context) error {
		var err error
		durations, err = o.stages.Duration.PredictDuration(ctx, batch.IDs, styleDP, batch.Mask)
		return err
	})
	if err != nil {
		return Output{}, err
	}
	if len(durations) != batch.Size() {
		return Output{}, &StageError{Stage: StageDurationPredictor, Err: fmt.Errorf("got %d durations for %d items", len(durations), batch.Size())}
	}
	scaled := make([]float32, len(durations))
	for i, d := range durations {
		if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) || d < 0 {
			return Output{}, &StageError{Stage: StageDurationPredictor, Err: fmt.Errorf("invalid duration %v for item %d", d, i)}
		}
		scaled[i] = float32(float64(d) / speed)
	}

	var embedding tensor.Tensor[float32]
	err = o.timeStage(ctx, StageTextEncoder, func(ctx context.Context) error {
		var err error
		embedding, err = o.stages.Encoder.EncodeText(ctx, batch.IDs, styleTTL, batch.Mask)
		return err
	})
	if err != nil {
		return Output{}, err
	}

	latent, latentMask := o.sampler.Sample(scaled)
	refined, err := o.Refine(ctx, RefineInput{
		Latent:     latent,
		Embedding:  embedding,
		Style:      styleTTL,
		LatentMask: latentMask,
		TextMask:   batch.Mask,
		TotalSteps: steps,
	})
	if err != nil {
		return Output{}, err
	}

	var waveform []float32
	err = o.timeStage(ctx, StageVocoder, func(ctx context.Context) error {
		var err error
		waveform, err = o.stages.Vocoder.Vocode(ctx, refined)
		return err
	})
	if err != nil {
		return Output{}, err
	}
	latentLength := latent.Dim(2)
	if latentLength > 0 && len(waveform) == 0 {
		return Output{}, &StageError{Stage: StageVocoder, Err: errors.New("empty waveform")}
	}
	return Output{Waveform: waveform, Durations: scaled, LatentLength: latentLength}, nil
}

// Refine folds the vector estimator over in.Latent for in.TotalSteps
// steps. Step i receives the output of step i-1; every output must keep the
// input latent's shape.
func (o *Orchestrator) Refine(ctx context.Context, in RefineInput) (tensor.Tensor[float32], error) {
	shape := in.Latent.Shape
	current := in.Latent
	for step := 0; step < in.TotalSteps; step++ {
		if err := ctx.Err(); err != nil {
			return tensor.Tensor[float32]{}, err
		}
		stepIn := in
		stepIn.Latent = current
		stepIn.Step = step
		var next tensor.Tensor[float32]
		err := o.timeStage(ctx, StageVectorEstimator, func(ctx context.Context) error {
			var err error
			next, err = o.stages.Estimator.Estimate(ctx, stepIn)
			return err
		})
		if err != nil {
			return tensor.Tensor[float32]{}, err
		}
		if !next.SameShape(shape) || next.Len() != tensor.Volume(shape) {
			return tensor.Tensor[float32]{}, &StageError{Stage: StageVectorEstimator, Err: fmt.Errorf("step %d returned shape %v, want %v", step, next.Shape, shape)}
		}
		current = next
	}
	return current, nil
}

func (o *Orchestrator) timeStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "inference."+stage)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	if o.latency != nil {
		o.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stageError(stage, err)
	}
	return nil
}

// broadcastStyle tiles a style tensor with a leading axis of 1 to the batch
// size. Tensors already sized for the batch are returned unchanged.
func broadcastStyle(t tensor.Tensor[float32], batch int) (tensor.Tensor[float32], error) {
	if len(t.Shape) == 0 || t.Len() == 0 {
		return t, invalidInput("style tensor is empty")
	}
	if t.Shape[0] == batch {
		return t, nil
	}
	if t.Shape[0] != 1 {
		return t, invalidInput("style batch %d does not match batch size %d", t.Shape[0], batch)
	}
	shape := append([]int{batch}, t.Shape[1:]...)
	out := tensor.New[float32](shape...)
	for b := 0; b < batch; b++ {
		copy(out.Data[b*t.Len():], t.Data)
	}
	return out, nil
}
