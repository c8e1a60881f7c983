// Package synth assembles utterances from independently synthesized chunks.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Superstone-han/supertonic-v2/internal/inference"
	"github.com/Superstone-han/supertonic-v2/internal/textproc"
	"github.com/Superstone-han/supertonic-v2/internal/voice"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Superstone-han/supertonic-v2/synth"

// SilenceSeconds separates consecutive chunks.
const SilenceSeconds = 0.3

// Engine turns text into audio: chunking, normalization, encoding,
// inference and assembly. It is safe for concurrent use; each call owns its
// own state.
type Engine struct {
	orch         *inference.Orchestrator
	indexer      *textproc.Indexer
	styles       StyleSource
	cfg          inference.ModelConfig
	defaultVoice string
	defaultLang  string
	log          *slog.Logger
	tracer       trace.Tracer
	chunks       metric.Int64Counter
	seconds      metric.Float64Counter
}

// Option adjusts an Engine at construction.
type Option func(*Engine)

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.defaultVoice = id
		}
	}
}

// WithDefaultLanguage sets the language used when a request names none.
func WithDefaultLanguage(lang string) Option {
	return func(e *Engine) {
		if lang != "" {
			e.defaultLang = lang
		}
	}
}

func NewEngine(orch *inference.Orchestrator, indexer *textproc.Indexer, styles StyleSource, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		orch:         orch,
		indexer:      indexer,
		styles:       styles,
		cfg:          orch.ModelConfig(),
		defaultVoice: voice.DefaultID,
		defaultLang:  textproc.DefaultLanguage,
		log:          log.With(slog.String("component", "synth-engine")),
		tracer:       otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	meter := otel.Meter(instrumentationName)
	if c, err := meter.Int64Counter("supertonic.synth.chunks", metric.WithDescription("Chunks synthesized")); err == nil {
		e.chunks = c
	}
	if c, err := meter.Float64Counter("supertonic.synth.audio", metric.WithDescription("Audio produced"), metric.WithUnit("s")); err == nil {
		e.seconds = c
	}
	return e
}

// SampleRate is the rate of every produced waveform.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// Synthesize produces the whole utterance for req. Chunks run in order and
// are joined with SilenceSeconds of silence. stop is checked before every
// chunk and before returning; once it fires the call returns ErrStopped and
// reports no further progress.
func (e *Engine) Synthesize(ctx context.Context, req Request, stop *StopToken) (Result, error) {
	lang, voiceID, speed, err := e.resolve(req)
	if err != nil {
		return Result{}, err
	}

	ctx, span := e.tracer.Start(ctx, "synth.synthesize", trace.WithAttributes(
		attribute.String("voice", voiceID),
		attribute.String("language", lang),
		attribute.Int("text.length", len(req.Text)),
	))
	defer span.End()

	res, err := e.synthesize(ctx, req, lang, voiceID, speed, stop)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("chunks", res.Chunks), attribute.Float64("duration", res.Duration))
	if e.seconds != nil {
		e.seconds.Add(ctx, res.Duration, metric.WithAttributes(attribute.String("voice", voiceID)))
	}
	return res, nil
}

func (e *Engine) synthesize(ctx context.Context, req Request, lang, voiceID string, speed float64, stop *StopToken) (Result, error) {
	style, err := e.styles.Get(ctx, voiceID)
	if err != nil {
		return Result{}, err
	}

	chunks := textproc.Chunk(req.Text, textproc.ChunkBudget(lang))
	silence := e.cfg.SampleCount(SilenceSeconds)
	res := Result{SampleRate: e.cfg.SampleRate, Chunks: len(chunks)}

	for i, chunk := range chunks {
		if stop.Stopped() {
			return Result{}, ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		batch := e.indexer.Encode([]string{textproc.Normalize(chunk, lang)})
		out, err := e.orch.Infer(ctx, batch, style, req.Steps, speed)
		if err != nil {
			return Result{}, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		wave := e.trim(out.Waveform, out.Durations[0])

		if i > 0 {
			res.Samples = append(res.Samples, make([]float32, silence)...)
			res.Duration += SilenceSeconds
		}
		res.Samples = append(res.Samples, wave...)
		res.Duration += float64(out.Durations[0])

		if e.chunks != nil {
			e.chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("language", lang)))
		}
		e.log.Debug("chunk synthesized",
			slog.Int("index", i+1),
			slog.Int("total", len(chunks)),
			slog.Float64("duration", float64(out.Durations[0])),
			slog.Int("samples", len(wave)))
		if req.OnProgress != nil && !stop.Stopped() {
			req.OnProgress(i+1, len(chunks))
		}
	}

	if stop.Stopped() {
		return Result{}, ErrStopped
	}
	return res, nil
}

// SynthesizeBatch runs a single batched inference over texts, one item per
// text, without chunking. Each returned result holds one item's trimmed
// waveform.
func (e *Engine) SynthesizeBatch(ctx context.Context, texts []string, lang, voiceID string, steps int, speed float64) ([]Result, error) {
	lang, voiceID, speed, err := e.resolve(Request{Language: lang, Voice: voiceID, Speed: speed})
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", inference.ErrInvalidInput)
	}
	style, err := e.styles.Get(ctx, voiceID)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "synth.batch", trace.WithAttributes(attribute.Int("batch.size", len(texts))))
	defer span.End()

	normalized := make([]string, len(texts))
	for i, text := range texts {
		normalized[i] = textproc.Normalize(text, lang)
	}
	out, err := e.orch.Infer(ctx, e.indexer.Encode(normalized), style, steps, speed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stride := len(out.Waveform) / len(texts)
	results := make([]Result, len(texts))
	for i := range texts {
		item := out.Waveform[i*stride : (i+1)*stride]
		wave := e.trim(item, out.Durations[i])
		results[i] = Result{
			Samples:    append([]float32(nil), wave...),
			Duration:   float64(out.Durations[i]),
			SampleRate: e.cfg.SampleRate,
			Chunks:     1,
		}
	}
	return results, nil
}

// trim cuts a waveform to the predicted duration.
func (e *Engine) trim(wave []float32, seconds float32) []float32 {
	n := min(e.cfg.SampleCount(float64(seconds)), len(wave))
	return wave[:n]
}

func (e *Engine) resolve(req Request) (lang, voiceID string, speed float64, err error) {
	lang = strings.TrimSpace(req.Language)
	if lang == "" {
		lang = e.defaultLang
	}
	lang, _ = textproc.ResolveLanguage(lang)
	voiceID = strings.TrimSpace(req.Voice)
	if voiceID == "" {
		voiceID = e.defaultVoice
	}
	speed = req.Speed
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed <= 0 {
		return "", "", 0, fmt.Errorf("%w: speed must be a positive finite number, got %v", inference.ErrInvalidInput, req.Speed)
	}
	if req.Steps < 0 {
		return "", "", 0, fmt.Errorf("%w: steps must not be negative, got %d", inference.ErrInvalidInput, req.Steps)
	}
	return lang, voiceID, speed, nil
}
