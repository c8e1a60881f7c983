package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Superstone-han/supertonic-v2/internal/eventstore"
	"github.com/Superstone-han/supertonic-v2/internal/inference"
	"github.com/Superstone-han/supertonic-v2/internal/synth"
	"github.com/Superstone-han/supertonic-v2/internal/textproc"
	"github.com/Superstone-han/supertonic-v2/internal/voice"
	"github.com/google/uuid"
)

const maxRequestBody = 1 << 20

type synthesizeRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language,omitempty"`
	Voice    string   `json:"voice,omitempty"`
	Steps    int      `json:"steps,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
}

// defaultSpeed applies when a request omits speed.
const defaultSpeed = 1.0

type voiceResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Gender      string   `json:"gender"`
	Description string   `json:"description"`
	Languages   []string `json:"languages"`
	Default     bool     `json:"default,omitempty"`
}

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("POST /v1/synthesize", r.handleSynthesize)
	mux.HandleFunc("GET /v1/voices", r.handleVoices)
	if r.metrics != nil {
		mux.Handle("/metrics", r.metrics)
	}
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleSynthesize(w http.ResponseWriter, req *http.Request) {
	var body synthesizeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, errors.New("text must not be empty"))
		return
	}
	if limit := r.cfg.HTTP.MaxTextLength; limit > 0 && utf8.RuneCountInString(body.Text) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("text exceeds %d characters", limit))
		return
	}

	ctx := req.Context()
	if r.cfg.HTTP.RequestTimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.HTTP.RequestTimeoutMS)*time.Millisecond)
		defer cancel()
	}

	speed := defaultSpeed
	if body.Speed != nil {
		speed = *body.Speed
	}

	id := uuid.NewString()
	lang, _ := textproc.ResolveLanguage(body.Language)
	if body.Language == "" {
		lang = r.cfg.Text.DefaultLanguage
	}
	if err := r.store.StartUtterance(ctx, eventstore.Utterance{
		ID:         id,
		Source:     "http",
		Voice:      body.Voice,
		Language:   lang,
		TextLength: len(body.Text),
	}); err != nil {
		r.logger.Warn("failed to record utterance", slog.String("error", err.Error()))
	}

	res, err := r.engine.Synthesize(ctx, synth.Request{
		Text:     body.Text,
		Language: body.Language,
		Voice:    body.Voice,
		Steps:    body.Steps,
		Speed:    speed,
	}, nil)
	if err != nil {
		r.finishUtterance(id, eventstore.StatusFailed, 0)
		r.logger.Warn("synthesis failed", slog.String("utterance_id", id), slog.String("error", err.Error()))
		writeError(w, statusFor(err), err)
		return
	}
	r.finishUtterance(id, eventstore.StatusCompleted, res.Duration)

	wav := res.WAV()
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.Header().Set("X-Utterance-Id", id)
	w.Header().Set("X-Audio-Duration", strconv.FormatFloat(res.Duration, 'f', 3, 64))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func (r *Runtime) finishUtterance(id, status string, duration float64) {
	if err := r.store.FinishUtterance(context.Background(), id, status, duration); err != nil {
		r.logger.Warn("failed to finish utterance", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleVoices(w http.ResponseWriter, _ *http.Request) {
	var out []voiceResponse
	for _, v := range voice.Catalog() {
		out = append(out, voiceResponse{
			ID:          v.ID,
			Name:        v.Name,
			DisplayName: v.DisplayName(),
			Gender:      v.Gender,
			Description: v.Description,
			Languages:   textproc.SupportedLanguages,
			Default:     v.ID == r.cfg.Voices.Default,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": out})
}

func statusFor(err error) int {
	var asset *inference.AssetError
	switch {
	case errors.Is(err, inference.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &asset) && strings.HasPrefix(asset.Asset, "voice_style/"):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
