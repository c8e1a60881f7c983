// Package control exposes synthesis to a remote host over NATS
// request/reply, with playback notifications published alongside.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Superstone-han/supertonic-v2/internal/bus"
	"github.com/Superstone-han/supertonic-v2/internal/config"
	"github.com/Superstone-han/supertonic-v2/internal/eventstore"
	"github.com/Superstone-han/supertonic-v2/internal/protocol"
	"github.com/Superstone-han/supertonic-v2/internal/synth"
	"github.com/Superstone-han/supertonic-v2/internal/textproc"
	"github.com/Superstone-han/supertonic-v2/internal/voice"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// defaultSpeed applies when a speak request carries no rate.
const defaultSpeed = 1.0

// Synthesizer produces a finished utterance.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request, stop *synth.StopToken) (synth.Result, error)
}

type utterance struct {
	id       string
	stop     *synth.StopToken
	paused   bool
	endTimer *time.Timer
}

type Service struct {
	cfg    config.ControlConfig
	bus    *bus.Client
	engine Synthesizer
	store  *eventstore.Store
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	closing atomic.Bool

	mu      sync.Mutex
	current *utterance
}

func NewService(parent context.Context, cfg config.ControlConfig, busClient *bus.Client, engine Synthesizer, store *eventstore.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		engine: engine,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "control-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(s.cfg.RequestSubject, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.notify(protocol.NotifyAdvertiseVoices, "", advertisedVoices(true))
	s.logger.Info("control service started", slog.String("subject", s.cfg.RequestSubject))
	return nil
}

func (s *Service) Close() {
	s.closing.Store(true)
	s.stopCurrent()
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.ControlRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode control request", slogError(err))
		s.reply(msg, protocol.ControlResponse{Error: "invalid request: " + err.Error()})
		return
	}

	switch req.Method {
	case protocol.MethodSpeak:
		s.speak(msg, req)
	case protocol.MethodPause:
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Result: s.pause()})
	case protocol.MethodResume:
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Result: s.resume()})
	case protocol.MethodStop:
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Result: s.stopCurrent()})
	case protocol.MethodForward, protocol.MethodRewind:
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Result: true})
	case protocol.MethodSeek:
		var args protocol.SeekArgs
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, &args); err != nil {
				s.reply(msg, protocol.ControlResponse{ID: req.ID, Error: "invalid seek args: " + err.Error()})
				return
			}
		}
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Result: true})
	case protocol.MethodGetVoices:
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Result: advertisedVoices(false).Voices})
	default:
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Error: fmt.Sprintf("unknown method %q", req.Method)})
	}
}

func (s *Service) speak(msg *nats.Msg, req protocol.ControlRequest) {
	var args protocol.SpeakArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Error: "invalid speak args: " + err.Error()})
		return
	}
	if strings.TrimSpace(args.Utterance) == "" {
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Error: "utterance must not be empty"})
		return
	}
	voiceID := ""
	if id, ok := voice.ParseVoiceName(args.VoiceName); ok {
		voiceID = id
	}
	volume := args.Volume
	if volume <= 0 {
		volume = 1
	}
	speed := args.Rate
	if speed == 0 {
		speed = defaultSpeed
	}

	u := s.begin()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx := s.ctx
		if s.cfg.SynthesisTimeoutMS > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.SynthesisTimeoutMS)*time.Millisecond)
			defer cancel()
		}

		lang, _ := textproc.ResolveLanguage(args.Lang)
		if err := s.store.StartUtterance(ctx, eventstore.Utterance{
			ID:         u.id,
			Source:     "control",
			Voice:      voiceID,
			Language:   lang,
			TextLength: len(args.Utterance),
		}); err != nil {
			s.logger.Warn("failed to record utterance", slogError(err))
		}
		s.notify(protocol.NotifyStart, u.id, nil)
		s.record(ctx, u.id, protocol.NotifyStart, nil)

		res, err := s.engine.Synthesize(ctx, synth.Request{
			Text:     args.Utterance,
			Language: args.Lang,
			Voice:    voiceID,
			Speed:    speed,
		}, u.stop)
		if errors.Is(err, synth.ErrStopped) || u.stop.Stopped() || (err != nil && s.closing.Load()) {
			s.finish(u.id, eventstore.StatusStopped, 0)
			s.reply(msg, protocol.ControlResponse{ID: req.ID, Result: protocol.SpeakResult{UtteranceID: u.id, Stopped: true}})
			return
		}
		if err != nil {
			s.logger.Warn("synthesis failed", slog.String("utterance_id", u.id), slogError(err))
			s.notify(protocol.NotifyError, u.id, protocol.ErrorArgs{Error: err.Error()})
			s.record(ctx, u.id, protocol.NotifyError, protocol.ErrorArgs{Error: err.Error()})
			s.finish(u.id, eventstore.StatusFailed, 0)
			s.release(u)
			s.reply(msg, protocol.ControlResponse{ID: req.ID, Error: err.Error()})
			return
		}

		s.notify(protocol.NotifyAudioPlay, u.id, protocol.AudioPlayArgs{
			Src:        res.WAV(),
			MimeType:   "audio/wav",
			Rate:       1.0,
			Volume:     volume,
			Duration:   res.Duration,
			SampleRate: res.SampleRate,
		})
		s.record(ctx, u.id, protocol.NotifyAudioPlay, map[string]any{"duration": res.Duration, "chunks": res.Chunks})
		s.scheduleEnd(u, res.Duration)
		s.finish(u.id, eventstore.StatusCompleted, res.Duration)
		s.reply(msg, protocol.ControlResponse{ID: req.ID, Result: protocol.SpeakResult{UtteranceID: u.id, Duration: res.Duration}})
	}()
}

// begin stops any utterance in progress and registers a new one.
func (s *Service) begin() *utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.stop.Stop()
		if s.current.endTimer != nil {
			s.current.endTimer.Stop()
		}
	}
	u := &utterance{id: uuid.NewString(), stop: synth.NewStopToken()}
	s.current = u
	return u
}

// release forgets u if it is still the current utterance.
func (s *Service) release(u *utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == u {
		s.current = nil
	}
}

// scheduleEnd emits onEnd once the audio would have finished playing,
// unless the utterance is stopped first.
func (s *Service) scheduleEnd(u *utterance, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.stop.Stopped() {
		return
	}
	u.endTimer = time.AfterFunc(time.Duration(seconds*float64(time.Second)), func() {
		if u.stop.Stopped() {
			return
		}
		s.notify(protocol.NotifyEnd, u.id, nil)
		s.record(context.Background(), u.id, protocol.NotifyEnd, nil)
		s.release(u)
	})
}

func (s *Service) stopCurrent() bool {
	s.mu.Lock()
	u := s.current
	s.current = nil
	if u != nil {
		u.stop.Stop()
		u.paused = false
		if u.endTimer != nil {
			u.endTimer.Stop()
		}
	}
	s.mu.Unlock()
	if u != nil {
		s.record(context.Background(), u.id, protocol.MethodStop, nil)
	}
	return true
}

func (s *Service) pause() bool {
	s.mu.Lock()
	u := s.current
	changed := u != nil && !u.paused
	if changed {
		u.paused = true
	}
	s.mu.Unlock()
	if changed {
		s.notify(protocol.NotifyAudioPause, u.id, nil)
	}
	return true
}

func (s *Service) resume() bool {
	s.mu.Lock()
	u := s.current
	changed := u != nil && u.paused
	if changed {
		u.paused = false
	}
	s.mu.Unlock()
	if changed {
		s.notify(protocol.NotifyAudioResume, u.id, nil)
	}
	return true
}

func (s *Service) notify(method, utteranceID string, args any) {
	n := protocol.Notification{Method: method, UtteranceID: utteranceID, Args: args, Timestamp: time.Now().UTC()}
	if err := s.bus.PublishJSON(s.cfg.NotifySubject, n); err != nil {
		s.logger.Warn("failed to publish notification", slog.String("method", method), slogError(err))
	}
}

func (s *Service) reply(msg *nats.Msg, resp protocol.ControlResponse) {
	if msg.Reply == "" {
		return
	}
	if err := s.bus.RespondJSON(msg, resp); err != nil {
		s.logger.Warn("failed to send control reply", slog.String("id", resp.ID), slogError(err))
	}
}

func (s *Service) record(ctx context.Context, utteranceID, typ string, payload any) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			s.logger.Warn("failed to marshal event payload", slogError(err))
			return
		}
	}
	if err := s.store.AppendEvent(context.WithoutCancel(ctx), eventstore.Event{UtteranceID: utteranceID, Type: typ, Payload: data}); err != nil {
		s.logger.Warn("failed to record event", slog.String("type", typ), slogError(err))
	}
}

func (s *Service) finish(id, status string, duration float64) {
	if err := s.store.FinishUtterance(context.Background(), id, status, duration); err != nil {
		s.logger.Warn("failed to finish utterance", slogError(err))
	}
}

func advertisedVoices(local bool) protocol.VoicesArgs {
	langs := strings.Join(textproc.SupportedLanguages, ",")
	var out protocol.VoicesArgs
	for _, v := range voice.Catalog() {
		out.Voices = append(out.Voices, protocol.VoiceInfo{
			VoiceName:    v.DisplayName(),
			Lang:         langs,
			Gender:       v.Gender,
			LocalService: local,
		})
	}
	return out
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
