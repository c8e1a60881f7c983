package control

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Superstone-han/supertonic-v2/internal/bus"
	"github.com/Superstone-han/supertonic-v2/internal/config"
	"github.com/Superstone-han/supertonic-v2/internal/natsserver"
	"github.com/Superstone-han/supertonic-v2/internal/protocol"
	"github.com/Superstone-han/supertonic-v2/internal/synth"
	"github.com/nats-io/nats.go"
)

type fakeSynth struct {
	block   bool
	started chan synth.Request
}

func (f *fakeSynth) Synthesize(ctx context.Context, req synth.Request, stop *synth.StopToken) (synth.Result, error) {
	if f.started != nil {
		f.started <- req
	}
	if f.block {
		for !stop.Stopped() {
			select {
			case <-ctx.Done():
				return synth.Result{}, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
		return synth.Result{}, synth.ErrStopped
	}
	return synth.Result{Samples: make([]float32, 240), Duration: 0.05, SampleRate: 24000, Chunks: 1}, nil
}

type harness struct {
	client  *bus.Client
	notes   *nats.Subscription
	service *Service
	cfg     config.ControlConfig
}

func newHarness(t *testing.T, engine Synthesizer) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), "control-test", config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	cfg := config.Default().Control
	notes, err := client.Conn().SubscribeSync(cfg.NotifySubject)
	if err != nil {
		t.Fatalf("subscribe notifications: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	service := NewService(context.Background(), cfg, client, engine, nil, logger)
	if err := service.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(service.Close)

	h := &harness{client: client, notes: notes, service: service, cfg: cfg}
	n := h.nextNotification(t)
	if n.Method != protocol.NotifyAdvertiseVoices {
		t.Fatalf("expected advertiseVoices first, got %s", n.Method)
	}
	var advertised protocol.VoicesArgs
	if err := json.Unmarshal(n.Args, &advertised); err != nil {
		t.Fatalf("decode advertiseVoices: %v", err)
	}
	if len(advertised.Voices) != 10 || !advertised.Voices[0].LocalService {
		t.Fatalf("unexpected advertised voices %+v", advertised.Voices)
	}
	return h
}

func (h *harness) request(id, method string, args any) (protocol.ControlResponse, error) {
	req := protocol.ControlRequest{ID: id, Method: method}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return protocol.ControlResponse{}, err
		}
		req.Args = raw
	}
	data, err := json.Marshal(req)
	if err != nil {
		return protocol.ControlResponse{}, err
	}
	msg, err := h.client.Conn().Request(h.cfg.RequestSubject, data, 5*time.Second)
	if err != nil {
		return protocol.ControlResponse{}, err
	}
	var resp protocol.ControlResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return protocol.ControlResponse{}, err
	}
	return resp, nil
}

func (h *harness) call(t *testing.T, id, method string, args any) protocol.ControlResponse {
	t.Helper()
	resp, err := h.request(id, method, args)
	if err != nil {
		t.Fatalf("request %s: %v", method, err)
	}
	if resp.ID != id {
		t.Fatalf("response id %q does not match request %q", resp.ID, id)
	}
	return resp
}

type rawNotification struct {
	Method      string          `json:"method"`
	UtteranceID string          `json:"utterance_id"`
	Args        json.RawMessage `json:"args"`
}

func (h *harness) nextNotification(t *testing.T) rawNotification {
	t.Helper()
	msg, err := h.notes.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("waiting for notification: %v", err)
	}
	var n rawNotification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	return n
}

func TestSpeakPlaysAndEnds(t *testing.T) {
	engine := &fakeSynth{started: make(chan synth.Request, 1)}
	h := newHarness(t, engine)

	resp := h.call(t, "req-1", protocol.MethodSpeak, protocol.SpeakArgs{
		Utterance: "Hello there.",
		VoiceName: "Supertonic Sam (M4)",
		Lang:      "fr-CA",
		Rate:      1.5,
	})
	if resp.Error != "" {
		t.Fatalf("speak failed: %s", resp.Error)
	}
	req := <-engine.started
	if req.Voice != "M4" || req.Language != "fr-CA" || req.Speed != 1.5 {
		t.Fatalf("unexpected synth request %+v", req)
	}

	start := h.nextNotification(t)
	play := h.nextNotification(t)
	end := h.nextNotification(t)
	if start.Method != protocol.NotifyStart || play.Method != protocol.NotifyAudioPlay || end.Method != protocol.NotifyEnd {
		t.Fatalf("unexpected notification order %s, %s, %s", start.Method, play.Method, end.Method)
	}
	if start.UtteranceID == "" || play.UtteranceID != start.UtteranceID || end.UtteranceID != start.UtteranceID {
		t.Fatalf("notifications do not share an utterance id")
	}
	var audio protocol.AudioPlayArgs
	if err := json.Unmarshal(play.Args, &audio); err != nil {
		t.Fatalf("decode audioPlay: %v", err)
	}
	if len(audio.Src) != 44+2*240 || audio.Volume != 1 || audio.Rate != 1 {
		t.Fatalf("unexpected audioPlay args: %d bytes, volume %v, rate %v", len(audio.Src), audio.Volume, audio.Rate)
	}
}

func TestStopSuppressesPlayback(t *testing.T) {
	engine := &fakeSynth{block: true, started: make(chan synth.Request, 1)}
	h := newHarness(t, engine)

	type outcome struct {
		resp protocol.ControlResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := h.request("speak-1", protocol.MethodSpeak, protocol.SpeakArgs{Utterance: "A long story."})
		done <- outcome{resp, err}
	}()
	if req := <-engine.started; req.Speed != 1 {
		t.Fatalf("speak without a rate must synthesize at speed 1, got %v", req.Speed)
	}
	if n := h.nextNotification(t); n.Method != protocol.NotifyStart {
		t.Fatalf("expected onStart, got %s", n.Method)
	}

	h.call(t, "pause-1", protocol.MethodPause, nil)
	if n := h.nextNotification(t); n.Method != protocol.NotifyAudioPause {
		t.Fatalf("expected audioPause, got %s", n.Method)
	}
	h.call(t, "pause-2", protocol.MethodPause, nil)
	h.call(t, "resume-1", protocol.MethodResume, nil)
	if n := h.nextNotification(t); n.Method != protocol.NotifyAudioResume {
		t.Fatalf("expected a single audioResume after repeated pause, got %s", n.Method)
	}

	if resp := h.call(t, "stop-1", protocol.MethodStop, nil); resp.Error != "" {
		t.Fatalf("stop failed: %s", resp.Error)
	}
	got := <-done
	if got.err != nil {
		t.Fatalf("speak request: %v", got.err)
	}
	raw, _ := json.Marshal(got.resp.Result)
	var result protocol.SpeakResult
	if err := json.Unmarshal(raw, &result); err != nil || !result.Stopped {
		t.Fatalf("expected stopped speak result, got %s", raw)
	}
	if msg, err := h.notes.NextMsg(200 * time.Millisecond); err == nil {
		t.Fatalf("expected no notification after stop, got %s", msg.Data)
	}
}

func TestSimpleMethods(t *testing.T) {
	h := newHarness(t, &fakeSynth{})

	resp := h.call(t, "voices", protocol.MethodGetVoices, nil)
	raw, _ := json.Marshal(resp.Result)
	var voices []protocol.VoiceInfo
	if err := json.Unmarshal(raw, &voices); err != nil {
		t.Fatalf("getVoices must reply with a bare voice list: %v (%s)", err, raw)
	}
	if len(voices) != 10 || voices[0].VoiceName != "Supertonic Alex (M1)" || voices[0].Lang != "en,ko,es,pt,fr" || voices[0].LocalService {
		t.Fatalf("unexpected voices %+v", voices)
	}

	for _, method := range []string{protocol.MethodForward, protocol.MethodRewind, protocol.MethodPause, protocol.MethodResume, protocol.MethodStop} {
		if resp := h.call(t, method, method, nil); resp.Error != "" || resp.Result != true {
			t.Fatalf("%s: unexpected response %+v", method, resp)
		}
	}
	if resp := h.call(t, "seek", protocol.MethodSeek, protocol.SeekArgs{Index: 3}); resp.Error != "" {
		t.Fatalf("seek failed: %s", resp.Error)
	}
	if resp := h.call(t, "bogus", "dance", nil); resp.Error == "" {
		t.Fatal("expected error for unknown method")
	}
	if resp := h.call(t, "empty", protocol.MethodSpeak, protocol.SpeakArgs{}); resp.Error == "" {
		t.Fatal("expected error for empty utterance")
	}
	if msg, err := h.notes.NextMsg(100 * time.Millisecond); err == nil {
		t.Fatalf("pause/resume without an utterance must not notify, got %s", msg.Data)
	}
}

func TestCloseDuringSpeakReportsNoError(t *testing.T) {
	engine := &fakeSynth{block: true, started: make(chan synth.Request, 1)}
	h := newHarness(t, engine)

	go func() {
		_, _ = h.request("speak-1", protocol.MethodSpeak, protocol.SpeakArgs{Utterance: "Interrupted."})
	}()
	<-engine.started
	if n := h.nextNotification(t); n.Method != protocol.NotifyStart {
		t.Fatalf("expected onStart, got %s", n.Method)
	}

	h.service.Close()
	if msg, err := h.notes.NextMsg(200 * time.Millisecond); err == nil {
		t.Fatalf("expected no notification while closing, got %s", msg.Data)
	}
}
