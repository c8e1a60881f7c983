package protocol

import (
	"encoding/json"
	"time"
)

// Control methods a host may invoke.
const (
	MethodSpeak     = "speak"
	MethodPause     = "pause"
	MethodResume    = "resume"
	MethodStop      = "stop"
	MethodForward   = "forward"
	MethodRewind    = "rewind"
	MethodSeek      = "seek"
	MethodGetVoices = "getVoices"
)

// Notifications emitted towards the host. They carry no request id.
const (
	NotifyAdvertiseVoices = "advertiseVoices"
	NotifyStart           = "onStart"
	NotifyAudioPlay       = "audioPlay"
	NotifyAudioPause      = "audioPause"
	NotifyAudioResume     = "audioResume"
	NotifyEnd             = "onEnd"
	NotifyError           = "onError"
)

// ControlRequest is a host call. Every request is answered by exactly one
// ControlResponse with the same ID.
type ControlRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// ControlResponse answers a ControlRequest.
type ControlResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Notification is a fire-and-forget event.
type Notification struct {
	Method      string    `json:"method"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	Args        any       `json:"args,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SpeakArgs are the arguments of MethodSpeak.
type SpeakArgs struct {
	Utterance string  `json:"utterance"`
	VoiceName string  `json:"voiceName,omitempty"`
	Lang      string  `json:"lang,omitempty"`
	Pitch     float64 `json:"pitch,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
}

// SpeakResult answers MethodSpeak.
type SpeakResult struct {
	UtteranceID string  `json:"utterance_id"`
	Duration    float64 `json:"duration"`
	Stopped     bool    `json:"stopped,omitempty"`
}

// SeekArgs are the arguments of MethodSeek.
type SeekArgs struct {
	Index int `json:"index"`
}

// VoiceInfo is how a voice is advertised to the host.
type VoiceInfo struct {
	VoiceName    string `json:"voiceName"`
	Lang         string `json:"lang"`
	Gender       string `json:"gender"`
	LocalService bool   `json:"localService,omitempty"`
}

// VoicesArgs carries the voice list of NotifyAdvertiseVoices and the
// result of MethodGetVoices.
type VoicesArgs struct {
	Voices []VoiceInfo `json:"voices"`
}

// AudioPlayArgs delivers a finished utterance as a WAV file.
type AudioPlayArgs struct {
	Src        []byte  `json:"src"`
	MimeType   string  `json:"mime_type"`
	Rate       float64 `json:"rate"`
	Volume     float64 `json:"volume"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
}

// ErrorArgs describes a failed utterance.
type ErrorArgs struct {
	Error string `json:"error"`
}
