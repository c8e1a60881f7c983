// Package audio encodes synthesized samples as WAV containers.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// HeaderSize is the length of the canonical PCM WAV header.
const HeaderSize = 44

const (
	bitsPerSample = 16
	numChannels   = 1
	pcmFormat     = 1
)

// EncodeWAV writes samples as a mono 16-bit PCM WAV file. Samples are
// clamped to [-1, 1], scaled by 32767 and truncated toward zero; NaN
// encodes as silence.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	f := &memFile{buf: make([]byte, 0, HeaderSize+2*len(samples))}
	if err := WriteWAV(f, samples, sampleRate); err != nil {
		// memFile never fails, so neither does the encoder.
		panic(err)
	}
	return f.buf
}

// memFile is an in-memory io.WriteSeeker for the wav encoder, which seeks
// back to patch the chunk sizes.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = int(pos)
	return pos, nil
}

func toPCM16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	v := max(-1, min(1, float64(s)))
	return int16(v * 32767)
}

// WriteWAV streams samples to w through the go-audio encoder.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		SourceBitDepth: bitsPerSample,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buffer.Data[i] = int(toPCM16(s))
	}
	enc := wav.NewEncoder(w, sampleRate, bitsPerSample, numChannels, pcmFormat)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// Clip is a decoded WAV file.
type Clip struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []float32
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)/c.Channels) / float64(c.SampleRate)
}

// DecodeWAV reads a PCM WAV file and returns its samples scaled to [-1, 1].
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode wav: %w", err)
	}
	return clipFromBuffer(buf, int(dec.BitDepth)), nil
}

// DecodeWAVBytes is DecodeWAV over an in-memory file.
func DecodeWAVBytes(data []byte) (Clip, error) {
	return DecodeWAV(bytes.NewReader(data))
}

func clipFromBuffer(buf *goaudio.IntBuffer, bitDepth int) Clip {
	clip := Clip{BitDepth: bitDepth}
	if buf.Format != nil {
		clip.SampleRate = buf.Format.SampleRate
		clip.Channels = buf.Format.NumChannels
	}
	scale := float32(int64(1) << (max(bitDepth, 1) - 1))
	clip.Samples = make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		clip.Samples[i] = float32(v) / scale
	}
	return clip
}
