package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ModelConfig carries the acoustic constants the latent geometry depends on.
type ModelConfig struct {
	SampleRate          int
	BaseChunkSize       int
	ChunkCompressFactor int
	LatentDim           int
}

// DefaultModelConfig matches the published model release.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		SampleRate:          24000,
		BaseChunkSize:       512,
		ChunkCompressFactor: 6,
		LatentDim:           24,
	}
}

type modelConfigFile struct {
	AE struct {
		SampleRate    int `json:"sample_rate"`
		BaseChunkSize int `json:"base_chunk_size"`
	} `json:"ae"`
	TTL struct {
		ChunkCompressFactor int `json:"chunk_compress_factor"`
		LatentDim           int `json:"latent_dim"`
	} `json:"ttl"`
}

// LoadModelConfig reads the model's tts.json. Missing fields keep their
// defaults.
func LoadModelConfig(path string) (ModelConfig, error) {
	cfg := DefaultModelConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &AssetError{Asset: path, Err: err}
	}
	var raw modelConfigFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, &AssetError{Asset: path, Err: fmt.Errorf("parse model config: %w", err)}
	}
	if raw.AE.SampleRate > 0 {
		cfg.SampleRate = raw.AE.SampleRate
	}
	if raw.AE.BaseChunkSize > 0 {
		cfg.BaseChunkSize = raw.AE.BaseChunkSize
	}
	if raw.TTL.ChunkCompressFactor > 0 {
		cfg.ChunkCompressFactor = raw.TTL.ChunkCompressFactor
	}
	if raw.TTL.LatentDim > 0 {
		cfg.LatentDim = raw.TTL.LatentDim
	}
	if err := cfg.Validate(); err != nil {
		return cfg, &AssetError{Asset: path, Err: err}
	}
	return cfg, nil
}

func (c ModelConfig) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("sample_rate must be positive")
	}
	if c.BaseChunkSize <= 0 || c.ChunkCompressFactor <= 0 {
		return errors.New("base_chunk_size and chunk_compress_factor must be positive")
	}
	if c.LatentDim <= 0 {
		return errors.New("latent_dim must be positive")
	}
	return nil
}

// ChunkSize is the number of waveform samples one latent frame covers.
func (c ModelConfig) ChunkSize() int { return c.BaseChunkSize * c.ChunkCompressFactor }

// LatentChannels is the channel count of the latent tensor.
func (c ModelConfig) LatentChannels() int { return c.LatentDim * c.ChunkCompressFactor }

// SampleCount converts seconds to a whole number of samples, rounding down.
func (c ModelConfig) SampleCount(seconds float64) int {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0
	}
	return int(math.Floor(seconds * float64(c.SampleRate)))
}

// LatentLength is the number of latent frames needed for seconds of audio.
func (c ModelConfig) LatentLength(seconds float64) int {
	samples := c.SampleCount(seconds)
	chunk := c.ChunkSize()
	return (samples + chunk - 1) / chunk
}
