package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Superstone-han/supertonic-v2/internal/config"
	"github.com/Superstone-han/supertonic-v2/internal/inference"
	"github.com/Superstone-han/supertonic-v2/internal/inference/onnx"
	"github.com/Superstone-han/supertonic-v2/internal/synth"
	"github.com/Superstone-han/supertonic-v2/internal/textproc"
	"github.com/Superstone-han/supertonic-v2/internal/voice"
)

// Model asset file names inside engine.model_dir.
const (
	ModelConfigFile = "tts.json"
	IndexerFile     = "unicode_indexer.json"
)

// identityIndexerLimit covers the Basic Multilingual Plane for the mock engine.
const identityIndexerLimit = 1 << 16

// Pipeline is the synthesis stack without any network surface.
type Pipeline struct {
	Engine   *synth.Engine
	Voices   *voice.Cache
	Model    inference.ModelConfig
	provider inference.ModelProvider
}

// OpenPipeline loads the model stages and voice styles named by cfg.
func OpenPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	provider, indexer, modelCfg, err := openModel(cfg.Engine, logger)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Model: modelCfg, provider: provider}

	stages, err := inference.LoadStages(ctx, provider)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("load model stages: %w", err)
	}
	sampler := inference.NewLatentSampler(modelCfg, uint64(cfg.Engine.Seed))
	orch, err := inference.NewOrchestrator(stages, sampler, cfg.Engine.Steps)
	if err != nil {
		p.Close()
		return nil, err
	}

	p.Voices = voice.NewCache(voiceProvider(cfg.Voices), logger)
	for _, id := range cfg.Voices.Preload {
		if _, err := p.Voices.Get(ctx, id); err != nil {
			p.Close()
			return nil, fmt.Errorf("preload voice %s: %w", id, err)
		}
	}

	p.Engine = synth.NewEngine(orch, indexer, p.Voices, logger,
		synth.WithDefaultVoice(cfg.Voices.Default),
		synth.WithDefaultLanguage(cfg.Text.DefaultLanguage),
	)
	return p, nil
}

// Close releases the model sessions.
func (p *Pipeline) Close() error {
	if p == nil || p.provider == nil {
		return nil
	}
	return p.provider.Close()
}

func openModel(cfg config.EngineConfig, logger *slog.Logger) (inference.ModelProvider, *textproc.Indexer, inference.ModelConfig, error) {
	switch cfg.Mode {
	case "onnx":
		modelCfg, err := inference.LoadModelConfig(filepath.Join(cfg.ModelDir, ModelConfigFile))
		if err != nil {
			return nil, nil, inference.ModelConfig{}, err
		}
		indexer, err := textproc.LoadIndexer(filepath.Join(cfg.ModelDir, IndexerFile))
		if err != nil {
			return nil, nil, inference.ModelConfig{}, &inference.AssetError{Asset: IndexerFile, Err: err}
		}
		provider, err := onnx.NewProvider(onnx.Options{
			ModelDir:       cfg.ModelDir,
			LibraryPath:    cfg.LibraryPath,
			IntraOpThreads: cfg.IntraOpThreads,
		})
		if err != nil {
			return nil, nil, inference.ModelConfig{}, fmt.Errorf("open onnx provider: %w", err)
		}
		return provider, indexer, modelCfg, nil
	default:
		modelCfg := inference.DefaultModelConfig()
		logger.Warn("using mock model stages; audio is synthetic")
		return inference.NewStubProvider(modelCfg), textproc.NewIdentityIndexer(identityIndexerLimit), modelCfg, nil
	}
}

func voiceProvider(cfg config.VoicesConfig) voice.Provider {
	if cfg.Source == "http" {
		return voice.NewHTTPProvider(cfg.BaseURL, time.Duration(cfg.FetchTimeoutMS)*time.Millisecond)
	}
	return voice.NewFileProvider(cfg.Directory)
}
