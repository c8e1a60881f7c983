package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	StdoutTraces   bool   `yaml:"stdout_traces"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind             string `yaml:"bind"`
	Port             int    `yaml:"port"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	MaxTextLength    int    `yaml:"max_text_length"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Engine      EngineConfig     `yaml:"engine"`
	Voices      VoicesConfig     `yaml:"voices"`
	Text        TextConfig       `yaml:"text"`
	Control     ControlConfig    `yaml:"control"`
}

type BusConfig struct {
	Embedded        bool     `yaml:"embedded"`
	Port            int      `yaml:"port"`
	Servers         []string `yaml:"servers"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	Token           string   `yaml:"token"`
	TLSInsecure     bool     `yaml:"tls_insecure"`
	ConnectTimeout  int      `yaml:"connect_timeout_ms"`
	MaxPayloadBytes int      `yaml:"max_payload_bytes"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxUtterances int    `yaml:"max_utterances"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type EngineConfig struct {
	Mode           string `yaml:"mode"` // mock, onnx
	ModelDir       string `yaml:"model_dir"`
	LibraryPath    string `yaml:"library_path"`
	IntraOpThreads int    `yaml:"intra_op_threads"`
	Steps          int    `yaml:"steps"`
	Seed           int64  `yaml:"seed"`
}

type VoicesConfig struct {
	Source         string   `yaml:"source"` // file, http
	Directory      string   `yaml:"directory"`
	BaseURL        string   `yaml:"base_url"`
	FetchTimeoutMS int      `yaml:"fetch_timeout_ms"`
	Default        string   `yaml:"default"`
	Preload        []string `yaml:"preload"`
}

type TextConfig struct {
	DefaultLanguage string `yaml:"default_language"`
}

type ControlConfig struct {
	Enabled            bool   `yaml:"enabled"`
	RequestSubject     string `yaml:"request_subject"`
	NotifySubject      string `yaml:"notify_subject"`
	SynthesisTimeoutMS int    `yaml:"synthesis_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "supertonic",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:             "0.0.0.0",
			Port:             8080,
			RequestTimeoutMS: 60000,
			MaxTextLength:    20000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:        true,
			Port:            4222,
			Servers:         []string{"nats://localhost:4222"},
			ConnectTimeout:  2000,
			MaxPayloadBytes: 8 << 20,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/supertonic-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxUtterances: 10000,
		},
		Engine: EngineConfig{
			Mode:     "mock",
			ModelDir: "./assets/onnx",
			Steps:    5,
		},
		Voices: VoicesConfig{
			Source:         "file",
			Directory:      "./assets/voice_styles",
			BaseURL:        "https://huggingface.co/Supertone/supertonic-2/resolve/main",
			FetchTimeoutMS: 30000,
			Default:        "M3",
		},
		Text: TextConfig{
			DefaultLanguage: "en",
		},
		Control: ControlConfig{
			Enabled:            true,
			RequestSubject:     "tts.control.request",
			NotifySubject:      "tts.control.notify",
			SynthesisTimeoutMS: 120000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SUPERTONIC_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SUPERTONIC_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SUPERTONIC_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SUPERTONIC_HTTP_PORT")
	overrideInt(&cfg.HTTP.RequestTimeoutMS, "SUPERTONIC_HTTP_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.HTTP.MaxTextLength, "SUPERTONIC_HTTP_MAX_TEXT_LENGTH")
	overrideString(&cfg.Telemetry.LogLevel, "SUPERTONIC_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SUPERTONIC_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SUPERTONIC_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "SUPERTONIC_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.Telemetry.PrometheusBind, "SUPERTONIC_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "SUPERTONIC_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SUPERTONIC_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SUPERTONIC_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SUPERTONIC_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SUPERTONIC_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SUPERTONIC_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SUPERTONIC_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SUPERTONIC_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Bus.MaxPayloadBytes, "SUPERTONIC_BUS_MAX_PAYLOAD_BYTES")
	overrideString(&cfg.EventStore.Path, "SUPERTONIC_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "SUPERTONIC_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "SUPERTONIC_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxUtterances, "SUPERTONIC_EVENT_STORE_MAX_UTTERANCES")
	overrideBool(&cfg.EventStore.VacuumOnStart, "SUPERTONIC_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Engine.Mode, "SUPERTONIC_ENGINE_MODE")
	overrideString(&cfg.Engine.ModelDir, "SUPERTONIC_ENGINE_MODEL_DIR")
	overrideString(&cfg.Engine.LibraryPath, "SUPERTONIC_ENGINE_LIBRARY_PATH")
	overrideInt(&cfg.Engine.IntraOpThreads, "SUPERTONIC_ENGINE_INTRA_OP_THREADS")
	overrideInt(&cfg.Engine.Steps, "SUPERTONIC_ENGINE_STEPS")
	overrideInt64(&cfg.Engine.Seed, "SUPERTONIC_ENGINE_SEED")
	overrideString(&cfg.Voices.Source, "SUPERTONIC_VOICES_SOURCE")
	overrideString(&cfg.Voices.Directory, "SUPERTONIC_VOICES_DIRECTORY")
	overrideString(&cfg.Voices.BaseURL, "SUPERTONIC_VOICES_BASE_URL")
	overrideInt(&cfg.Voices.FetchTimeoutMS, "SUPERTONIC_VOICES_FETCH_TIMEOUT_MS")
	overrideString(&cfg.Voices.Default, "SUPERTONIC_VOICES_DEFAULT")
	overrideStringSlice(&cfg.Voices.Preload, "SUPERTONIC_VOICES_PRELOAD")
	overrideString(&cfg.Text.DefaultLanguage, "SUPERTONIC_TEXT_DEFAULT_LANGUAGE")
	overrideBool(&cfg.Control.Enabled, "SUPERTONIC_CONTROL_ENABLED")
	overrideString(&cfg.Control.RequestSubject, "SUPERTONIC_CONTROL_REQUEST_SUBJECT")
	overrideString(&cfg.Control.NotifySubject, "SUPERTONIC_CONTROL_NOTIFY_SUBJECT")
	overrideInt(&cfg.Control.SynthesisTimeoutMS, "SUPERTONIC_CONTROL_SYNTHESIS_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.RequestTimeoutMS < 0 {
		return errors.New("http.request_timeout_ms must be >= 0")
	}
	if cfg.HTTP.MaxTextLength < 0 {
		return errors.New("http.max_text_length must be >= 0")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Bus.MaxPayloadBytes < 0 {
		return errors.New("bus.max_payload_bytes must be >= 0")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Engine.Mode {
	case "mock":
	case "onnx":
		if cfg.Engine.ModelDir == "" {
			return errors.New("engine.model_dir must be set when mode=onnx")
		}
	default:
		return errors.New("engine.mode must be one of mock|onnx")
	}
	if cfg.Engine.Steps < 0 {
		return errors.New("engine.steps must be >= 0")
	}
	if cfg.Engine.IntraOpThreads < 0 {
		return errors.New("engine.intra_op_threads must be >= 0")
	}
	switch cfg.Voices.Source {
	case "file":
		if cfg.Voices.Directory == "" {
			return errors.New("voices.directory must be set when source=file")
		}
	case "http":
		if cfg.Voices.BaseURL == "" {
			return errors.New("voices.base_url must be set when source=http")
		}
	default:
		return errors.New("voices.source must be one of file|http")
	}
	if cfg.Voices.Default == "" {
		return errors.New("voices.default must not be empty")
	}
	if cfg.Text.DefaultLanguage == "" {
		return errors.New("text.default_language must not be empty")
	}
	if cfg.Control.Enabled {
		if cfg.Control.RequestSubject == "" || cfg.Control.NotifySubject == "" {
			return errors.New("control.request_subject and control.notify_subject must be set when control is enabled")
		}
		if cfg.Control.SynthesisTimeoutMS < 0 {
			return errors.New("control.synthesis_timeout_ms must be >= 0")
		}
	}
	return nil
}
