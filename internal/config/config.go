// Package config provides configuration loading for taskd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with defaults applied for anything left unset. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete taskd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Provider   ProviderConfig   `koanf:"provider"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Store      StoreConfig      `koanf:"store"`
	Queue      QueueConfig      `koanf:"queue"`
	Events     EventsConfig     `koanf:"events"`
	Notes      NotesConfig      `koanf:"notes"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ProviderConfig selects and configures the AI backend.
type ProviderConfig struct {
	Kind             string   `koanf:"kind"` // "local", "openai", "gateway"
	Endpoint         string   `koanf:"endpoint"`
	FallbackEndpoint string   `koanf:"fallback_endpoint"`
	APIKey           Secret   `koanf:"api_key"`
	Model            string   `koanf:"model"`
	NameVariants     []string `koanf:"name_variants"`
	Timeout          Duration `koanf:"timeout"`
	RateLimit        float64  `koanf:"rate_limit"` // requests per second
	Burst            int      `koanf:"burst"`
	AppTitle         string   `koanf:"app_title"`
}

// ExtractionConfig controls the extraction loop.
type ExtractionConfig struct {
	SystemPrompt   string   `koanf:"system_prompt"`
	MaxInputLength int      `koanf:"max_input_length"`
	MaxTokens      int      `koanf:"max_tokens"`
	Temperature    float64  `koanf:"temperature"`
	Timeout        Duration `koanf:"timeout"`
	MaxRetries     int      `koanf:"max_retries"`
	Backoff        Duration `koanf:"backoff"`
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	Driver string `koanf:"driver"` // "memory" or "sqlite"
	Path   string `koanf:"path"`
}

// QueueConfig controls the approval queue cache.
type QueueConfig struct {
	CacheTTL Duration `koanf:"cache_ttl"` // 0 keeps entries until resolved
}

// EventsConfig configures task lifecycle event publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// NotesConfig configures automatic note processing.
type NotesConfig struct {
	SweepEnabled  bool     `koanf:"sweep_enabled"`
	SweepInterval Duration `koanf:"sweep_interval"`
}

// SecretsConfig configures scrubbing of source text before it leaves the process.
type SecretsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Engine  string `koanf:"engine"` // "regex" or "gitleaks"
}

// LoggingConfig holds the subset of logging settings exposed in the config file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds the subset of OpenTelemetry settings exposed in the config file.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // "grpc" or "http/protobuf"
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Secrets: SecretsConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Provider kind is unknown, or a cloud provider has no API key
//   - Extraction limits are not positive
//   - Store driver is unknown
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	switch strings.ToLower(c.Provider.Kind) {
	case "local", "ollama":
	case "openai", "gateway", "openrouter":
		if !c.Provider.APIKey.IsSet() {
			errs = append(errs, fmt.Errorf("provider %q requires an api_key", c.Provider.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider kind: %q", c.Provider.Kind))
	}
	if c.Provider.Endpoint == "" {
		errs = append(errs, errors.New("provider endpoint is required"))
	}
	if c.Provider.Model == "" {
		errs = append(errs, errors.New("provider model is required"))
	}

	if c.Extraction.MaxInputLength <= 0 {
		errs = append(errs, errors.New("extraction.max_input_length must be positive"))
	}
	if c.Extraction.MaxRetries <= 0 {
		errs = append(errs, errors.New("extraction.max_retries must be positive"))
	}
	if c.Extraction.Timeout.Duration() <= 0 {
		errs = append(errs, errors.New("extraction.timeout must be positive"))
	}
	if c.Extraction.Temperature < 0 || c.Extraction.Temperature > 2 {
		errs = append(errs, fmt.Errorf("extraction.temperature must be between 0 and 2, got %v", c.Extraction.Temperature))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver: %q", c.Store.Driver))
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		errs = append(errs, errors.New("events.nats_url is required when events are enabled"))
	}
	if c.Notes.SweepEnabled && c.Notes.SweepInterval.Duration() <= 0 {
		errs = append(errs, errors.New("notes.sweep_interval must be positive when sweeping is enabled"))
	}
	if c.Secrets.Enabled && c.Secrets.Engine != "regex" && c.Secrets.Engine != "gitleaks" {
		errs = append(errs, fmt.Errorf("secrets.engine must be 'regex' or 'gitleaks', got %q", c.Secrets.Engine))
	}

	return errors.Join(errs...)
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = "local"
	}
	if cfg.Provider.Endpoint == "" {
		switch strings.ToLower(cfg.Provider.Kind) {
		case "openai":
			cfg.Provider.Endpoint = "https://api.openai.com/v1/chat/completions"
		case "gateway", "openrouter":
			cfg.Provider.Endpoint = "https://openrouter.ai/api/v1/chat/completions"
		default:
			cfg.Provider.Endpoint = "http://localhost:11434/api/chat"
		}
	}
	if cfg.Provider.Model == "" {
		switch strings.ToLower(cfg.Provider.Kind) {
		case "openai":
			cfg.Provider.Model = "gpt-4o-mini"
		case "gateway", "openrouter":
			cfg.Provider.Model = "openai/gpt-4o-mini"
		default:
			cfg.Provider.Model = "llama3.1"
		}
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = Duration(60 * time.Second)
	}
	if cfg.Provider.RateLimit == 0 {
		cfg.Provider.RateLimit = 50.0 / 60.0
	}
	if cfg.Provider.Burst == 0 {
		cfg.Provider.Burst = 5
	}
	if cfg.Provider.AppTitle == "" {
		cfg.Provider.AppTitle = "taskd"
	}

	if cfg.Extraction.MaxInputLength == 0 {
		cfg.Extraction.MaxInputLength = 20000
	}
	if cfg.Extraction.MaxTokens == 0 {
		cfg.Extraction.MaxTokens = 1024
	}
	if cfg.Extraction.Temperature == 0 {
		cfg.Extraction.Temperature = 0.2
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = Duration(30 * time.Second)
	}
	if cfg.Extraction.MaxRetries == 0 {
		cfg.Extraction.MaxRetries = 3
	}
	if cfg.Extraction.Backoff == 0 {
		cfg.Extraction.Backoff = Duration(time.Second)
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "taskd"
	}

	if cfg.Notes.SweepInterval == 0 {
		cfg.Notes.SweepInterval = Duration(5 * time.Minute)
	}

	if cfg.Secrets.Engine == "" {
		cfg.Secrets.Engine = "regex"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "taskd"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}
