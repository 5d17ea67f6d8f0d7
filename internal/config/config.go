// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "router.toml"

// Config represents the router configuration.
type Config struct {
	LLM        LLMConfig        `toml:"llm"`        // Specialist model
	Router     RouterConfig     `toml:"router"`     // Supervisor limits and decision model
	Specialist SpecialistConfig `toml:"specialist"` // Execution loop limits
	Rate       RateConfig       `toml:"rate"`       // Shared model request budget
	Timeouts   TimeoutsConfig   `toml:"timeouts"`
	Holster    HolsterConfig    `toml:"holster"`
	Guidance   GuidanceConfig   `toml:"guidance"`
	Knowledge  KnowledgeConfig  `toml:"knowledge"`
	Analytics  AnalyticsConfig  `toml:"analytics"`
	Events     EventsConfig     `toml:"events"`
	Storage    StorageConfig    `toml:"storage"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`      // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
	Thinking     string `toml:"thinking"`      // Thinking level: auto|off|low|medium|high
	MaxRetries   int    `toml:"max_retries"`   // Max retry attempts (default 5)
	RetryBackoff string `toml:"retry_backoff"` // Max backoff duration (default "60s")
	Direct       bool   `toml:"direct"`        // Use the built-in OpenAI-compatible client instead of agentkit
}

// RouterConfig contains supervisor settings.
type RouterConfig struct {
	MaxRoutingSteps       int       `toml:"max_routing_steps"`
	MaxContractViolations int       `toml:"max_contract_violations"`
	DecisionAttempts      int       `toml:"decision_attempts"`
	DecisionBackoff       string    `toml:"decision_backoff"`
	LLM                   LLMConfig `toml:"llm"` // Decision model; empty fields inherit [llm]
}

// SpecialistConfig contains execution loop settings.
type SpecialistConfig struct {
	MaxSteps        int `toml:"max_steps"`
	ToolConcurrency int `toml:"tool_concurrency"`
	MaxConcurrent   int `toml:"max_concurrent"` // Specialist runs in flight across turns
}

// RateConfig bounds model requests.
type RateConfig struct {
	RequestsPerMinute int `toml:"requests_per_minute"` // 0 = unlimited
	Burst             int `toml:"burst"`
}

// TimeoutsConfig contains timeout settings in seconds.
type TimeoutsConfig struct {
	Model int `toml:"model"` // Per model call (default 60)
	Tool  int `toml:"tool"`  // Per tool call (default 30)
}

// HolsterConfig extends the capability gate phrase list.
type HolsterConfig struct {
	Phrases []string `toml:"phrases"`
}

// GuidanceConfig locates execution-guidance documents.
type GuidanceConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

// KnowledgeConfig configures the lookup index.
type KnowledgeConfig struct {
	Path string `toml:"path"` // Index directory; empty = in-memory
	Seed string `toml:"seed"` // YAML documents indexed at startup
}

// AnalyticsConfig locates the specialist dataset.
type AnalyticsConfig struct {
	Path string `toml:"path"`
}

// EventsConfig configures external event publishing.
type EventsConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// StorageConfig contains turn recording settings.
type StorageConfig struct {
	Path     string `toml:"path"`     // Base directory for recordings
	Recorder string `toml:"recorder"` // file | sqlite | none
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc, http or noop
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Router: RouterConfig{
			MaxRoutingSteps:       8,
			MaxContractViolations: 2,
			DecisionAttempts:      3,
			DecisionBackoff:       "500ms",
		},
		Specialist: SpecialistConfig{
			MaxSteps:        6,
			ToolConcurrency: 4,
			MaxConcurrent:   4,
		},
		Timeouts: TimeoutsConfig{
			Model: 60,
			Tool:  30,
		},
		Events: EventsConfig{
			SubjectPrefix: "router.events",
		},
		Storage: StorageConfig{
			Path:     "~/.local/share/router",
			Recorder: "file",
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads router.toml from the current directory, or returns
// defaults when it does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, DefaultFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Recorder {
	case "", "file", "sqlite", "none":
	default:
		return fmt.Errorf("storage.recorder must be file, sqlite or none, got %q", c.Storage.Recorder)
	}
	if c.Router.MaxRoutingSteps < 0 || c.Specialist.MaxSteps < 0 {
		return fmt.Errorf("step limits must not be negative")
	}
	if _, err := c.Router.Backoff(); err != nil {
		return err
	}
	if c.LLM.RetryBackoff != "" {
		if _, err := time.ParseDuration(c.LLM.RetryBackoff); err != nil {
			return fmt.Errorf("invalid llm.retry_backoff: %w", err)
		}
	}
	return nil
}

// Backoff parses decision_backoff.
func (r RouterConfig) Backoff() (time.Duration, error) {
	if r.DecisionBackoff == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.DecisionBackoff)
	if err != nil {
		return 0, fmt.Errorf("invalid router.decision_backoff: %w", err)
	}
	return d, nil
}

// DecisionLLM returns the decision model settings with empty fields filled
// from [llm].
func (c *Config) DecisionLLM() LLMConfig {
	d := c.Router.LLM
	if d.Provider == "" {
		d.Provider = c.LLM.Provider
	}
	if d.Model == "" {
		d.Model = c.LLM.Model
	}
	if d.APIKeyEnv == "" {
		d.APIKeyEnv = c.LLM.APIKeyEnv
	}
	if d.MaxTokens == 0 {
		d.MaxTokens = c.LLM.MaxTokens
	}
	if d.BaseURL == "" {
		d.BaseURL = c.LLM.BaseURL
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = c.LLM.MaxRetries
	}
	if d.RetryBackoff == "" {
		d.RetryBackoff = c.LLM.RetryBackoff
	}
	if !d.Direct {
		d.Direct = c.LLM.Direct
	}
	return d
}

// ModelTimeout returns the per-call model timeout.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Timeouts.Model) * time.Second
}

// ToolTimeout returns the per-call tool timeout.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Timeouts.Tool) * time.Second
}

// StoragePath returns storage.path with a leading ~ expanded.
func (c *Config) StoragePath() string {
	return ExpandHome(c.Storage.Path)
}

// ExpandHome expands a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (l LLMConfig) GetAPIKey() string {
	envVar := l.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(l.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai", "openai-compat":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}
