// Package config handles loading and validating service configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

const (
	// DefaultPort is the HTTP gateway listen port.
	DefaultPort = 4000
	// DefaultModel is the completion model used when none is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultHistoryBudget is the max messages sent per completion call.
	DefaultHistoryBudget = 10
	// DefaultVectorStoreURL is the Qdrant endpoint probed at startup.
	DefaultVectorStoreURL = "http://localhost:6333"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig          `json:"server" yaml:"server"`
	Providers     ProvidersConfig       `json:"providers" yaml:"providers"`
	Search        SearchConfig          `json:"search" yaml:"search"`
	Slack         *SlackConfig          `json:"slack,omitempty" yaml:"slack,omitempty"`                 // nil = Slack gateway disabled
	VectorStore   *VectorStoreConfig    `json:"vector_store,omitempty" yaml:"vector_store,omitempty"`   // nil = startup probe skipped
	History       HistoryConfig         `json:"history" yaml:"history"`
	RateLimit     *RateLimitConfig      `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`       // nil = unlimited
	Observability *ObservabilityConfig  `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ServerConfig configures the HTTP gateway listener.
type ServerConfig struct {
	Port int `json:"port" yaml:"port"` // Default: 4000. Override: PORT env var.
}

// ListenPort returns the configured port, defaulting to DefaultPort.
func (s ServerConfig) ListenPort() int {
	if s.Port > 0 {
		return s.Port
	}
	return DefaultPort
}

// ProvidersConfig configures completion backends.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `json:"openai" yaml:"openai"`
}

// OpenAIConfig configures the OpenAI-compatible completion backend.
type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`   // Override: OPENAI_API_KEY env var.
	BaseURL string `json:"base_url" yaml:"base_url"` // Default: https://api.openai.com. Override: OPENAI_BASE_URL env var.
	Model   string `json:"model" yaml:"model"`       // Default: gpt-4o-mini.
}

// ModelName returns the configured model, defaulting to DefaultModel.
func (o OpenAIConfig) ModelName() string {
	if o.Model != "" {
		return o.Model
	}
	return DefaultModel
}

// SearchConfig configures the web search provider.
type SearchConfig struct {
	SerpAPI SerpAPIConfig `json:"serpapi" yaml:"serpapi"`
}

// SerpAPIConfig configures the SerpAPI search backend.
type SerpAPIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`   // Override: SERPAPI_KEY or SERP_API_KEY env var.
	BaseURL string `json:"base_url" yaml:"base_url"` // Default: https://serpapi.com.
}

// SlackConfig configures the Slack events gateway.
type SlackConfig struct {
	BotToken      string `json:"bot_token" yaml:"bot_token"`           // Override: SLACK_BOT_TOKEN env var.
	SigningSecret string `json:"signing_secret" yaml:"signing_secret"` // Override: SLACK_SIGNING_SECRET env var.
}

// VectorStoreConfig configures the Qdrant connection probed at startup.
type VectorStoreConfig struct {
	URL    string `json:"url" yaml:"url"`         // Default: http://localhost:6333. Override: QDRANT_URL env var.
	APIKey string `json:"api_key" yaml:"api_key"` // Override: QDRANT_KEY env var.
}

// Endpoint returns the configured URL, defaulting to DefaultVectorStoreURL.
func (v *VectorStoreConfig) Endpoint() string {
	if v != nil && v.URL != "" {
		return v.URL
	}
	return DefaultVectorStoreURL
}

// HistoryConfig configures per-thread conversation history.
type HistoryConfig struct {
	Budget           int    `json:"budget" yaml:"budget"`                       // Max messages per completion call. Default: 10.
	EvictionSchedule string `json:"eviction_schedule" yaml:"eviction_schedule"` // Cron spec for the idle-thread sweeper. Empty = sweeper disabled.
	IdleTTLSeconds   int    `json:"idle_ttl_s" yaml:"idle_ttl_s"`               // Threads idle longer than this are evicted. 0 = never.
}

// MessageBudget returns the configured budget, defaulting to DefaultHistoryBudget.
func (h HistoryConfig) MessageBudget() int {
	if h.Budget > 0 {
		return h.Budget
	}
	return DefaultHistoryBudget
}

// IdleTTL returns the idle TTL as a duration.
func (h HistoryConfig) IdleTTL() time.Duration {
	return time.Duration(h.IdleTTLSeconds) * time.Second
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited.
	BurstSize         int `json:"burst_size" yaml:"burst_size"`                   // 0 = RequestsPerMinute.
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the exposition path, defaulting to "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry tracing with an OTLP exporter.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "agent".
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP collector endpoint.
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" (default) or "http".
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"` // Default: 1.0.
}

// Load reads configuration from path and applies environment overrides.
// An empty path or a missing file yields a default configuration, env
// vars still apply.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			switch ext := strings.ToLower(filepath.Ext(path)); ext {
			case ".yml", ".yaml":
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return nil, fmt.Errorf("parsing YAML config %s: %w", path, err)
				}
			default:
				if err := json.Unmarshal(data, &cfg); err != nil {
					return nil, fmt.Errorf("parsing JSON config %s: %w", path, err)
				}
			}
		case os.IsNotExist(err):
			// Fall through to env-only configuration.
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets environment variables take precedence over file
// values.
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Providers.OpenAI.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		cfg.Providers.OpenAI.BaseURL = url
	}
	// Both spellings are accepted; SERPAPI_KEY wins when both are set.
	if key := os.Getenv("SERP_API_KEY"); key != "" {
		cfg.Search.SerpAPI.APIKey = key
	}
	if key := os.Getenv("SERPAPI_KEY"); key != "" {
		cfg.Search.SerpAPI.APIKey = key
	}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		if cfg.Slack == nil {
			cfg.Slack = &SlackConfig{}
		}
		cfg.Slack.BotToken = token
	}
	if secret := os.Getenv("SLACK_SIGNING_SECRET"); secret != "" {
		if cfg.Slack == nil {
			cfg.Slack = &SlackConfig{}
		}
		cfg.Slack.SigningSecret = secret
	}
	if url := os.Getenv("QDRANT_URL"); url != "" {
		if cfg.VectorStore == nil {
			cfg.VectorStore = &VectorStoreConfig{}
		}
		cfg.VectorStore.URL = url
	}
	if key := os.Getenv("QDRANT_KEY"); key != "" {
		if cfg.VectorStore == nil {
			cfg.VectorStore = &VectorStoreConfig{}
		}
		cfg.VectorStore.APIKey = key
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.History.Budget < 0 {
		return fmt.Errorf("history.budget must not be negative")
	}
	if c.RateLimit != nil && c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	if t := c.tracing(); t != nil && t.Enabled && t.Endpoint == "" {
		return fmt.Errorf("observability.tracing.endpoint required when tracing is enabled")
	}
	return nil
}

func (c *Config) tracing() *TracingConfig {
	if c.Observability == nil {
		return nil
	}
	return c.Observability.Tracing
}
