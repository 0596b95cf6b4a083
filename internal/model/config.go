package model

import "time"

// Config is the complete runtime configuration, loadable from
// ~/.poliscope/config.yaml, POLISCOPE_* environment variables, or flags
type Config struct {
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`
	Queue   QueueConfig   `yaml:"queue" mapstructure:"queue"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Assist  AssistConfig  `yaml:"assist" mapstructure:"assist"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
}

// BackendConfig controls how the evaluation backend is reached
type BackendConfig struct {
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	APIToken          string        `yaml:"api_token" mapstructure:"api_token"`
}

// QueueConfig controls queue fill and enrichment polling
type QueueConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// SessionConfig controls per-session review goals and progress retention
type SessionConfig struct {
	Goal int           `yaml:"goal" mapstructure:"goal"`
	TTL  time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// AssistConfig configures the optional LLM review-assist summary.
// Disabled unless Provider is set; assist output is advisory text only and
// never feeds back into review decisions.
type AssistConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "openai" or ""
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OutputConfig controls terminal rendering
type OutputConfig struct {
	Verbose  bool `yaml:"verbose" mapstructure:"verbose"`
	Advanced bool `yaml:"advanced" mapstructure:"advanced"` // Render empty sections to allow authoring into them
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8000",
			Timeout:           30 * time.Second,
			UserAgent:         "Poliscope/0.1 (+https://github.com/poliscope/poliscope)",
			MaxBodyBytes:      4_000_000,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Queue: QueueConfig{
			PollInterval: 5 * time.Second,
		},
		Session: SessionConfig{
			Goal: 50,
			TTL:  8 * time.Hour,
		},
		Assist: AssistConfig{
			Provider:  "", // Disabled by default
			Timeout:   30,
			MaxTokens: 500,
		},
	}
}
