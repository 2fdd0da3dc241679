package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultDSNEnv            = "CRASHPOST_DSN"
	DefaultHTTPTimeout       = 10 * time.Second
	DefaultRateLimitCooldown = 5 * time.Second
	DefaultBackoffInterval   = 1 * time.Second
	DefaultHTTPPort          = 8080
	DefaultGRPCPort          = 50051
	DefaultOutcomeTTL        = 15 * time.Minute
	DefaultStreamInterval    = 5 * time.Second
	DefaultAuthHeader        = "x-api-key"
	DefaultLogLevel          = "info"
)

// Config is the top-level configuration.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Agent  AgentConfig  `yaml:"agent"`
	Log    LogConfig    `yaml:"log"`
}

// ClientConfig holds the delivery settings shared by the SDK and the agent.
type ClientConfig struct {
	// DSNEnv is the name of the environment variable that holds the DSN.
	DSNEnv string `yaml:"dsn_env"`

	// Environment and Release are stamped on every event.
	Environment string `yaml:"environment"`
	Release     string `yaml:"release"`

	// HTTPTimeout bounds one delivery attempt.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// RateLimitCooldown is how long delivery pauses after a 429.
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`

	// BackoffInterval is how often a paused queue re-checks the rate limit.
	BackoffInterval time.Duration `yaml:"backoff_interval"`

	// CAFile optionally trusts an extra CA for self-hosted endpoints.
	CAFile string `yaml:"ca_file"`

	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// DSN returns the DSN resolved from the environment.
func (c ClientConfig) DSN() string {
	if c.DSNEnv == "" {
		return ""
	}
	return os.Getenv(c.DSNEnv)
}

// AgentConfig holds relay-agent settings.
type AgentConfig struct {
	// HTTPPort serves the capture API, metrics and WebSocket stream.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service.
	GRPCPort int `yaml:"grpc_port"`

	// OutcomeTTL is how long delivered or failed records stay queryable.
	OutcomeTTL time.Duration `yaml:"outcome_ttl"`

	// StreamInterval controls how often status is pushed to WebSocket clients.
	StreamInterval time.Duration `yaml:"stream_interval"`

	// Auth configures how callers authenticate to the agent.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls caller authentication on the agent's HTTP and gRPC ports.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header / gRPC metadata key carrying the key.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel converts Level to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, applying defaults before validation.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Client: ClientConfig{
			DSNEnv:            DefaultDSNEnv,
			HTTPTimeout:       DefaultHTTPTimeout,
			RateLimitCooldown: DefaultRateLimitCooldown,
			BackoffInterval:   DefaultBackoffInterval,
		},
		Agent: AgentConfig{
			HTTPPort:       DefaultHTTPPort,
			GRPCPort:       DefaultGRPCPort,
			OutcomeTTL:     DefaultOutcomeTTL,
			StreamInterval: DefaultStreamInterval,
			Auth:           AuthConfig{Mode: "none", Header: DefaultAuthHeader},
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Client.DSNEnv == "" {
		return fmt.Errorf("client.dsn_env is required")
	}
	if cfg.Client.HTTPTimeout <= 0 {
		return fmt.Errorf("client.http_timeout must be positive")
	}
	if cfg.Client.RateLimitCooldown <= 0 {
		return fmt.Errorf("client.rate_limit_cooldown must be positive")
	}
	if cfg.Client.BackoffInterval <= 0 {
		return fmt.Errorf("client.backoff_interval must be positive")
	}
	if cfg.Agent.HTTPPort <= 0 || cfg.Agent.HTTPPort > 65535 {
		return fmt.Errorf("agent.http_port %d is out of range [1, 65535]", cfg.Agent.HTTPPort)
	}
	if cfg.Agent.GRPCPort <= 0 || cfg.Agent.GRPCPort > 65535 {
		return fmt.Errorf("agent.grpc_port %d is out of range [1, 65535]", cfg.Agent.GRPCPort)
	}
	if cfg.Agent.OutcomeTTL <= 0 {
		return fmt.Errorf("agent.outcome_ttl must be positive")
	}
	if cfg.Agent.StreamInterval <= 0 {
		return fmt.Errorf("agent.stream_interval must be positive")
	}
	switch cfg.Agent.Auth.Mode {
	case "apikey":
		if cfg.Agent.Auth.KeyEnv == "" {
			return fmt.Errorf("agent.auth.key_env is required when mode is apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("agent.auth.mode %q unknown: want apikey|none", cfg.Agent.Auth.Mode)
	}
	if cfg.Agent.Auth.Header == "" {
		cfg.Agent.Auth.Header = DefaultAuthHeader
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}
