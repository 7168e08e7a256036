package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval       = 15 * time.Minute
	DefaultHeartbeat      = 24 * time.Hour
	DefaultCommandTimeout = 30 * time.Second
	DefaultSendTimeout    = 10 * time.Second
	DefaultAuthHeader     = "x-api-key"
)

// Config is the top-level agent configuration.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of healthwatch-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// MachineID overrides the host-derived machine identifier.
	MachineID string `yaml:"machine_id"`

	// Interval controls how often a probe cycle runs.
	Interval time.Duration `yaml:"interval"`

	// Heartbeat forces a transmission when nothing has been sent for this long,
	// even if no check result changed.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// CommandTimeout bounds each external OS utility invocation.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// SendTimeout bounds a single SubmitSnapshot call.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// ServerAuth configures how the agent authenticates to healthwatch-server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// AuthConfig specifies how the agent presents credentials to the server.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the gRPC metadata key carrying the API key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultAuthHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			Interval:       DefaultInterval,
			Heartbeat:      DefaultHeartbeat,
			CommandTimeout: DefaultCommandTimeout,
			SendTimeout:    DefaultSendTimeout,
			LogLevel:       "info",
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.Interval <= 0 {
		return fmt.Errorf("agent.interval must be positive")
	}
	if a.Heartbeat <= 0 {
		return fmt.Errorf("agent.heartbeat must be positive")
	}
	if a.Heartbeat < a.Interval {
		return fmt.Errorf("agent.heartbeat (%v) must not be shorter than agent.interval (%v)", a.Heartbeat, a.Interval)
	}
	if a.CommandTimeout <= 0 {
		return fmt.Errorf("agent.command_timeout must be positive")
	}
	if a.SendTimeout <= 0 {
		return fmt.Errorf("agent.send_timeout must be positive")
	}
	switch a.ServerAuth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth.mode %q unknown: want apikey|none", a.ServerAuth.Mode)
	}
	switch a.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level %q unknown: want debug|info|warn|error", a.LogLevel)
	}
	return nil
}
