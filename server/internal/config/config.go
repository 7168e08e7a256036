package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort       = 50051
	DefaultHTTPPort       = 8080
	DefaultMachineTTL     = 48 * time.Hour
	DefaultBackend        = "memory"
	DefaultSQLitePath     = "healthwatch.db"
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultSweepInterval  = time.Hour
	DefaultDaysBehindHigh = 30
	DefaultSleepMinutes   = 10
	DefaultRiskCeiling    = 50
	DefaultAMQPExchange   = "healthwatch.alerts"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API, WebSocket hub and /metrics listen on.
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates incoming gRPC and REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Machines controls the in-memory fleet view.
	Machines MachinesConfig `yaml:"machines"`

	// Storage selects and tunes the alert store.
	Storage StorageConfig `yaml:"storage"`

	// Alerts holds thresholds and notification targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// MachinesConfig controls the last-snapshot-per-machine registry.
type MachinesConfig struct {
	// TTL is how long a machine remains listed after its last snapshot.
	TTL time.Duration `yaml:"ttl"`
}

// StorageConfig selects the alert store backend.
type StorageConfig struct {
	// Backend is one of: memory | sqlite | postgres.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file (sqlite backend only).
	Path string `yaml:"path"`

	// DSNEnv names the environment variable holding the Postgres DSN.
	DSNEnv string `yaml:"dsn_env"`

	// Retention is how long resolved alerts are kept before the sweep deletes them.
	Retention time.Duration `yaml:"retention"`

	// SweepInterval is how often the retention sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DSN returns the Postgres DSN resolved from the environment.
func (s StorageConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// AlertsConfig holds alert thresholds and delivery targets.
type AlertsConfig struct {
	Thresholds Thresholds      `yaml:"thresholds"`
	Webhooks   []WebhookConfig `yaml:"webhooks"`
	AMQP       AMQPConfig      `yaml:"amqp"`
}

// Thresholds tunes rule severities and the risk score.
type Thresholds struct {
	// DaysBehindHigh is the days-behind count above which os_updates is high.
	DaysBehindHigh int `yaml:"days_behind_high"`

	// SleepTimeoutMinutes is the longest acceptable sleep timeout.
	SleepTimeoutMinutes int `yaml:"sleep_timeout_minutes"`

	// RiskCeiling is the raw score that maps to a risk score of 100.
	RiskCeiling int `yaml:"risk_ceiling"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// AMQPConfig configures the optional alert event publisher.
type AMQPConfig struct {
	// URLEnv names the environment variable holding the amqp:// URL.
	// Publishing is disabled when empty.
	URLEnv string `yaml:"url_env"`

	// Exchange is the topic exchange alert events are published to.
	Exchange string `yaml:"exchange"`
}

// URL returns the broker URL resolved from the environment.
func (a AMQPConfig) URL() string {
	if a.URLEnv == "" {
		return ""
	}
	return os.Getenv(a.URLEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Machines: MachinesConfig{TTL: DefaultMachineTTL},
			Storage: StorageConfig{
				Backend:       DefaultBackend,
				Path:          DefaultSQLitePath,
				Retention:     DefaultRetention,
				SweepInterval: DefaultSweepInterval,
			},
			Alerts: AlertsConfig{
				Thresholds: Thresholds{
					DaysBehindHigh:      DefaultDaysBehindHigh,
					SleepTimeoutMinutes: DefaultSleepMinutes,
					RiskCeiling:         DefaultRiskCeiling,
				},
				AMQP: AMQPConfig{Exchange: DefaultAMQPExchange},
			},
			LogLevel: "info",
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when mode is apikey")
	}
	if s.Machines.TTL < 0 {
		return fmt.Errorf("server.machines.ttl must not be negative")
	}

	switch s.Storage.Backend {
	case "memory":
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite backend")
		}
	case "postgres":
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for the postgres backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|sqlite|postgres", s.Storage.Backend)
	}
	if s.Storage.Retention <= 0 {
		return fmt.Errorf("server.storage.retention must be positive")
	}
	if s.Storage.SweepInterval <= 0 {
		return fmt.Errorf("server.storage.sweep_interval must be positive")
	}

	t := s.Alerts.Thresholds
	if t.DaysBehindHigh < 0 {
		return fmt.Errorf("server.alerts.thresholds.days_behind_high must not be negative")
	}
	if t.SleepTimeoutMinutes <= 0 {
		return fmt.Errorf("server.alerts.thresholds.sleep_timeout_minutes must be positive")
	}
	if t.RiskCeiling <= 0 {
		return fmt.Errorf("server.alerts.thresholds.risk_ceiling must be positive")
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
		if w.URLEnv == "" {
			return fmt.Errorf("server.alerts.webhooks[%d].url_env is required", i)
		}
	}
	if s.Alerts.AMQP.URLEnv != "" && s.Alerts.AMQP.Exchange == "" {
		return fmt.Errorf("server.alerts.amqp.exchange is required when url_env is set")
	}

	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	return nil
}
