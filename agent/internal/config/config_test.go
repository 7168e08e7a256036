package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:50051"
  machine_id: laptop-42
  interval: 5m
  heartbeat: 12h
  command_timeout: 20s
  server_auth:
    mode: apikey
    key_env: HW_KEY
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.ServerEndpoint != "localhost:50051" {
		t.Errorf("server_endpoint: got %q", cfg.Agent.ServerEndpoint)
	}
	if cfg.Agent.MachineID != "laptop-42" {
		t.Errorf("machine_id: got %q", cfg.Agent.MachineID)
	}
	if cfg.Agent.Interval != 5*time.Minute {
		t.Errorf("interval: got %v", cfg.Agent.Interval)
	}
	if cfg.Agent.Heartbeat != 12*time.Hour {
		t.Errorf("heartbeat: got %v", cfg.Agent.Heartbeat)
	}
	if cfg.Agent.CommandTimeout != 20*time.Second {
		t.Errorf("command_timeout: got %v", cfg.Agent.CommandTimeout)
	}
	if cfg.Agent.ServerAuth.Mode != "apikey" {
		t.Errorf("server_auth.mode: got %q", cfg.Agent.ServerAuth.Mode)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
agent:
  server_endpoint: "localhost:50051"
`)

	if cfg.Agent.Interval != DefaultInterval {
		t.Errorf("default interval: got %v, want %v", cfg.Agent.Interval, DefaultInterval)
	}
	if cfg.Agent.Heartbeat != DefaultHeartbeat {
		t.Errorf("default heartbeat: got %v, want %v", cfg.Agent.Heartbeat, DefaultHeartbeat)
	}
	if cfg.Agent.SendTimeout != DefaultSendTimeout {
		t.Errorf("default send_timeout: got %v, want %v", cfg.Agent.SendTimeout, DefaultSendTimeout)
	}
	if cfg.Agent.LogLevel != "info" {
		t.Errorf("default log_level: got %q, want info", cfg.Agent.LogLevel)
	}
	if got := cfg.Agent.ServerAuth.EffectiveHeader(); got != DefaultAuthHeader {
		t.Errorf("EffectiveHeader: got %q, want %q", got, DefaultAuthHeader)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing endpoint", "agent:\n  interval: 1m\n"},
		{"negative interval", "agent:\n  server_endpoint: x:1\n  interval: -1m\n"},
		{"heartbeat shorter than interval", "agent:\n  server_endpoint: x:1\n  interval: 2h\n  heartbeat: 1h\n"},
		{"unknown auth mode", "agent:\n  server_endpoint: x:1\n  server_auth:\n    mode: magictoken\n"},
		{"unknown log level", "agent:\n  server_endpoint: x:1\n  log_level: loud\n"},
		{"bad yaml", "agent: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
	if got := (AuthConfig{Mode: "apikey"}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(interval string) {
		t.Helper()
		content := "agent:\n  server_endpoint: x:1\n  interval: " + interval + "\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("1m")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	write("7m")

	select {
	case c := <-got:
		if c.Agent.Interval != 7*time.Minute {
			t.Errorf("reloaded interval: got %v, want 7m", c.Agent.Interval)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not report the change")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
