// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent} — full config tree parsed from YAML
//   - AgentConfig — server_endpoint, machine_id, interval, heartbeat,
//     command_timeout, send_timeout, server_auth, log_level
//   - AuthConfig — mode (apikey|none), header, key_env; Key() resolves the
//     key from the environment
//
// Load(path) reads the YAML file, applies defaults (15m interval, 24h
// heartbeat, 30s command timeout, 10s send timeout), then validates.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// a rename event.
package config
