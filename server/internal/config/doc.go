// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort          — port for the gRPC receiver (default 50051)
//   - HTTPPort          — port for the REST API, WebSocket hub and /metrics (default 8080)
//   - Auth              — optional API key for agents and REST clients
//   - Machines.TTL      — how long a silent machine stays in the fleet view (default 48h)
//   - Storage           — alert store backend (memory | sqlite | postgres) and retention sweep
//   - Alerts.Thresholds — days-behind, sleep-timeout and risk-ceiling tunables
//   - Alerts.Webhooks   — slack | teams | http notification targets
//   - Alerts.AMQP       — optional topic exchange for alert events
//
// Load(path) applies defaults before unmarshalling, then validates. Secrets
// (API key, DSN, webhook and broker URLs) are never stored in the file; each
// is named by a *_env field and read from the environment.
package config
