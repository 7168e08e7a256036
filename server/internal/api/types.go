package api

import "github.com/healthwatch/healthwatch/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// Status is "ok", or "degraded" when the alert store is unreachable.
	Status       string         `json:"status"`
	MachineCount int            `json:"machineCount"`
	OpenAlerts   int            `json:"openAlerts"`
	RiskLevels   map[string]int `json:"riskLevels"`
	GeneratedAt  string         `json:"generatedAt"` // RFC3339
}

// MachineSummary is one entry in GET /api/v1/machines.
type MachineSummary struct {
	MachineID string          `json:"machineId"`
	Hostname  string          `json:"hostname"`
	Platform  string          `json:"platform"`
	LastSeen  string          `json:"lastSeen"` // RFC3339
	Risk      types.RiskScore `json:"risk"`
}

// FleetResponse is the live fleet view pushed over the WebSocket stream.
type FleetResponse struct {
	Machines    []MachineSummary `json:"machines"`
	GeneratedAt string           `json:"generatedAt"` // RFC3339
}

// MachineResponse is the payload for GET /api/v1/machines/{id}.
type MachineResponse struct {
	MachineSummary
	Snapshot *types.Snapshot `json:"snapshot"`
	Checks   []CheckStatus   `json:"checks"`
}

// CheckStatus is a human-readable verdict on one snapshot category.
type CheckStatus struct {
	// Key is the category: disk_encryption | os_updates | antivirus | sleep_settings.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	// Value is an optional number tied to the check (days behind, minutes).
	Value *int `json:"value,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
