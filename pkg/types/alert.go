package types

import "time"

// AlertType identifies the compliance condition an alert tracks.
type AlertType string

const (
	AlertDiskEncryption    AlertType = "disk_encryption"
	AlertOSUpdates         AlertType = "os_updates"
	AlertAntivirusMissing  AlertType = "antivirus_missing"
	AlertAntivirusDisabled AlertType = "antivirus_disabled"
	AlertAntivirusOutdated AlertType = "antivirus_outdated"
	AlertSleepTimeout      AlertType = "sleep_timeout"
)

// AlertTypes lists every AlertType in a stable order.
var AlertTypes = []AlertType{
	AlertDiskEncryption,
	AlertOSUpdates,
	AlertAntivirusMissing,
	AlertAntivirusDisabled,
	AlertAntivirusOutdated,
	AlertSleepTimeout,
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	for _, known := range AlertTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity is the urgency assigned to an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is one alert record. For a given (MachineID, Type) at most one
// record has IsResolved == false at any time.
type Alert struct {
	ID         string     `json:"id"`
	MachineID  string     `json:"machineId"`
	Type       AlertType  `json:"alertType"`
	Severity   Severity   `json:"severity"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	IsResolved bool       `json:"isResolved"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// RiskScore is derived from a machine's open alerts on request.
type RiskScore struct {
	Score      int    `json:"score"`
	Level      string `json:"level"`
	AlertCount int    `json:"alertCount"`
	RawScore   int    `json:"rawScore"`
}
