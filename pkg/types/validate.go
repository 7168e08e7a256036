package types

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed snapshot. Snapshots that fail
// validation are rejected at ingestion and never reach the alert engine.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid snapshot: %s %s", e.Field, e.Reason)
}

// Validate checks the structural requirements of a snapshot.
func Validate(s *Snapshot) error {
	if s == nil {
		return &ValidationError{Field: "snapshot", Reason: "is required"}
	}
	if strings.TrimSpace(s.MachineID) == "" {
		return &ValidationError{Field: "machineId", Reason: "is required"}
	}
	if s.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	switch {
	case s.DiskEncryption == nil:
		return &ValidationError{Field: "diskEncryption", Reason: "is required"}
	case s.OSUpdates == nil:
		return &ValidationError{Field: "osUpdates", Reason: "is required"}
	case s.Antivirus == nil:
		return &ValidationError{Field: "antivirus", Reason: "is required"}
	case s.SleepSettings == nil:
		return &ValidationError{Field: "sleepSettings", Reason: "is required"}
	}
	if s.OSUpdates.DaysBehind != nil && *s.OSUpdates.DaysBehind < 0 {
		return &ValidationError{Field: "osUpdates.daysBehind", Reason: "must not be negative"}
	}
	if s.SleepSettings.SleepTimeout != nil && *s.SleepSettings.SleepTimeout < 0 {
		return &ValidationError{Field: "sleepSettings.sleepTimeout", Reason: "must not be negative"}
	}
	return nil
}
