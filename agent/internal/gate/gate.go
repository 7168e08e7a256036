// Package gate decides whether a freshly built snapshot is worth sending.
//
// A snapshot is transmitted when nothing has been sent yet, when any of the
// four check categories differs from the last transmitted snapshot, or when
// the heartbeat interval has elapsed since the last transmission. Timestamp,
// hostname, OS info and resource figures never trigger a send on their own.
package gate

import (
	"reflect"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// DefaultHeartbeat is the maximum gap between transmissions of an
// unchanged snapshot.
const DefaultHeartbeat = 24 * time.Hour

// Reason explains a ShouldTransmit decision. It is logged by the monitor.
type Reason string

const (
	ReasonFirst     Reason = "first"
	ReasonChanged   Reason = "changed"
	ReasonHeartbeat Reason = "heartbeat"
	ReasonUnchanged Reason = "unchanged"
)

// ShouldTransmit reports whether cur should be sent given the last
// transmitted snapshot prev and the time it was sent. A non-positive
// heartbeat falls back to DefaultHeartbeat.
func ShouldTransmit(prev *types.Snapshot, prevSentAt time.Time, cur *types.Snapshot, now time.Time, heartbeat time.Duration) (bool, Reason) {
	if prev == nil {
		return true, ReasonFirst
	}
	if Changed(prev, cur) {
		return true, ReasonChanged
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if now.Sub(prevSentAt) >= heartbeat {
		return true, ReasonHeartbeat
	}
	return false, ReasonUnchanged
}

// Changed reports whether any check category differs between a and b.
func Changed(a, b *types.Snapshot) bool {
	return !reflect.DeepEqual(a.DiskEncryption, b.DiskEncryption) ||
		!reflect.DeepEqual(a.OSUpdates, b.OSUpdates) ||
		!reflect.DeepEqual(a.Antivirus, b.Antivirus) ||
		!reflect.DeepEqual(a.SleepSettings, b.SleepSettings)
}
