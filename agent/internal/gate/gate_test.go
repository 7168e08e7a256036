package gate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

var t0 = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func baseSnapshot() *types.Snapshot {
	return &types.Snapshot{
		MachineID:      "m1",
		Platform:       types.PlatformLinux,
		Hostname:       "h1",
		Timestamp:      t0,
		DiskEncryption: &types.DiskEncryption{Encrypted: true, Method: "LUKS", Status: "encrypted"},
		OSUpdates:      &types.OSUpdates{UpToDate: false, PendingCount: 2, PendingUpdates: []string{"a", "b"}, DaysBehind: types.IntPtr(3)},
		Antivirus:      &types.Antivirus{Installed: true, Enabled: true, Name: "ClamAV", DefinitionsAge: types.IntPtr(1)},
		SleepSettings:  &types.SleepSettings{SleepTimeout: types.IntPtr(5)},
		SystemInfo:     types.SystemInfo{FreeMemory: 100, LoadAverage: []float64{0.1, 0.2, 0.3}},
	}
}

// clone deep-copies s so that pointer identity never influences the result.
func clone(s *types.Snapshot) *types.Snapshot {
	c := *s
	d := *s.DiskEncryption
	u := *s.OSUpdates
	u.PendingUpdates = append([]string(nil), s.OSUpdates.PendingUpdates...)
	if s.OSUpdates.DaysBehind != nil {
		u.DaysBehind = types.IntPtr(*s.OSUpdates.DaysBehind)
	}
	a := *s.Antivirus
	if s.Antivirus.DefinitionsAge != nil {
		a.DefinitionsAge = types.IntPtr(*s.Antivirus.DefinitionsAge)
	}
	sl := *s.SleepSettings
	if s.SleepSettings.SleepTimeout != nil {
		sl.SleepTimeout = types.IntPtr(*s.SleepSettings.SleepTimeout)
	}
	c.DiskEncryption, c.OSUpdates, c.Antivirus, c.SleepSettings = &d, &u, &a, &sl
	return &c
}

func TestShouldTransmit(t *testing.T) {
	tests := []struct {
		name      string
		prev      func() *types.Snapshot
		cur       func() *types.Snapshot
		elapsed   time.Duration
		heartbeat time.Duration
		want      bool
		reason    Reason
	}{
		{
			name:   "first snapshot",
			prev:   func() *types.Snapshot { return nil },
			cur:    baseSnapshot,
			want:   true,
			reason: ReasonFirst,
		},
		{
			name:    "identical within heartbeat",
			prev:    baseSnapshot,
			cur:     baseSnapshot,
			elapsed: time.Hour,
			want:    false,
			reason:  ReasonUnchanged,
		},
		{
			name: "only metadata differs",
			prev: baseSnapshot,
			cur: func() *types.Snapshot {
				s := baseSnapshot()
				s.Timestamp = t0.Add(time.Hour)
				s.Hostname = "renamed"
				s.SystemInfo.FreeMemory = 1
				s.OSInfo.Uptime = 99999
				return s
			},
			elapsed: time.Hour,
			want:    false,
			reason:  ReasonUnchanged,
		},
		{
			name: "encryption flipped",
			prev: baseSnapshot,
			cur: func() *types.Snapshot {
				s := baseSnapshot()
				s.DiskEncryption.Encrypted = false
				return s
			},
			elapsed: time.Minute,
			want:    true,
			reason:  ReasonChanged,
		},
		{
			name: "days behind changed",
			prev: baseSnapshot,
			cur: func() *types.Snapshot {
				s := baseSnapshot()
				s.OSUpdates.DaysBehind = types.IntPtr(4)
				return s
			},
			elapsed: time.Minute,
			want:    true,
			reason:  ReasonChanged,
		},
		{
			name: "days behind became unknown",
			prev: baseSnapshot,
			cur: func() *types.Snapshot {
				s := baseSnapshot()
				s.OSUpdates.DaysBehind = nil
				return s
			},
			elapsed: time.Minute,
			want:    true,
			reason:  ReasonChanged,
		},
		{
			name: "sleep check started failing",
			prev: baseSnapshot,
			cur: func() *types.Snapshot {
				s := baseSnapshot()
				s.SleepSettings = &types.SleepSettings{Error: true, Message: "pmset: command not found"}
				return s
			},
			elapsed: time.Minute,
			want:    true,
			reason:  ReasonChanged,
		},
		{
			name:    "heartbeat elapsed exactly",
			prev:    baseSnapshot,
			cur:     baseSnapshot,
			elapsed: 24 * time.Hour,
			want:    true,
			reason:  ReasonHeartbeat,
		},
		{
			name:      "custom heartbeat",
			prev:      baseSnapshot,
			cur:       baseSnapshot,
			elapsed:   2 * time.Hour,
			heartbeat: time.Hour,
			want:      true,
			reason:    ReasonHeartbeat,
		},
		{
			name:    "just under default heartbeat",
			prev:    baseSnapshot,
			cur:     baseSnapshot,
			elapsed: 24*time.Hour - time.Second,
			want:    false,
			reason:  ReasonUnchanged,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := ShouldTransmit(tc.prev(), t0, tc.cur(), t0.Add(tc.elapsed), tc.heartbeat)
			if got != tc.want || reason != tc.reason {
				t.Errorf("got (%v, %s), want (%v, %s)", got, reason, tc.want, tc.reason)
			}
		})
	}
}

// A snapshot compared with a deep copy of itself is never a change, and any
// single mutated category field always is.
func TestChanged_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	mutations := []func(s *types.Snapshot, n int){
		func(s *types.Snapshot, _ int) { s.DiskEncryption.Encrypted = !s.DiskEncryption.Encrypted },
		func(s *types.Snapshot, _ int) { s.DiskEncryption.Status += "x" },
		func(s *types.Snapshot, n int) { s.OSUpdates.PendingCount += n + 1 },
		func(s *types.Snapshot, _ int) { s.OSUpdates.PendingUpdates = append(s.OSUpdates.PendingUpdates, "pkg") },
		func(s *types.Snapshot, _ int) { s.Antivirus.Enabled = !s.Antivirus.Enabled },
		func(s *types.Snapshot, _ int) { s.Antivirus.DefinitionsOutdated = !s.Antivirus.DefinitionsOutdated },
		func(s *types.Snapshot, n int) { s.SleepSettings.SleepTimeout = types.IntPtr(*s.SleepSettings.SleepTimeout + n + 1) },
		func(s *types.Snapshot, _ int) { s.SleepSettings.Never = !s.SleepSettings.Never },
	}

	for i := 0; i < 200; i++ {
		base := baseSnapshot()
		base.OSUpdates.PendingCount = rng.Intn(50)
		base.SleepSettings.SleepTimeout = types.IntPtr(rng.Intn(120))

		same := clone(base)
		same.Timestamp = base.Timestamp.Add(time.Duration(rng.Intn(1000)) * time.Minute)
		if Changed(base, same) {
			t.Fatalf("iteration %d: deep copy reported as changed", i)
		}

		mutated := clone(base)
		mutations[rng.Intn(len(mutations))](mutated, rng.Intn(10))
		if !Changed(base, mutated) {
			t.Fatalf("iteration %d: mutation not detected", i)
		}
	}
}
