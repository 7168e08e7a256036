package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

type stubProber struct {
	platform string
	release  chan struct{}
}

func (s *stubProber) Platform() string { return s.platform }

func (s *stubProber) CheckEncryption(context.Context) *types.DiskEncryption {
	<-s.release
	return &types.DiskEncryption{Encrypted: true, Method: "LUKS"}
}

func (s *stubProber) CheckUpdates(context.Context) *types.OSUpdates {
	<-s.release
	return &types.OSUpdates{Error: true, Message: "apt: exit status 100"}
}

func (s *stubProber) CheckAntivirus(context.Context) *types.Antivirus {
	<-s.release
	return &types.Antivirus{Installed: true, Enabled: true, Name: "ClamAV"}
}

func (s *stubProber) CheckSleep(context.Context) *types.SleepSettings {
	<-s.release
	return &types.SleepSettings{SleepTimeout: types.IntPtr(5)}
}

func fakeHost(f HostFacts) HostSource {
	return func(context.Context) HostFacts { return f }
}

func newTestBuilder(p *stubProber, machineID string, facts HostFacts) *Builder {
	b := New(p, machineID)
	b.host = fakeHost(facts)
	b.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.FixedZone("X", 3600)) }
	return b
}

func TestBuild_AllCategoriesPopulated(t *testing.T) {
	p := &stubProber{platform: types.PlatformLinux, release: make(chan struct{})}
	close(p.release)
	b := newTestBuilder(p, "", HostFacts{
		HostID:   "host-123",
		Hostname: "build-07",
		OS:       types.OSInfo{Type: "linux", Release: "6.8.0", Arch: "x86_64", Uptime: 3600},
		System:   types.SystemInfo{TotalMemory: 16 << 30, CPUs: 8},
	})

	snap := b.Build(context.Background())

	if err := types.Validate(snap); err != nil {
		t.Fatalf("built snapshot does not validate: %v", err)
	}
	if snap.MachineID != "host-123" {
		t.Errorf("MachineID = %q, want host id", snap.MachineID)
	}
	if snap.Platform != types.PlatformLinux || snap.Hostname != "build-07" {
		t.Errorf("platform/hostname = %q/%q", snap.Platform, snap.Hostname)
	}
	if snap.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp not UTC: %v", snap.Timestamp)
	}
	if !snap.OSUpdates.Error {
		t.Error("failed category should be carried as an error payload")
	}
	if !snap.DiskEncryption.Encrypted {
		t.Error("healthy categories should be unaffected by a failed one")
	}
	if snap.SystemInfo.CPUs != 8 {
		t.Errorf("CPUs = %d, want 8", snap.SystemInfo.CPUs)
	}
}

func TestBuild_ChecksRunConcurrently(t *testing.T) {
	p := &stubProber{platform: types.PlatformDarwin, release: make(chan struct{})}
	b := newTestBuilder(p, "m1", HostFacts{})

	done := make(chan *types.Snapshot)
	go func() { done <- b.Build(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Build returned before checks were released")
	case <-time.After(20 * time.Millisecond):
	}
	close(p.release)

	select {
	case snap := <-done:
		if snap.SleepSettings == nil || snap.Antivirus == nil {
			t.Errorf("incomplete snapshot: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Build did not return after checks completed")
	}
}

func TestResolveMachineID(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		facts      HostFacts
		want       string
	}{
		{"configured wins", "laptop-1", HostFacts{HostID: "h", Hostname: "n"}, "laptop-1"},
		{"host id", "", HostFacts{HostID: "h", Hostname: "n"}, "h"},
		{"hostname fallback", "", HostFacts{Hostname: "n"}, "n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := &Builder{machineID: tc.configured}
			if got := b.resolveMachineID(tc.facts); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
