package snapshot

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/healthwatch/healthwatch/agent/internal/probe"
	"github.com/healthwatch/healthwatch/pkg/types"
)

// HostFacts is the host metadata attached to every snapshot.
type HostFacts struct {
	HostID   string
	Hostname string
	OS       types.OSInfo
	System   types.SystemInfo
}

// HostSource gathers HostFacts. Missing facts are left at their zero value.
type HostSource func(ctx context.Context) HostFacts

// Builder produces snapshots for one machine.
type Builder struct {
	prober    probe.Prober
	machineID string
	host      HostSource
	now       func() time.Time
}

// New returns a Builder. machineID overrides the detected host id when set.
func New(p probe.Prober, machineID string) *Builder {
	return &Builder{
		prober:    p,
		machineID: machineID,
		host:      GatherHost,
		now:       time.Now,
	}
}

// Build runs every check and returns the assembled snapshot.
func (b *Builder) Build(ctx context.Context) *types.Snapshot {
	snap := &types.Snapshot{
		Platform:  b.prober.Platform(),
		Timestamp: b.now().UTC(),
	}

	var wg sync.WaitGroup
	wg.Add(5)
	go func() { defer wg.Done(); snap.DiskEncryption = b.prober.CheckEncryption(ctx) }()
	go func() { defer wg.Done(); snap.OSUpdates = b.prober.CheckUpdates(ctx) }()
	go func() { defer wg.Done(); snap.Antivirus = b.prober.CheckAntivirus(ctx) }()
	go func() { defer wg.Done(); snap.SleepSettings = b.prober.CheckSleep(ctx) }()

	var facts HostFacts
	go func() { defer wg.Done(); facts = b.host(ctx) }()
	wg.Wait()

	snap.Hostname = facts.Hostname
	snap.OSInfo = facts.OS
	snap.SystemInfo = facts.System
	snap.MachineID = b.resolveMachineID(facts)
	return snap
}

// resolveMachineID prefers the configured id, then the host id, then the
// hostname.
func (b *Builder) resolveMachineID(f HostFacts) string {
	switch {
	case b.machineID != "":
		return b.machineID
	case f.HostID != "":
		return f.HostID
	case f.Hostname != "":
		return f.Hostname
	}
	name, _ := os.Hostname()
	return name
}

// GatherHost is the production HostSource backed by gopsutil.
func GatherHost(ctx context.Context) HostFacts {
	var f HostFacts

	if info, err := host.InfoWithContext(ctx); err != nil {
		slog.Warn("snapshot: host info unavailable", "err", err)
	} else {
		f.HostID = info.HostID
		f.Hostname = info.Hostname
		f.OS = types.OSInfo{
			Type:    info.OS,
			Release: info.KernelVersion,
			Arch:    info.KernelArch,
			Uptime:  info.Uptime,
		}
	}
	if f.Hostname == "" {
		f.Hostname, _ = os.Hostname()
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		slog.Warn("snapshot: memory stats unavailable", "err", err)
	} else {
		f.System.TotalMemory = vm.Total
		f.System.FreeMemory = vm.Free
	}

	if n, err := cpu.CountsWithContext(ctx, true); err != nil {
		slog.Warn("snapshot: cpu count unavailable", "err", err)
	} else {
		f.System.CPUs = n
	}

	// Load average is not reported on Windows; leave it empty there.
	if avg, err := load.AvgWithContext(ctx); err == nil {
		f.System.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	return f
}
