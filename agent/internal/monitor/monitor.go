// Package monitor drives the agent's check-and-send cycle.
//
// A Monitor owns the single "last transmitted" slot. Each cycle builds a
// snapshot, asks the gate whether it must be sent, sends it, and only on a
// successful send replaces the slot. Cycles are serialized: a manual RunNow
// waits for an in-flight scheduled cycle rather than racing it.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/healthwatch/healthwatch/agent/internal/gate"
	"github.com/healthwatch/healthwatch/pkg/rpc"
	"github.com/healthwatch/healthwatch/pkg/types"
)

// Builder produces a fresh snapshot.
type Builder interface {
	Build(ctx context.Context) *types.Snapshot
}

// Sender transmits a snapshot to the server.
type Sender interface {
	Send(ctx context.Context, snap *types.Snapshot) (*rpc.Ack, error)
}

// Outcome summarises one cycle.
type Outcome struct {
	Sent   bool
	Reason gate.Reason
	Ack    *rpc.Ack
	Err    error
}

// Monitor runs cycles on a schedule and on demand.
type Monitor struct {
	builder Builder
	sender  Sender
	now     func() time.Time

	cycleMu sync.Mutex // serializes cycles and guards the last-sent slot
	last    *types.Snapshot
	lastAt  time.Time

	cfgMu     sync.Mutex
	interval  time.Duration
	heartbeat time.Duration
	reset     chan struct{}
}

// New returns a Monitor. interval and heartbeat may be changed later with
// SetInterval and SetHeartbeat.
func New(b Builder, s Sender, interval, heartbeat time.Duration) *Monitor {
	return &Monitor{
		builder:   b,
		sender:    s,
		now:       time.Now,
		interval:  interval,
		heartbeat: heartbeat,
		reset:     make(chan struct{}, 1),
	}
}

// SetInterval changes the cycle interval. A running Run loop picks it up
// immediately.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.cfgMu.Lock()
	changed := d != m.interval
	m.interval = d
	m.cfgMu.Unlock()
	if changed {
		select {
		case m.reset <- struct{}{}:
		default:
		}
	}
}

// SetHeartbeat changes the heartbeat used by subsequent cycles.
func (m *Monitor) SetHeartbeat(d time.Duration) {
	if d <= 0 {
		return
	}
	m.cfgMu.Lock()
	m.heartbeat = d
	m.cfgMu.Unlock()
}

func (m *Monitor) settings() (interval, heartbeat time.Duration) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	return m.interval, m.heartbeat
}

// Run executes one cycle immediately and then one per interval until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.RunNow(ctx)

	interval, _ := m.settings()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reset:
			interval, _ = m.settings()
			ticker.Reset(interval)
			slog.Info("monitor: interval changed", "interval", interval)
		case <-ticker.C:
			m.RunNow(ctx)
		}
	}
}

// RunNow runs a single cycle, waiting for any in-flight cycle to finish first.
func (m *Monitor) RunNow(ctx context.Context) Outcome {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.cycle(ctx, false)
}

// ForceSend runs a cycle that transmits regardless of the gate decision.
func (m *Monitor) ForceSend(ctx context.Context) Outcome {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.cycle(ctx, true)
}

func (m *Monitor) cycle(ctx context.Context, force bool) Outcome {
	if ctx.Err() != nil {
		return Outcome{Err: ctx.Err()}
	}

	snap := m.builder.Build(ctx)
	_, heartbeat := m.settings()
	now := m.now()

	send, reason := gate.ShouldTransmit(m.last, m.lastAt, snap, now, heartbeat)
	if !send && !force {
		slog.Debug("monitor: snapshot unchanged, skipping send", "machine", snap.MachineID)
		return Outcome{Reason: reason}
	}

	ack, err := m.sender.Send(ctx, snap)
	if err != nil {
		slog.Error("monitor: transmission failed",
			"machine", snap.MachineID, "reason", reason, "err", err)
		return Outcome{Reason: reason, Ack: ack, Err: err}
	}

	m.last = snap
	m.lastAt = now
	slog.Info("monitor: snapshot sent",
		"machine", snap.MachineID, "reason", reason, "open_alerts", ack.OpenAlerts)
	return Outcome{Sent: true, Reason: reason, Ack: ack}
}

// LastSent returns the last successfully transmitted snapshot and its send
// time. The snapshot is nil until the first successful send.
func (m *Monitor) LastSent() (*types.Snapshot, time.Time) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.last, m.lastAt
}
