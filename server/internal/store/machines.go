package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/metrics"
)

// Entry is a snapshot together with the time it was last received.
type Entry struct {
	Snapshot  *types.Snapshot
	UpdatedAt time.Time
}

// Machines is a thread-safe in-memory fleet view: the last snapshot per
// machine id. A background goroutine (Run) periodically evicts machines that
// have not reported within the configured TTL. A zero TTL disables eviction.
type Machines struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// NewMachines creates a Machines registry with the given TTL.
func NewMachines(ttl time.Duration) *Machines {
	return &Machines{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the snapshot for snap.MachineID.
// Callers must not modify snap after calling Put.
func (m *Machines) Put(snap *types.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[snap.MachineID] = &Entry{
		Snapshot:  snap,
		UpdatedAt: m.now(),
	}
}

// Get returns the Entry for the given machine and whether it was found.
// The entry may be stale if the TTL has elapsed but Run has not yet evicted it.
func (m *Machines) Get(machineID string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[machineID]
	return e, ok
}

// Live is Get restricted to entries reported within the TTL.
func (m *Machines) Live(machineID string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[machineID]
	if !ok || (m.ttl > 0 && !e.UpdatedAt.After(m.now().Add(-m.ttl))) {
		return nil, false
	}
	return e, true
}

// List returns all live entries sorted by machine id.
// Stale entries that have not yet been evicted are excluded.
func (m *Machines) List() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := m.now().Add(-m.ttl)
	out := make([]*Entry, 0, len(m.data))
	for _, e := range m.data {
		if m.ttl == 0 || e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Snapshot.MachineID < out[j].Snapshot.MachineID
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (m *Machines) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (m *Machines) Evict(now time.Time) int {
	if m.ttl == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-m.ttl)
	removed := 0
	for id, e := range m.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(m.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second, maximum 1 hour) and blocks until ctx is cancelled.
func (m *Machines) Run(ctx context.Context) {
	if m.ttl == 0 {
		<-ctx.Done()
		return
	}
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Hour {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := m.Evict(now); n > 0 {
				slog.Info("store: evicted silent machines", "count", n)
				metrics.MachinesTracked.Set(float64(m.Count()))
			}
		}
	}
}
