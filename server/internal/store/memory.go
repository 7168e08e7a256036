package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Memory is a thread-safe in-memory AlertStore.
type Memory struct {
	mu     sync.RWMutex
	alerts map[string]*types.Alert
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{alerts: make(map[string]*types.Alert)}
}

func (m *Memory) findOpenLocked(machineID string, t types.AlertType) *types.Alert {
	for _, a := range m.alerts {
		if !a.IsResolved && a.MachineID == machineID && a.Type == t {
			return a
		}
	}
	return nil
}

func (m *Memory) FindOpenAlert(_ context.Context, machineID string, t types.AlertType) (*types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a := m.findOpenLocked(machineID, t); a != nil {
		cp := copyAlert(a)
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) InsertAlert(_ context.Context, a *types.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !a.IsResolved && m.findOpenLocked(a.MachineID, a.Type) != nil {
		return false, nil
	}
	cp := copyAlert(a)
	m.alerts[a.ID] = &cp
	return true, nil
}

func (m *Memory) ResolveOpenAlerts(_ context.Context, machineID string, t types.AlertType, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if !a.IsResolved && a.MachineID == machineID && a.Type == t {
			resolve(a, at)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListOpenAlerts(ctx context.Context, machineID string) ([]types.Alert, error) {
	return m.ListAlerts(ctx, AlertFilter{MachineID: machineID, State: StateOpen})
}

func (m *Memory) ListAlerts(_ context.Context, f AlertFilter) ([]types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Alert, 0)
	for _, a := range m.alerts {
		if f.MachineID != "" && a.MachineID != f.MachineID {
			continue
		}
		if !matchState(a, f.State) {
			continue
		}
		out = append(out, copyAlert(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ResolveAlert(_ context.Context, id string, at time.Time) (*types.Alert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	changed := !a.IsResolved
	if changed {
		resolve(a, at)
	}
	cp := copyAlert(a)
	return &cp, changed, nil
}

func (m *Memory) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.alerts {
		if a.IsResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(m.alerts, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }

func matchState(a *types.Alert, s State) bool {
	switch s {
	case StateOpen:
		return !a.IsResolved
	case StateResolved:
		return a.IsResolved
	}
	return true
}

func resolve(a *types.Alert, at time.Time) {
	at = at.UTC()
	a.IsResolved = true
	a.ResolvedAt = &at
}

func copyAlert(a *types.Alert) types.Alert {
	cp := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	return cp
}
