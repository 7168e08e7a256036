package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// ErrNotFound is returned when an alert id does not exist.
var ErrNotFound = errors.New("store: alert not found")

// State filters alerts by resolution.
type State string

const (
	StateOpen     State = "open"
	StateResolved State = "resolved"
	StateAll      State = "all"
)

// ParseState maps a query parameter to a State. Empty means StateAll.
func ParseState(s string) (State, error) {
	switch State(s) {
	case "", StateAll:
		return StateAll, nil
	case StateOpen, StateResolved:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown alert state %q: want open|resolved|all", s)
}

// AlertFilter selects alerts for ListAlerts. An empty MachineID matches all
// machines.
type AlertFilter struct {
	MachineID string
	State     State
}

// AlertStore persists alert records.
type AlertStore interface {
	// FindOpenAlert returns the unresolved alert for (machineID, t), or nil.
	FindOpenAlert(ctx context.Context, machineID string, t types.AlertType) (*types.Alert, error)

	// InsertAlert stores a. It reports false without error when an open alert
	// for the same (machine, type) already exists.
	InsertAlert(ctx context.Context, a *types.Alert) (bool, error)

	// ResolveOpenAlerts marks every open alert for (machineID, t) resolved at
	// the given time and returns how many changed.
	ResolveOpenAlerts(ctx context.Context, machineID string, t types.AlertType, at time.Time) (int, error)

	// ListOpenAlerts returns the unresolved alerts of one machine.
	ListOpenAlerts(ctx context.Context, machineID string) ([]types.Alert, error)

	// ListAlerts returns alerts matching f, newest first.
	ListAlerts(ctx context.Context, f AlertFilter) ([]types.Alert, error)

	// ResolveAlert resolves one alert by id and reports whether it was open.
	// Resolving an already resolved alert returns it unchanged. Unknown ids
	// yield ErrNotFound.
	ResolveAlert(ctx context.Context, id string, at time.Time) (*types.Alert, bool, error)

	// DeleteResolvedBefore removes resolved alerts whose resolution time is
	// before cutoff and returns how many were removed. Open alerts are never
	// touched.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
