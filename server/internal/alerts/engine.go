package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/config"
	"github.com/healthwatch/healthwatch/server/internal/metrics"
	"github.com/healthwatch/healthwatch/server/internal/store"
)

// notifyTimeout bounds delivery of one event to all notifiers.
const notifyTimeout = 30 * time.Second

// Engine evaluates alert rules against incoming snapshots.
//
// Engine is safe for concurrent use; concurrent snapshots from the same
// machine rely on the store to keep at most one open alert per type.
type Engine struct {
	store      store.AlertStore
	thresholds config.Thresholds
	notifiers  []Notifier

	now   func() time.Time
	newID func() string

	inflight sync.WaitGroup
}

// New creates an Engine backed by st.
func New(st store.AlertStore, th config.Thresholds, notifiers ...Notifier) *Engine {
	return &Engine{
		store:      st,
		thresholds: th,
		notifiers:  notifiers,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Analyze applies every rule to snap. A rule whose store operations fail is
// logged and counted, and its error is collected; the remaining rules still
// run. The returned error, if any, is a *multierror.Error of
// *store.PersistenceError values.
func (e *Engine) Analyze(ctx context.Context, snap *types.Snapshot) error {
	start := time.Now()
	defer func() { metrics.AnalyzeDuration.Observe(time.Since(start).Seconds()) }()

	var errs *multierror.Error
	for _, r := range rules {
		for _, d := range r.eval(snap, e.thresholds) {
			var err error
			if d.open {
				err = e.createAlertIfNotExists(ctx, snap.MachineID, d)
			} else {
				err = e.resolveAlertByType(ctx, snap.MachineID, d.typ)
			}
			if err != nil {
				metrics.RuleErrors.WithLabelValues(string(d.typ)).Inc()
				slog.Error("alerts: rule failed",
					"rule", r.name,
					"machine", snap.MachineID,
					"type", d.typ,
					"err", err,
				)
				errs = multierror.Append(errs, fmt.Errorf("rule %s: %w", r.name, err))
				break
			}
		}
	}
	return errs.ErrorOrNil()
}

// createAlertIfNotExists opens an alert unless one is already open for the
// same machine and type. A concurrent insert that loses the race is a no-op.
func (e *Engine) createAlertIfNotExists(ctx context.Context, machineID string, d decision) error {
	existing, err := e.store.FindOpenAlert(ctx, machineID, d.typ)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	a := types.Alert{
		ID:        e.newID(),
		MachineID: machineID,
		Type:      d.typ,
		Severity:  d.severity,
		Title:     d.title,
		Message:   d.message,
		CreatedAt: e.now().UTC(),
	}
	created, err := e.store.InsertAlert(ctx, &a)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	metrics.AlertsOpened.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	slog.Warn("alert opened",
		"machine", machineID,
		"type", a.Type,
		"severity", a.Severity,
	)
	e.notify(Event{Kind: EventOpened, Alert: a})
	return nil
}

// resolveAlertByType closes any open alert of type t for the machine.
func (e *Engine) resolveAlertByType(ctx context.Context, machineID string, t types.AlertType) error {
	existing, err := e.store.FindOpenAlert(ctx, machineID, t)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	at := e.now().UTC()
	n, err := e.store.ResolveOpenAlerts(ctx, machineID, t, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	metrics.AlertsResolved.WithLabelValues(string(t)).Add(float64(n))
	slog.Info("alert resolved", "machine", machineID, "type", t)

	resolved := *existing
	resolved.IsResolved = true
	resolved.ResolvedAt = &at
	e.notify(Event{Kind: EventResolved, Alert: resolved})
	return nil
}

// Resolve manually resolves an alert by id and notifies on the transition.
func (e *Engine) Resolve(ctx context.Context, id string) (*types.Alert, error) {
	a, changed, err := e.store.ResolveAlert(ctx, id, e.now().UTC())
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.AlertsResolved.WithLabelValues(string(a.Type)).Inc()
		slog.Info("alert resolved manually", "machine", a.MachineID, "type", a.Type, "id", a.ID)
		e.notify(Event{Kind: EventResolved, Alert: *a})
	}
	return a, nil
}

// notify fans ev out to every notifier in the background.
func (e *Engine) notify(ev Event) {
	if len(e.notifiers) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		for _, n := range e.notifiers {
			if err := n.Notify(ctx, ev); err != nil {
				metrics.NotificationsFailed.WithLabelValues(n.Name()).Inc()
				slog.Error("alerts: notification failed",
					"target", n.Name(),
					"machine", ev.Alert.MachineID,
					"type", ev.Alert.Type,
					"err", err,
				)
			}
		}
	}()
}

// Wait blocks until all in-flight notifications have been delivered or
// have failed.
func (e *Engine) Wait() {
	e.inflight.Wait()
}
