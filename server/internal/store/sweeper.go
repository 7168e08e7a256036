package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/healthwatch/healthwatch/server/internal/metrics"
)

// Sweeper deletes resolved alerts older than the retention period.
type Sweeper struct {
	store     AlertStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewSweeper returns a Sweeper that runs every interval.
func NewSweeper(s AlertStore, retention, interval time.Duration) *Sweeper {
	return &Sweeper{store: s, retention: retention, interval: interval, now: time.Now}
}

// Sweep performs one retention pass and returns the number of deleted alerts.
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.retention)
	n, err := w.store.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RetentionDeleted.Add(float64(n))
		slog.Info("store: retention sweep deleted resolved alerts", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Run sweeps once per interval until ctx is cancelled. Failures are logged
// and retried on the next tick.
func (w *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := w.Sweep(ctx); err != nil {
				slog.Error("store: retention sweep failed", "err", err)
			}
		}
	}
}
