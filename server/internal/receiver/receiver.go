package receiver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/healthwatch/healthwatch/pkg/rpc"
	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/metrics"
	"github.com/healthwatch/healthwatch/server/internal/store"
)

// Analyzer evaluates alert rules against a snapshot.
type Analyzer interface {
	Analyze(ctx context.Context, snap *types.Snapshot) error
}

// Receiver implements rpc.SnapshotServer.
type Receiver struct {
	machines *store.Machines
	alerts   store.AlertStore
	engine   Analyzer
}

// New creates a Receiver that records snapshots in machines and evaluates
// them with engine.
func New(machines *store.Machines, alerts store.AlertStore, engine Analyzer) *Receiver {
	return &Receiver{machines: machines, alerts: alerts, engine: engine}
}

// SubmitSnapshot is the unary RPC handler called by agents.
func (r *Receiver) SubmitSnapshot(ctx context.Context, snap *types.Snapshot) (*rpc.Ack, error) {
	if err := types.Validate(snap); err != nil {
		metrics.SnapshotsReceived.WithLabelValues(metrics.ResultInvalid).Inc()
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			slog.Warn("receiver: rejected snapshot", "field", ve.Field, "reason", ve.Reason)
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	r.machines.Put(snap)
	metrics.MachinesTracked.Set(float64(r.machines.Count()))

	if err := r.engine.Analyze(ctx, snap); err != nil {
		metrics.SnapshotsReceived.WithLabelValues(metrics.ResultError).Inc()
		slog.Error("receiver: alert analysis failed", "machine", snap.MachineID, "err", err)
		return nil, status.Error(codes.Internal, "alert analysis failed")
	}

	open, err := r.alerts.ListOpenAlerts(ctx, snap.MachineID)
	if err != nil {
		metrics.SnapshotsReceived.WithLabelValues(metrics.ResultError).Inc()
		slog.Error("receiver: list open alerts failed", "machine", snap.MachineID, "err", err)
		return nil, status.Error(codes.Internal, "alert lookup failed")
	}

	metrics.SnapshotsReceived.WithLabelValues(metrics.ResultAccepted).Inc()
	slog.Debug("receiver: snapshot accepted",
		"machine", snap.MachineID,
		"platform", snap.Platform,
		"open_alerts", len(open),
	)
	return &rpc.Ack{Accepted: true, OpenAlerts: len(open)}, nil
}
