package shipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/healthwatch/healthwatch/agent/internal/config"
	"github.com/healthwatch/healthwatch/pkg/rpc"
	"github.com/healthwatch/healthwatch/pkg/types"
)

// TransmissionError reports a snapshot that did not reach the server or was
// rejected by it. Permanent is set when resending the same snapshot cannot
// succeed (invalid payload, bad credentials).
type TransmissionError struct {
	Endpoint  string
	Permanent bool
	Err       error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("shipper: send to %s: %v", e.Endpoint, e.Err)
}

func (e *TransmissionError) Unwrap() error { return e.Err }

// Shipper sends snapshots to one server endpoint.
type Shipper struct {
	cfg    config.AgentConfig
	dialFn dialFunc // injectable for tests

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// dialFunc opens a gRPC connection. Abstracted so tests can point the
// shipper at an in-process server.
type dialFunc func(ctx context.Context, endpoint string) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	return &Shipper{cfg: cfg, dialFn: defaultDial}
}

// Send submits snap and returns the server's acknowledgement.
func (s *Shipper) Send(ctx context.Context, snap *types.Snapshot) (*rpc.Ack, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, &TransmissionError{Endpoint: s.cfg.ServerEndpoint, Err: err}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	if s.cfg.ServerAuth.Mode == "apikey" {
		sendCtx = metadata.AppendToOutgoingContext(sendCtx,
			s.cfg.ServerAuth.EffectiveHeader(), s.cfg.ServerAuth.Key())
	}

	ack, err := rpc.NewSnapshotClient(conn).SubmitSnapshot(sendCtx, snap)
	if err != nil {
		permanent := isPermanentError(err)
		if !permanent {
			s.reset(conn)
		}
		return nil, &TransmissionError{Endpoint: s.cfg.ServerEndpoint, Permanent: permanent, Err: err}
	}
	if !ack.Accepted {
		return ack, &TransmissionError{
			Endpoint:  s.cfg.ServerEndpoint,
			Permanent: true,
			Err:       fmt.Errorf("server rejected snapshot: %s", ack.Message),
		}
	}

	slog.Debug("shipper: snapshot delivered",
		"machine", snap.MachineID, "open_alerts", ack.OpenAlerts)
	return ack, nil
}

// Close releases the cached connection, if any.
func (s *Shipper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Shipper) connect(ctx context.Context) (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)
	s.conn = conn
	return conn, nil
}

// reset drops conn if it is still the cached connection.
func (s *Shipper) reset(conn *grpc.ClientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// isPermanentError returns true for gRPC errors that indicate the snapshot
// itself or the credentials are invalid, so resending cannot help.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// IsPermanent reports whether err is a TransmissionError marked permanent.
func IsPermanent(err error) bool {
	var te *TransmissionError
	return errors.As(err, &te) && te.Permanent
}

// defaultDial opens a plaintext gRPC connection. Transport security is
// expected to be provided by the network (VPN, mesh sidecar).
func defaultDial(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, endpoint, //nolint:staticcheck // NewClient needs grpc >= 1.63
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(rpc.CallOption()),
	)
}
