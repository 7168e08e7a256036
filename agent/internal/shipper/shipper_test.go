package shipper

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/healthwatch/healthwatch/agent/internal/config"
	"github.com/healthwatch/healthwatch/pkg/rpc"
	"github.com/healthwatch/healthwatch/pkg/types"
)

// mockServer implements rpc.SnapshotServer for testing.
type mockServer struct {
	mu       sync.Mutex
	received []*types.Snapshot
	keys     []string
	err      error // returned from every call when set
	reject   bool  // reply Accepted=false
}

func (m *mockServer) SubmitSnapshot(ctx context.Context, snap *types.Snapshot) (*rpc.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		m.keys = append(m.keys, md.Get("x-api-key")...)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.reject {
		return &rpc.Ack{Accepted: false, Message: "mock rejection"}, nil
	}
	m.received = append(m.received, snap)
	return &rpc.Ack{Accepted: true, OpenAlerts: 2}, nil
}

func (m *mockServer) snapshots() []*types.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Snapshot, len(m.received))
	copy(out, m.received)
	return out
}

// startTestServer starts an in-process gRPC server and returns a dial
// function that connects to it, counting dials.
func startTestServer(t *testing.T, srv *mockServer) (dialFunc, *int) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	gs := grpc.NewServer()
	rpc.RegisterSnapshotServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	addr := lis.Addr().String()
	dials := new(int)
	return func(ctx context.Context, _ string) (*grpc.ClientConn, error) {
		*dials++
		return grpc.DialContext(ctx, addr, //nolint:staticcheck
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}, dials
}

func testConfig() config.AgentConfig {
	return config.AgentConfig{
		ServerEndpoint: "test",
		SendTimeout:    5 * time.Second,
	}
}

func makeSnapshot(id string) *types.Snapshot {
	return &types.Snapshot{
		MachineID:      id,
		Platform:       types.PlatformLinux,
		Timestamp:      time.Now().UTC(),
		DiskEncryption: &types.DiskEncryption{Encrypted: true},
		OSUpdates:      &types.OSUpdates{UpToDate: true},
		Antivirus:      &types.Antivirus{Installed: true, Enabled: true},
		SleepSettings:  &types.SleepSettings{SleepTimeout: types.IntPtr(5), DisplaySleepTimeout: types.IntPtr(2)},
	}
}

func TestSend_Delivers(t *testing.T) {
	srv := &mockServer{}
	s := New(testConfig())
	var dials *int
	s.dialFn, dials = startTestServer(t, srv)
	t.Cleanup(func() { _ = s.Close() })

	for i := 0; i < 3; i++ {
		ack, err := s.Send(context.Background(), makeSnapshot("m1"))
		if err != nil {
			t.Fatalf("Send #%d: %v", i, err)
		}
		if !ack.Accepted || ack.OpenAlerts != 2 {
			t.Errorf("ack = %+v", ack)
		}
	}

	got := srv.snapshots()
	if len(got) != 3 {
		t.Fatalf("server received %d snapshots, want 3", len(got))
	}
	if got[0].MachineID != "m1" || *got[0].SleepSettings.SleepTimeout != 5 {
		t.Errorf("payload did not round-trip: %+v", got[0])
	}
	if *dials != 1 {
		t.Errorf("dialled %d times, want connection reuse", *dials)
	}
}

func TestSend_APIKeyMetadata(t *testing.T) {
	t.Setenv("HW_TEST_KEY", "s3cret")
	srv := &mockServer{}
	cfg := testConfig()
	cfg.ServerAuth = config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY"}
	s := New(cfg)
	s.dialFn, _ = startTestServer(t, srv)
	t.Cleanup(func() { _ = s.Close() })

	if _, err := s.Send(context.Background(), makeSnapshot("m1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(srv.keys) != 1 || srv.keys[0] != "s3cret" {
		t.Errorf("server saw keys %v, want [s3cret]", srv.keys)
	}
}

func TestSend_PermanentError(t *testing.T) {
	srv := &mockServer{err: status.Error(codes.InvalidArgument, "bad snapshot")}
	s := New(testConfig())
	var dials *int
	s.dialFn, dials = startTestServer(t, srv)
	t.Cleanup(func() { _ = s.Close() })

	for i := 0; i < 2; i++ {
		_, err := s.Send(context.Background(), makeSnapshot("m1"))
		var te *TransmissionError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want *TransmissionError", err)
		}
		if !te.Permanent || !IsPermanent(err) {
			t.Error("InvalidArgument should be permanent")
		}
	}
	if *dials != 1 {
		t.Errorf("permanent errors should keep the connection, dialled %d times", *dials)
	}
}

func TestSend_TransientErrorRedials(t *testing.T) {
	srv := &mockServer{err: status.Error(codes.Unavailable, "overloaded")}
	s := New(testConfig())
	var dials *int
	s.dialFn, dials = startTestServer(t, srv)
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Send(context.Background(), makeSnapshot("m1"))
	if err == nil || IsPermanent(err) {
		t.Fatalf("err = %v, want transient TransmissionError", err)
	}

	srv.mu.Lock()
	srv.err = nil
	srv.mu.Unlock()

	if _, err := s.Send(context.Background(), makeSnapshot("m1")); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if *dials != 2 {
		t.Errorf("dialled %d times, want redial after transient failure", *dials)
	}
}

func TestSend_Rejected(t *testing.T) {
	srv := &mockServer{reject: true}
	s := New(testConfig())
	s.dialFn, _ = startTestServer(t, srv)
	t.Cleanup(func() { _ = s.Close() })

	ack, err := s.Send(context.Background(), makeSnapshot("m1"))
	if !IsPermanent(err) {
		t.Fatalf("err = %v, want permanent TransmissionError", err)
	}
	if ack == nil || ack.Accepted {
		t.Errorf("ack = %+v, want rejection ack", ack)
	}
}

func TestSend_DialFailure(t *testing.T) {
	s := New(testConfig())
	s.dialFn = func(context.Context, string) (*grpc.ClientConn, error) {
		return nil, errors.New("no route to host")
	}
	_, err := s.Send(context.Background(), makeSnapshot("m1"))
	var te *TransmissionError
	if !errors.As(err, &te) || te.Permanent {
		t.Fatalf("err = %v, want transient TransmissionError", err)
	}
}

func TestIsPermanentError(t *testing.T) {
	tests := []struct {
		code codes.Code
		want bool
	}{
		{codes.InvalidArgument, true},
		{codes.Unauthenticated, true},
		{codes.PermissionDenied, true},
		{codes.Unavailable, false},
		{codes.DeadlineExceeded, false},
		{codes.Internal, false},
	}
	for _, tc := range tests {
		if got := isPermanentError(status.Error(tc.code, "x")); got != tc.want {
			t.Errorf("isPermanentError(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
