package receiver_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/healthwatch/healthwatch/pkg/rpc"
	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/alerts"
	"github.com/healthwatch/healthwatch/server/internal/auth"
	"github.com/healthwatch/healthwatch/server/internal/config"
	"github.com/healthwatch/healthwatch/server/internal/receiver"
	"github.com/healthwatch/healthwatch/server/internal/store"
)

type fixture struct {
	client   *rpc.SnapshotClient
	machines *store.Machines
	alerts   *store.Memory
}

// startServer starts a gRPC server on a random TCP port. A nil analyzer uses
// a real alert engine over the fixture's memory store.
func startServer(t *testing.T, interceptor grpc.UnaryServerInterceptor, analyzer receiver.Analyzer) *fixture {
	t.Helper()

	f := &fixture{
		machines: store.NewMachines(time.Hour),
		alerts:   store.NewMemory(),
	}
	if analyzer == nil {
		analyzer = alerts.New(f.alerts, config.Thresholds{DaysBehindHigh: 30, SleepTimeoutMinutes: 10, RiskCeiling: 50})
	}
	rec := receiver.New(f.machines, f.alerts, analyzer)

	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	rpc.RegisterSnapshotServer(srv, rec)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	f.client = rpc.NewSnapshotClient(conn)
	return f
}

// allowAll is a no-op interceptor that passes every call through.
func allowAll(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}

func snapshot(id string) *types.Snapshot {
	return &types.Snapshot{
		MachineID:      id,
		Hostname:       id + ".corp",
		Platform:       types.PlatformLinux,
		Timestamp:      time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		DiskEncryption: &types.DiskEncryption{Encrypted: true, Method: "LUKS"},
		OSUpdates:      &types.OSUpdates{UpToDate: true},
		Antivirus:      &types.Antivirus{Installed: true, Enabled: true, Name: "ClamAV"},
		SleepSettings:  &types.SleepSettings{SleepTimeout: types.IntPtr(5)},
	}
}

func TestSubmitSnapshot_StoresSnapshot(t *testing.T) {
	f := startServer(t, allowAll, nil)

	ack, err := f.client.SubmitSnapshot(context.Background(), snapshot("m1"))
	if err != nil {
		t.Fatalf("SubmitSnapshot: %v", err)
	}
	if !ack.Accepted || ack.OpenAlerts != 0 {
		t.Errorf("ack = %+v, want accepted with no open alerts", ack)
	}

	e, ok := f.machines.Get("m1")
	if !ok {
		t.Fatal("machines.Get: expected entry, got none")
	}
	if e.Snapshot.DiskEncryption.Method != "LUKS" {
		t.Errorf("Method: got %q, want LUKS", e.Snapshot.DiskEncryption.Method)
	}
	if !e.Snapshot.Timestamp.Equal(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("Timestamp: got %v", e.Snapshot.Timestamp)
	}
}

func TestSubmitSnapshot_OpensAlerts(t *testing.T) {
	f := startServer(t, allowAll, nil)
	ctx := context.Background()

	snap := snapshot("m1")
	snap.DiskEncryption = &types.DiskEncryption{Encrypted: false}
	snap.SleepSettings = &types.SleepSettings{Never: true}

	ack, err := f.client.SubmitSnapshot(ctx, snap)
	if err != nil {
		t.Fatalf("SubmitSnapshot: %v", err)
	}
	if ack.OpenAlerts != 2 {
		t.Errorf("OpenAlerts: got %d, want 2", ack.OpenAlerts)
	}

	ack, err = f.client.SubmitSnapshot(ctx, snapshot("m1"))
	if err != nil {
		t.Fatalf("second SubmitSnapshot: %v", err)
	}
	if ack.OpenAlerts != 0 {
		t.Errorf("OpenAlerts after fix: got %d, want 0", ack.OpenAlerts)
	}
}

func TestSubmitSnapshot_Invalid_InvalidArgument(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Snapshot)
	}{
		{"missing machine id", func(s *types.Snapshot) { s.MachineID = "" }},
		{"missing category", func(s *types.Snapshot) { s.Antivirus = nil }},
		{"zero timestamp", func(s *types.Snapshot) { s.Timestamp = time.Time{} }},
	}
	f := startServer(t, allowAll, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapshot("bad")
			tc.mutate(snap)
			_, err := f.client.SubmitSnapshot(context.Background(), snap)
			if code := status.Code(err); code != codes.InvalidArgument {
				t.Errorf("code: got %v, want InvalidArgument", code)
			}
		})
	}
	if n := f.machines.Count(); n != 0 {
		t.Errorf("machines.Count: got %d, want 0", n)
	}
}

func TestSubmitSnapshot_UpdateExistingMachine(t *testing.T) {
	f := startServer(t, allowAll, nil)
	ctx := context.Background()

	if _, err := f.client.SubmitSnapshot(ctx, snapshot("m1")); err != nil {
		t.Fatalf("first SubmitSnapshot: %v", err)
	}
	next := snapshot("m1")
	next.Hostname = "renamed.corp"
	if _, err := f.client.SubmitSnapshot(ctx, next); err != nil {
		t.Fatalf("second SubmitSnapshot: %v", err)
	}

	if f.machines.Count() != 1 {
		t.Errorf("machines.Count: got %d, want 1 (updates, not appends)", f.machines.Count())
	}
	e, _ := f.machines.Get("m1")
	if e.Snapshot.Hostname != "renamed.corp" {
		t.Errorf("Hostname: got %q, want renamed.corp", e.Snapshot.Hostname)
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, *types.Snapshot) error {
	return &store.PersistenceError{Op: "insert alert", Err: errors.New("disk full")}
}

func TestSubmitSnapshot_AnalyzeFailure_Internal(t *testing.T) {
	f := startServer(t, allowAll, failingAnalyzer{})

	_, err := f.client.SubmitSnapshot(context.Background(), snapshot("m1"))
	if code := status.Code(err); code != codes.Internal {
		t.Fatalf("code: got %v, want Internal", code)
	}
	if _, ok := f.machines.Get("m1"); !ok {
		t.Error("snapshot should still be recorded in the fleet view")
	}
}

func TestSubmitSnapshot_WithAPIKeyInterceptor(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want codes.Code
	}{
		{"correct key", "testkey", codes.OK},
		{"wrong key", "wrongkey", codes.Unauthenticated},
		{"missing key", "", codes.Unauthenticated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := startServer(t, auth.APIKeyInterceptor("apikey", "x-api-key", "testkey"), nil)
			ctx := context.Background()
			if tc.key != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", tc.key)
			}
			_, err := f.client.SubmitSnapshot(ctx, snapshot("m1"))
			if code := status.Code(err); code != tc.want {
				t.Errorf("code: got %v, want %v", code, tc.want)
			}
			wantStored := tc.want == codes.OK
			if _, ok := f.machines.Get("m1"); ok != wantStored {
				t.Errorf("stored: got %v, want %v", ok, wantStored)
			}
		})
	}
}
