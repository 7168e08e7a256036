package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/healthwatch/healthwatch/pkg/types"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "healthwatch.v1.SnapshotService"

	// SubmitSnapshotMethod is the full method path of the unary submit RPC.
	SubmitSnapshotMethod = "/" + ServiceName + "/SubmitSnapshot"
)

// Ack is the server's reply to SubmitSnapshot.
type Ack struct {
	Accepted   bool   `json:"accepted"`
	OpenAlerts int    `json:"openAlerts"`
	Message    string `json:"message,omitempty"`
}

// SnapshotServer is implemented by the server-side receiver.
type SnapshotServer interface {
	SubmitSnapshot(ctx context.Context, snap *types.Snapshot) (*Ack, error)
}

// RegisterSnapshotServer attaches srv to the gRPC server s.
func RegisterSnapshotServer(s grpc.ServiceRegistrar, srv SnapshotServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SnapshotServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitSnapshot", Handler: submitSnapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "healthwatch/v1/snapshot",
}

func submitSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.Snapshot)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SnapshotServer).SubmitSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SnapshotServer).SubmitSnapshot(ctx, req.(*types.Snapshot))
	}
	return interceptor(ctx, in, info, handler)
}

// SnapshotClient is a thin client for SnapshotService.
type SnapshotClient struct {
	cc grpc.ClientConnInterface
}

// NewSnapshotClient wraps an established connection.
func NewSnapshotClient(cc grpc.ClientConnInterface) *SnapshotClient {
	return &SnapshotClient{cc: cc}
}

// SubmitSnapshot sends snap and returns the server's acknowledgement.
func (c *SnapshotClient) SubmitSnapshot(ctx context.Context, snap *types.Snapshot, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := c.cc.Invoke(ctx, SubmitSnapshotMethod, snap, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
