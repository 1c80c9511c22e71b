package sensor_node

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const statusMethod = "/soilnode.v1.NodeStatus/GetStatus"

// StatusServer is the server side of the NodeStatus service.
type StatusServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var statusServiceDesc = grpc.ServiceDesc{
	ServiceName: "soilnode.v1.NodeStatus",
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "soilnode/v1/status.proto",
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatusServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// StatusHandler serves node snapshots over gRPC.
type StatusHandler struct {
	node *Node
}

func NewStatusHandler(n *Node) *StatusHandler { return &StatusHandler{node: n} }

func (h *StatusHandler) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := h.node.Status(ctx)
	switch {
	case errors.Is(err, ErrStopped):
		return nil, status.Error(codes.Unavailable, err.Error())
	case err != nil:
		return nil, status.FromContextError(err).Err()
	}
	out, err := st.toStruct()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

func RegisterStatusService(s grpc.ServiceRegistrar, n *Node) {
	s.RegisterService(&statusServiceDesc, NewStatusHandler(n))
}

// FetchStatus calls NodeStatus/GetStatus on conn.
func FetchStatus(ctx context.Context, conn grpc.ClientConnInterface, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, statusMethod, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Status) toStruct() (*structpb.Struct, error) {
	metrics := make([]any, 0, len(s.Metrics))
	for _, m := range s.Metrics {
		entry := map[string]any{
			"metric":    string(m.Metric),
			"published": m.Published,
		}
		if m.Device != "" {
			entry["device"] = m.Device
		}
		if m.Published {
			entry["last_published"] = m.LastPublished
			entry["next_deadline"] = m.NextDeadline.UTC().Format(time.RFC3339Nano)
		}
		metrics = append(metrics, entry)
	}
	return structpb.NewStruct(map[string]any{
		"mode":           s.Mode.String(),
		"uptime_seconds": s.Uptime.Seconds(),
		"clicks":         s.Clicks,
		"holds":          s.Holds,
		"metrics":        metrics,
	})
}
