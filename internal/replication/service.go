package replication

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName    = "lwwdoc.Replica"
	pushMethodName = "/" + serviceName + "/Push"
	pullMethodName = "/" + serviceName + "/Pull"
)

// ReplicaServer is the server API for the lwwdoc.Replica service.
type ReplicaServer interface {
	// Push merges the given snapshot and answers with the merged state.
	Push(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Pull answers with the registers of a document written after a
	// given timestamp.
	Pull(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ReplicaServiceDesc describes the lwwdoc.Replica service.
var ReplicaServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ReplicaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Push", Handler: pushHandler},
		{MethodName: "Pull", Handler: pullHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lwwdoc/replica",
}

// RegisterReplicaServer registers srv with s.
func RegisterReplicaServer(s grpc.ServiceRegistrar, srv ReplicaServer) {
	s.RegisterService(&ReplicaServiceDesc, srv)
}

func pushHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicaServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pushMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReplicaServer).Push(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func pullHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplicaServer).Pull(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReplicaServer).Pull(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ReplicaClient is the client API for the lwwdoc.Replica service.
type ReplicaClient interface {
	Push(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Pull(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type replicaClient struct {
	cc grpc.ClientConnInterface
}

// NewReplicaClient creates a client on top of cc.
func NewReplicaClient(cc grpc.ClientConnInterface) ReplicaClient {
	return &replicaClient{cc: cc}
}

func (c *replicaClient) Push(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, pushMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replicaClient) Pull(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, pullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
