// Package grpc exposes planning over gRPC.
//
// The service speaks google.protobuf.Struct in both directions, so it needs
// no generated code: the descriptor below is what protoc-gen-go-grpc would
// emit for
//
//	service PlanService {
//	  rpc Plan(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc GetPlan(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "partwise.v1.PlanService"

	PlanMethod    = "/" + ServiceName + "/Plan"
	GetPlanMethod = "/" + ServiceName + "/GetPlan"
)

// PlanServiceServer is the server API for PlanService.
type PlanServiceServer interface {
	Plan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPlanServiceServer registers srv with s.
func RegisterPlanServiceServer(s grpc.ServiceRegistrar, srv PlanServiceServer) {
	s.RegisterService(&PlanServiceDesc, srv)
}

func planHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlanServiceServer).Plan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PlanMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PlanServiceServer).Plan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getPlanHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlanServiceServer).GetPlan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetPlanMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PlanServiceServer).GetPlan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PlanServiceDesc is the grpc.ServiceDesc for PlanService.
var PlanServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlanServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Plan", Handler: planHandler},
		{MethodName: "GetPlan", Handler: getPlanHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "partwise/v1/plan.proto",
}

// PlanServiceClient is the client API for PlanService.
type PlanServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPlanServiceClient creates a client on cc.
func NewPlanServiceClient(cc grpc.ClientConnInterface) *PlanServiceClient {
	return &PlanServiceClient{cc: cc}
}

// Plan plans the tables described by in.
func (c *PlanServiceClient) Plan(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PlanMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPlan fetches a recorded plan.
func (c *PlanServiceClient) GetPlan(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetPlanMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
