// Package slawatchv1 declares the slawatch.v1.SLAWatch gRPC service. Messages
// are protobuf well-known types: requests carry the occurrence id in a
// StringValue and responses are Structs.
package slawatchv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "slawatch.v1.SLAWatch"

	GetProgressFullMethodName   = "/slawatch.v1.SLAWatch/GetProgress"
	WatchProgressFullMethodName = "/slawatch.v1.SLAWatch/WatchProgress"
	WatchHistoryFullMethodName  = "/slawatch.v1.SLAWatch/WatchHistory"
)

// Metadata keys carrying the viewer session.
const (
	MetadataUserID      = "x-user-id"
	MetadataRequestID   = "x-request-id"
	// MetadataHistoryLive ("true"/"false") overrides the server's default
	// history refresh mode for one stream.
	MetadataHistoryLive = "x-history-live"
)

// SLAWatchServer is the server API for the SLAWatch service.
type SLAWatchServer interface {
	GetProgress(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	WatchProgress(*wrapperspb.StringValue, SLAWatch_WatchProgressServer) error
	WatchHistory(*wrapperspb.StringValue, SLAWatch_WatchHistoryServer) error
}

// UnimplementedSLAWatchServer can be embedded to have forward compatible implementations.
type UnimplementedSLAWatchServer struct{}

func (UnimplementedSLAWatchServer) GetProgress(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetProgress not implemented")
}

func (UnimplementedSLAWatchServer) WatchProgress(*wrapperspb.StringValue, SLAWatch_WatchProgressServer) error {
	return status.Errorf(codes.Unimplemented, "method WatchProgress not implemented")
}

func (UnimplementedSLAWatchServer) WatchHistory(*wrapperspb.StringValue, SLAWatch_WatchHistoryServer) error {
	return status.Errorf(codes.Unimplemented, "method WatchHistory not implemented")
}

// SLAWatch_WatchProgressServer is the server stream of WatchProgress.
type SLAWatch_WatchProgressServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

// SLAWatch_WatchHistoryServer is the server stream of WatchHistory.
type SLAWatch_WatchHistoryServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type structServerStream struct {
	grpc.ServerStream
}

func (x *structServerStream) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterSLAWatchServer registers srv on s.
func RegisterSLAWatchServer(s grpc.ServiceRegistrar, srv SLAWatchServer) {
	s.RegisterService(&SLAWatch_ServiceDesc, srv)
}

func _SLAWatch_GetProgress_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SLAWatchServer).GetProgress(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetProgressFullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SLAWatchServer).GetProgress(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _SLAWatch_WatchProgress_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SLAWatchServer).WatchProgress(m, &structServerStream{stream})
}

func _SLAWatch_WatchHistory_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SLAWatchServer).WatchHistory(m, &structServerStream{stream})
}

// SLAWatch_ServiceDesc is the grpc.ServiceDesc for the SLAWatch service.
var SLAWatch_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SLAWatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetProgress",
			Handler:    _SLAWatch_GetProgress_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchProgress",
			Handler:       _SLAWatch_WatchProgress_Handler,
			ServerStreams: true,
		},
		{
			StreamName:    "WatchHistory",
			Handler:       _SLAWatch_WatchHistory_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "slawatch/v1/slawatch.proto",
}

// SLAWatchClient is the client API for the SLAWatch service.
type SLAWatchClient interface {
	GetProgress(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	WatchProgress(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (StructStreamClient, error)
	WatchHistory(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (StructStreamClient, error)
}

// StructStreamClient receives the Structs of a server stream.
type StructStreamClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type slaWatchClient struct {
	cc grpc.ClientConnInterface
}

// NewSLAWatchClient builds a client on cc.
func NewSLAWatchClient(cc grpc.ClientConnInterface) SLAWatchClient {
	return &slaWatchClient{cc}
}

func (c *slaWatchClient) GetProgress(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetProgressFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *slaWatchClient) WatchProgress(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (StructStreamClient, error) {
	return c.openStream(ctx, &SLAWatch_ServiceDesc.Streams[0], WatchProgressFullMethodName, in, opts...)
}

func (c *slaWatchClient) WatchHistory(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (StructStreamClient, error) {
	return c.openStream(ctx, &SLAWatch_ServiceDesc.Streams[1], WatchHistoryFullMethodName, in, opts...)
}

func (c *slaWatchClient) openStream(ctx context.Context, desc *grpc.StreamDesc, method string, in *wrapperspb.StringValue, opts ...grpc.CallOption) (StructStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	x := &structClientStream{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type structClientStream struct {
	grpc.ClientStream
}

func (x *structClientStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
