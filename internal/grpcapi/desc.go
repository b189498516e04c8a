package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName      = "browserctl.controlplane.v1.ControlPlane"
	healthMethodName = "/" + serviceName + "/GetHealth"
)

// CommandStream is the narrow server-streaming interface StreamCommand
// needs; grpc.ServerStream satisfies it once wrapped with the request's
// context.
type CommandStream interface {
	Context() context.Context
	Send(*structpb.Struct) error
}

type commandStream struct {
	grpc.ServerStream
}

func (s *commandStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func unaryHandler(name string, method func(*Server, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		s, ok := srv.(*Server)
		if !ok {
			return nil, fmt.Errorf("grpcapi: unexpected service implementation %T", srv)
		}
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(s, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(s, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// ServiceDesc is registered with a *grpc.Server in place of a
// generated <name>_grpc.pb.go, since this front-end carries its
// payloads as google.protobuf.Struct instead of dedicated message
// types.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: unaryHandler("CreateSession", (*Server).CreateSession)},
		{MethodName: "CreateContext", Handler: unaryHandler("CreateContext", (*Server).CreateContext)},
		{MethodName: "ExecuteCommand", Handler: unaryHandler("ExecuteCommand", (*Server).ExecuteCommand)},
		{MethodName: "GetHealth", Handler: unaryHandler("GetHealth", (*Server).GetHealth)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamCommand",
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				s, ok := srv.(*Server)
				if !ok {
					return fmt.Errorf("grpcapi: unexpected service implementation %T", srv)
				}
				req := &structpb.Struct{}
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return s.StreamCommand(req, &commandStream{ServerStream: stream})
			},
		},
	},
	Metadata: "browserctl/controlplane.proto",
}

// Register attaches the control plane's service to grpcServer. Build
// grpcServer with grpc.ChainUnaryInterceptor(UnaryMetricsInterceptor(),
// UnaryAuthInterceptor(svc)) and the matching stream chain so every
// call is measured and authenticated before it reaches Server's
// methods.
func Register(grpcServer *grpc.Server, impl *Server) {
	grpcServer.RegisterService(&ServiceDesc, impl)
}
