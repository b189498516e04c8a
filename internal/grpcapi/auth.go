package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Rorqualx/browserctl/internal/authgate"
	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/dispatch"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
)

type principalKey struct{}

func principalFrom(ctx context.Context) *coretypes.Principal {
	p, _ := ctx.Value(principalKey{}).(*coretypes.Principal)
	return p
}

func firstMeta(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// UnaryAuthInterceptor authenticates every unary call against whatever
// credential is present in the incoming metadata, the same three
// kinds the REST front-end accepts, and stores the resulting
// Principal in context for the handler to read back.
func UnaryAuthInterceptor(svc *dispatch.Service) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if info.FullMethod == healthMethodName {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		creds := authgate.Credentials{
			Authorization: firstMeta(md, "authorization"),
			APIKey:        firstMeta(md, "x-api-key"),
			SessionID:     firstMeta(md, "x-session-id"),
		}
		principal, _, err := svc.Authenticate(ctx, creds)
		if err != nil {
			return nil, authStatus(err)
		}
		return handler(context.WithValue(ctx, principalKey{}, principal), req)
	}
}

// StreamAuthInterceptor mirrors UnaryAuthInterceptor for the
// server-streaming method.
func StreamAuthInterceptor(svc *dispatch.Service) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		md, _ := metadata.FromIncomingContext(ss.Context())
		creds := authgate.Credentials{
			Authorization: firstMeta(md, "authorization"),
			APIKey:        firstMeta(md, "x-api-key"),
			SessionID:     firstMeta(md, "x-session-id"),
		}
		principal, _, err := svc.Authenticate(ss.Context(), creds)
		if err != nil {
			return authStatus(err)
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: context.WithValue(ss.Context(), principalKey{}, principal)})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func authStatus(err error) error {
	env := errenvelope.New(errenvelope.CodeUnauthenticated, coretypes.CategoryAuthentication, 401).
		WithUserMessage(authMessage(err)).Build()
	return status.New(codes.Code(errenvelope.GRPCCode(env.StatusCode)), env.UserMessage).Err()
}

func authMessage(err error) string {
	if ae, ok := err.(*coretypes.AuthError); ok {
		return ae.Error()
	}
	return "authentication required"
}
