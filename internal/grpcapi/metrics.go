package grpcapi

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/Rorqualx/browserctl/internal/metrics"
)

// UnaryMetricsInterceptor records one RequestsTotal/RequestDuration
// observation per unary call, labeled by method and resulting gRPC code.
func UnaryMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordRequest("grpc", info.FullMethod, strconv.Itoa(int(status.Code(err))), time.Since(start))
		return resp, err
	}
}

// StreamMetricsInterceptor mirrors UnaryMetricsInterceptor for the
// server-streaming method.
func StreamMetricsInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		metrics.RecordRequest("grpc", info.FullMethod, strconv.Itoa(int(status.Code(err))), time.Since(start))
		return err
	}
}
