package grpc

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary logs method, status code, duration and peer of every call.
// Payloads are never logged.
func LoggingUnary(log logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		log.Info(ctx, "grpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"dur", time.Since(start),
			"peer", remote,
		)
		return resp, err
	}
}

// RecoverUnary turns a panicking handler into an Internal error.
func RecoverUnary(log logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(ctx, "panic",
					"reason", r,
					"stack", string(debug.Stack()),
					"method", info.FullMethod,
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}
