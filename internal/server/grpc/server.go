// Package grpc serves the sync backend over gRPC.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"google.golang.org/grpc"
)

// SyncService is the backend logic the handlers delegate to.
type SyncService interface {
	Upsert(ctx context.Context, table string, r *record.Record) (*record.Record, error)
	SoftDelete(ctx context.Context, table string, r *record.Record) (*record.Record, error)
	ChangesSince(ctx context.Context, table, ownerID string, since time.Time) ([]*record.Record, error)
	UpsertDevice(ctx context.Context, d record.Device) error
}

type GRPCServer struct {
	address string
	sync    SyncService
	logger  logging.Logger
}

func NewGRPCServer(address string, svc SyncService, l logging.Logger) *GRPCServer {
	return &GRPCServer{
		address: address,
		sync:    svc,
		logger:  l.With("module", "grpc_server"),
	}
}

// NewServer builds a grpc.Server with the interceptor chain and the sync
// backend registered on it.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoverUnary(s.logger), LoggingUnary(s.logger)),
	}, opts...)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
