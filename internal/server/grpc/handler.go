package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue("OK"),
	}}, nil
}

func (s *GRPCServer) Upsert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	table, rec, err := wire.DecodeWrite(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	stored, err := s.sync.Upsert(ctx, table, rec)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	resp, err := wire.EncodeRecord(stored)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) SoftDelete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	table, rec, err := wire.DecodeWrite(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	stored, err := s.sync.SoftDelete(ctx, table, rec)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	resp, err := wire.EncodeRecord(stored)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) ChangesSince(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	q, err := wire.DecodeChangesQuery(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	list, err := s.sync.ChangesSince(ctx, q.Table, q.OwnerID, q.Since)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	resp, err := wire.EncodeRecords(list)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) UpsertDevice(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	d, err := wire.DecodeDevice(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if err := s.sync.UpsertDevice(ctx, d); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

// toStatus maps service errors onto gRPC codes. Unexpected errors are logged
// and hidden from the caller.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrUnknownTable):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
