package grpc

import (
	"context"

	"github.com/dmitrijs2005/herpsync/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// syncBackendServer is the server side of the SyncBackend service. Payloads
// are protobuf well-known types, laid out by package wire.
type syncBackendServer interface {
	Ping(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Upsert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SoftDelete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangesSince(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	UpsertDevice(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: wire.ServiceName,
	HandlerType: (*syncBackendServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", newEmpty, syncBackendServer.Ping),
		unary("Upsert", newStruct, syncBackendServer.Upsert),
		unary("SoftDelete", newStruct, syncBackendServer.SoftDelete),
		unary("ChangesSince", newStruct, syncBackendServer.ChangesSince),
		unary("UpsertDevice", newStruct, syncBackendServer.UpsertDevice),
	},
	Streams: []grpc.StreamDesc{},
}

func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

// unary builds the method descriptor that decodes the request, runs the
// interceptor chain and dispatches to call.
func unary[Req, Resp proto.Message](
	name string,
	newReq func() Req,
	call func(syncBackendServer, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	fullMethod := "/" + wire.ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(syncBackendServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(Req))
			})
		},
	}
}
