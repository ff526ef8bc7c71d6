package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"github.com/dmitrijs2005/herpsync/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultTimeout = 10 * time.Second

type GRPCClient struct {
	endpointURL string
	timeout     time.Duration
	conn        *grpc.ClientConn
}

// NewGRPCClient prepares a lazy connection to endpointURL; no network I/O
// happens until the first call, so it succeeds while offline. Extra dial
// options are appended after the defaults.
func NewGRPCClient(endpointURL string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &GRPCClient{endpointURL: endpointURL, timeout: timeout}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.timeoutInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", endpointURL, err)
	}
	c.conn = conn
	return c, nil
}

// timeoutInterceptor bounds every call that arrives without a deadline.
func (c *GRPCClient) timeoutInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, wire.MethodPing, &emptypb.Empty{}, resp); err != nil {
		return c.mapError(err)
	}
	if resp.GetFields()["status"].GetStringValue() != "OK" {
		return common.ErrUnavailable
	}
	return nil
}

func (c *GRPCClient) Upsert(ctx context.Context, table string, r *record.Record) error {
	return c.write(ctx, wire.MethodUpsert, table, r)
}

func (c *GRPCClient) SoftDelete(ctx context.Context, table string, r *record.Record) error {
	return c.write(ctx, wire.MethodSoftDelete, table, r)
}

func (c *GRPCClient) write(ctx context.Context, method, table string, r *record.Record) error {
	req, err := wire.EncodeWrite(table, r)
	if err != nil {
		return err
	}
	if err := c.conn.Invoke(ctx, method, req, new(structpb.Struct)); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *GRPCClient) ChangesSince(ctx context.Context, table, ownerID string, since time.Time) ([]*record.Record, error) {
	req := wire.EncodeChangesQuery(wire.ChangesQuery{Table: table, OwnerID: ownerID, Since: since})

	resp := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, wire.MethodChangesSince, req, resp); err != nil {
		return nil, c.mapError(err)
	}
	return wire.DecodeRecords(resp)
}

func (c *GRPCClient) UpsertDevice(ctx context.Context, d record.Device) error {
	if err := c.conn.Invoke(ctx, wire.MethodUpsertDevice, wire.EncodeDevice(d), new(emptypb.Empty)); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", common.ErrUnavailable, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, st.Message())
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %s", common.ErrPermissionDenied, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrValidation, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
