package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/herpsync/internal/server/services"
	"github.com/dmitrijs2005/herpsync/internal/testutil"
	"github.com/dmitrijs2005/herpsync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// dialBuf serves svc over an in-memory listener and returns a connection
// to it.
func dialBuf(t *testing.T, svc SyncService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewGRPCServer("bufnet", svc, logging.Discard()).Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return conn
}

func newSyncService() (*services.SyncService, *testutil.StubClock) {
	clock := testutil.NewStubClock(testutil.Epoch)
	return services.NewSyncService(repomanager.NewInMemoryRepositoryManager(), clock, nil, logging.Discard()), clock
}

func sample(id string) *record.Record {
	return &record.Record{
		ID: id, OwnerID: "u1",
		Data:      map[string]any{"name": "Pixel", "weight": 12.5},
		CreatedAt: testutil.Epoch.Add(-time.Hour),
		UpdatedAt: testutil.Epoch.Add(-time.Hour),
	}
}

func TestPing_OK(t *testing.T) {
	svc, _ := newSyncService()
	conn := dialBuf(t, svc)

	resp := new(structpb.Struct)
	require.NoError(t, conn.Invoke(context.Background(), wire.MethodPing, &emptypb.Empty{}, resp))
	assert.Equal(t, "OK", resp.GetFields()["status"].GetStringValue())
}

func TestUpsertThenChangesSince(t *testing.T) {
	svc, _ := newSyncService()
	conn := dialBuf(t, svc)
	ctx := context.Background()

	req, err := wire.EncodeWrite(record.TableAnimals, sample("a1"))
	require.NoError(t, err)
	resp := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, wire.MethodUpsert, req, resp))

	stored, err := wire.DecodeRecord(resp)
	require.NoError(t, err)
	assert.Equal(t, testutil.Epoch.Add(-time.Hour), stored.UpdatedAt)
	assert.Equal(t, "Pixel", stored.Field("name"))

	q := wire.EncodeChangesQuery(wire.ChangesQuery{Table: record.TableAnimals, OwnerID: "u1", Since: time.Unix(0, 0)})
	list := new(structpb.ListValue)
	require.NoError(t, conn.Invoke(ctx, wire.MethodChangesSince, q, list))

	got, err := wire.DecodeRecords(list)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12.5, got[0].Data["weight"])
}

func TestSoftDelete_ReturnsTombstone(t *testing.T) {
	svc, _ := newSyncService()
	conn := dialBuf(t, svc)

	req, err := wire.EncodeWrite(record.TableOffspringBatches, sample("b1"))
	require.NoError(t, err)
	resp := new(structpb.Struct)
	require.NoError(t, conn.Invoke(context.Background(), wire.MethodSoftDelete, req, resp))

	stored, err := wire.DecodeRecord(resp)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
}

func TestUpsertDevice(t *testing.T) {
	svc, _ := newSyncService()
	conn := dialBuf(t, svc)
	ctx := context.Background()

	d := record.Device{DeviceID: "d1", OwnerID: "u1", SyncVersion: 1, LastSyncAt: testutil.Epoch}
	require.NoError(t, conn.Invoke(ctx, wire.MethodUpsertDevice, wire.EncodeDevice(d), new(emptypb.Empty)))

	list, err := svc.Devices(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []record.Device{d}, list)
}

func TestErrorCodes(t *testing.T) {
	svc, _ := newSyncService()
	conn := dialBuf(t, svc)
	ctx := context.Background()

	unknown, err := wire.EncodeWrite("users", sample("x"))
	require.NoError(t, err)
	err = conn.Invoke(ctx, wire.MethodUpsert, unknown, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = conn.Invoke(ctx, wire.MethodChangesSince, &structpb.Struct{}, new(structpb.ListValue))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err := wire.EncodeWrite(record.TableAnimals, sample("a1"))
	require.NoError(t, err)
	require.NoError(t, conn.Invoke(ctx, wire.MethodUpsert, req, new(structpb.Struct)))

	stolen := sample("a1")
	stolen.OwnerID = "u2"
	req, err = wire.EncodeWrite(record.TableAnimals, stolen)
	require.NoError(t, err)
	err = conn.Invoke(ctx, wire.MethodUpsert, req, new(structpb.Struct))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

type failingService struct{ SyncService }

func (failingService) ChangesSince(context.Context, string, string, time.Time) ([]*record.Record, error) {
	return nil, errors.New("db down")
}

func (failingService) UpsertDevice(context.Context, record.Device) error {
	panic("boom")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	conn := dialBuf(t, failingService{})
	ctx := context.Background()

	q := wire.EncodeChangesQuery(wire.ChangesQuery{Table: record.TableAnimals, OwnerID: "u1"})
	err := conn.Invoke(ctx, wire.MethodChangesSince, q, new(structpb.ListValue))
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "db down")

	d := record.Device{DeviceID: "d1", OwnerID: "u1"}
	err = conn.Invoke(ctx, wire.MethodUpsertDevice, wire.EncodeDevice(d), new(emptypb.Empty))
	assert.Equal(t, codes.Internal, status.Code(err), "panic is recovered")
}

func TestToStatus_NotFound(t *testing.T) {
	s := NewGRPCServer("", nil, logging.Discard())
	err := s.toStatus(context.Background(), common.ErrNotFound)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	svc, _ := newSyncService()
	srv := NewGRPCServer("127.0.0.1:0", svc, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, "Run returned error on graceful stop")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	svc, _ := newSyncService()
	srv := NewGRPCServer("127.0.0.1:99999", svc, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.Error(t, srv.Run(ctx))
}
