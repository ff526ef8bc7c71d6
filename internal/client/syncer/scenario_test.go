package syncer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/client"
	"github.com/dmitrijs2005/herpsync/internal/client/models"
	"github.com/dmitrijs2005/herpsync/internal/client/services"
	"github.com/dmitrijs2005/herpsync/internal/client/store"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
	gs "github.com/dmitrijs2005/herpsync/internal/server/grpc"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/repomanager"
	serverservices "github.com/dmitrijs2005/herpsync/internal/server/services"
	"github.com/dmitrijs2005/herpsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// startServer runs the real sync backend over an in-process listener.
func startServer(t *testing.T, clock common.Clock) (*serverservices.SyncService, *bufconn.Listener) {
	t.Helper()
	svc := serverservices.NewSyncService(repomanager.NewInMemoryRepositoryManager(), clock, nil, logging.Discard())
	lis := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.NewGRPCServer("bufnet", svc, logging.Discard()).Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return svc, lis
}

func dial(t *testing.T, lis *bufconn.Listener) *client.GRPCClient {
	t.Helper()
	c, err := client.NewGRPCClient("passthrough:///bufnet", time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// testDevice is one client installation: its own database, repository and
// engine, sharing the test clock with the backend.
type testDevice struct {
	store   *store.Store
	animals services.RecordService
	engine  *Engine
}

func newTestDevice(t *testing.T, name string, clock common.Clock, backend client.Backend) *testDevice {
	t.Helper()
	st, err := store.Open(context.Background(), "file:"+t.Name()+"-"+name+"?mode=memory&cache=shared", clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return &testDevice{
		store:   st,
		animals: services.NewRecordService(st, models.Animals, "u1", clock, &testutil.StubIDGenerator{Prefix: name}, logging.Discard()),
		engine:  NewEngine(st, backend, "u1", clock, logging.Discard()),
	}
}

func (d *testDevice) create(t *testing.T, names ...string) []*record.Record {
	t.Helper()
	out := make([]*record.Record, 0, len(names))
	for _, n := range names {
		r, err := d.animals.Create(context.Background(), map[string]any{"name": n, "species": "ball_python"})
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func (d *testDevice) active(t *testing.T) []*record.Record {
	t.Helper()
	list, err := d.animals.List(context.Background(), services.ListOptions{SortBy: "name"})
	require.NoError(t, err)
	return list
}

func ids(list []*record.Record) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.ID)
	}
	return out
}

func animalNames(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("Animal %02d", i))
	}
	return out
}

// TestScenarios walks two devices of one owner through initial sync, growth
// on the second device, a conflicting edit and a soft delete.
func TestScenarios(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewStubClock(testutil.Epoch)
	_, lis := startServer(t, clock)

	dev1 := newTestDevice(t, "d1", clock, dial(t, lis))
	dev2 := newTestDevice(t, "d2", clock, dial(t, lis))
	step := func() { clock.Advance(time.Second) }

	// A: five records reach a fresh device exactly once.
	first := dev1.create(t, animalNames(1, 5)...)
	step()
	require.NoError(t, dev1.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev2.engine.SyncNow(ctx))

	got := dev2.active(t)
	require.Len(t, got, 5)
	assert.ElementsMatch(t, ids(first), ids(got))

	// B: nine more from device 2 bring device 1 to fourteen.
	step()
	dev2.create(t, animalNames(6, 14)...)
	step()
	require.NoError(t, dev2.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev1.engine.SyncNow(ctx))

	assert.Len(t, dev1.active(t), 14)
	assert.Len(t, dev2.active(t), 14)

	// C: both devices edit notes without syncing; the later edit wins.
	target := first[0].ID
	step()
	_, err := dev1.animals.Update(ctx, target, map[string]any{"notes": "shed on day 3"})
	require.NoError(t, err)
	step()
	_, err = dev2.animals.Update(ctx, target, map[string]any{"notes": "refused food"})
	require.NoError(t, err)

	step()
	require.NoError(t, dev1.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev2.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev1.engine.SyncNow(ctx))

	for name, d := range map[string]*testDevice{"dev1": dev1, "dev2": dev2} {
		r, err := d.animals.Read(ctx, target)
		require.NoError(t, err, name)
		assert.Equal(t, "refused food", r.Field("notes"), name)
	}

	// D: a delete on device 2 hides the record on device 1 but keeps it.
	victim := first[1].ID
	step()
	_, err = dev2.animals.Delete(ctx, victim)
	require.NoError(t, err)
	step()
	require.NoError(t, dev2.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev1.engine.SyncNow(ctx))

	assert.NotContains(t, ids(dev1.active(t)), victim)
	assert.Len(t, dev1.active(t), 13)

	all, err := dev1.animals.List(ctx, services.ListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 14)
	tomb, err := dev1.animals.Read(ctx, victim)
	require.NoError(t, err)
	assert.True(t, tomb.Deleted)

	for _, d := range []*testDevice{dev1, dev2} {
		n, err := d.store.PendingCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

// sharedRecord gives two synced devices one common record and returns its id.
func sharedRecord(t *testing.T, clock *testutil.StubClock, dev1, dev2 *testDevice) string {
	t.Helper()
	ctx := context.Background()
	r := dev1.create(t, "Pixel")[0]
	clock.Advance(time.Second)
	require.NoError(t, dev1.engine.SyncNow(ctx))
	clock.Advance(time.Second)
	require.NoError(t, dev2.engine.SyncNow(ctx))
	require.Len(t, dev2.active(t), 1)
	return r.ID
}

func TestConflictingEditsConvergeRegardlessOfSyncOrder(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewStubClock(testutil.Epoch)
	svc, lis := startServer(t, clock)

	dev1 := newTestDevice(t, "d1", clock, dial(t, lis))
	dev2 := newTestDevice(t, "d2", clock, dial(t, lis))
	step := func() { clock.Advance(time.Second) }
	target := sharedRecord(t, clock, dev1, dev2)

	step()
	_, err := dev1.animals.Update(ctx, target, map[string]any{"notes": "device1 T1"})
	require.NoError(t, err)
	step()
	edited, err := dev2.animals.Update(ctx, target, map[string]any{"notes": "device2 T2"})
	require.NoError(t, err)

	// The later edit reaches the backend first.
	step()
	require.NoError(t, dev2.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev1.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev2.engine.SyncNow(ctx))

	for name, d := range map[string]*testDevice{"dev1": dev1, "dev2": dev2} {
		r, err := d.animals.Read(ctx, target)
		require.NoError(t, err, name)
		assert.Equal(t, "device2 T2", r.Field("notes"), name)
		assert.Equal(t, edited.UpdatedAt, r.UpdatedAt, name)
	}

	remote, err := svc.ChangesSince(ctx, record.TableAnimals, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "device2 T2", remote[0].Field("notes"))
	assert.Equal(t, edited.UpdatedAt, remote[0].UpdatedAt)
}

func TestOfflineEditReachesDevicesThatSyncedMeanwhile(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewStubClock(testutil.Epoch)
	_, lis := startServer(t, clock)

	dev1 := newTestDevice(t, "d1", clock, dial(t, lis))
	dev2 := newTestDevice(t, "d2", clock, dial(t, lis))
	step := func() { clock.Advance(time.Second) }
	target := sharedRecord(t, clock, dev1, dev2)

	step()
	_, err := dev1.animals.Update(ctx, target, map[string]any{"notes": "weighed offline"})
	require.NoError(t, err)

	// device 2 moves its watermark past the edit before device 1 uploads it
	step()
	require.NoError(t, dev2.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev1.engine.SyncNow(ctx))
	step()
	require.NoError(t, dev2.engine.SyncNow(ctx))

	r, err := dev2.animals.Read(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "weighed offline", r.Field("notes"))
}

func TestLocalFirstWhileUnreachable(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewStubClock(testutil.Epoch)

	lis := bufconn.Listen(1 << 10)
	require.NoError(t, lis.Close())
	dev := newTestDevice(t, "d1", clock, dial(t, lis))

	queued := func() int {
		n, err := dev.store.PendingCount(ctx)
		require.NoError(t, err)
		return n
	}

	mutations := []func() error{
		func() error { _, err := dev.animals.Create(ctx, map[string]any{"name": "Pixel"}); return err },
		func() error { _, err := dev.animals.Create(ctx, map[string]any{"name": "Nova"}); return err },
		func() error { _, err := dev.animals.Update(ctx, "d1-1", map[string]any{"morph": "albino"}); return err },
		func() error { _, err := dev.animals.Delete(ctx, "d1-2"); return err },
		func() error { _, err := dev.animals.Restore(ctx, "d1-2"); return err },
	}
	for i, m := range mutations {
		clock.Advance(time.Second)
		require.NoError(t, m(), "mutation %d", i)
		assert.Equal(t, i+1, queued())
	}

	_, err := dev.animals.Create(ctx, map[string]any{"name": "pixel"})
	require.ErrorIs(t, err, common.ErrDuplicateName)
	_, err = dev.animals.Create(ctx, map[string]any{"species": "corn_snake"})
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = dev.animals.Update(ctx, "missing", map[string]any{"name": "x"})
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, len(mutations), queued())

	assert.Len(t, dev.active(t), 2)

	err = dev.engine.SyncNow(ctx)
	require.ErrorIs(t, err, common.ErrSyncPull)
	assert.Equal(t, len(mutations), queued())

	st, err := dev.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, len(mutations), st.LastReport.Failed)
	assert.Equal(t, time.Unix(0, 0).UTC(), st.Watermark, "watermark stays at epoch")
}

func TestPushIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewStubClock(testutil.Epoch)
	svc, lis := startServer(t, clock)
	backend := dial(t, lis)
	dev := newTestDevice(t, "d1", clock, backend)

	dev.create(t, "Pixel")
	changes, err := dev.store.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	// the first attempt reached the backend but its answer was lost
	clock.Advance(time.Second)
	require.NoError(t, backend.Upsert(ctx, changes[0].Table, changes[0].Data))

	clock.Advance(time.Second)
	require.NoError(t, dev.engine.SyncNow(ctx))

	remote, err := svc.ChangesSince(ctx, record.TableAnimals, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, changes[0].RecordID, remote[0].ID)

	n, err := dev.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, dev.active(t), 1)
}

// orderedBackend records the notes value of every pushed snapshot.
type orderedBackend struct {
	client.Backend
	mu    sync.Mutex
	notes []string
}

func (b *orderedBackend) Upsert(ctx context.Context, table string, r *record.Record) error {
	b.mu.Lock()
	b.notes = append(b.notes, r.Field("notes"))
	b.mu.Unlock()
	return b.Backend.Upsert(ctx, table, r)
}

func TestPushPreservesMutationOrder(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewStubClock(testutil.Epoch)
	svc, lis := startServer(t, clock)
	backend := &orderedBackend{Backend: dial(t, lis)}
	dev := newTestDevice(t, "d1", clock, backend)

	r := dev.create(t, "Pixel")[0]
	for _, v := range []string{"t1", "t2", "t3"} {
		clock.Advance(time.Second)
		_, err := dev.animals.Update(ctx, r.ID, map[string]any{"notes": v})
		require.NoError(t, err)
	}

	clock.Advance(time.Second)
	require.NoError(t, dev.engine.SyncNow(ctx))

	assert.Equal(t, []string{"", "t1", "t2", "t3"}, backend.notes)

	remote, err := svc.ChangesSince(ctx, record.TableAnimals, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "t3", remote[0].Field("notes"))

	local, err := dev.animals.Read(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "t3", local.Field("notes"))
}
