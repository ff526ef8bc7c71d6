package cli

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/config"
	"github.com/dmitrijs2005/herpsync/internal/client/services"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	serverfeed "github.com/dmitrijs2005/herpsync/internal/server/feed"
	gs "github.com/dmitrijs2005/herpsync/internal/server/grpc"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/repomanager"
	serverservices "github.com/dmitrijs2005/herpsync/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const offlineAddr = "127.0.0.1:1"

type testBackend struct {
	addr    string
	feedURL string
	svc     *serverservices.SyncService
	hub     *serverfeed.Hub
}

// startBackend runs the real sync server on loopback with in-memory storage.
func startBackend(t *testing.T) *testBackend {
	t.Helper()
	hub := serverfeed.NewHub(16, logging.Discard())
	svc := serverservices.NewSyncService(repomanager.NewInMemoryRepositoryManager(), common.RealClock{}, hub, logging.Discard())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.NewGRPCServer(lis.Addr().String(), svc, logging.Discard()).Serve(ctx, lis) }()

	ts := httptest.NewServer(serverfeed.NewServer("", hub, logging.Discard()).Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})

	return &testBackend{
		addr:    lis.Addr().String(),
		feedURL: "ws" + strings.TrimPrefix(ts.URL, "http") + common.FeedPath,
		svc:     svc,
		hub:     hub,
	}
}

func testConfig(t *testing.T, addr, feedURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "data", "herpsync.db")
	cfg.ServerEndpointAddr = addr
	cfg.OwnerID = "u1"
	cfg.RequestTimeout = 2 * time.Second
	cfg.OnlineCheckInterval = 50 * time.Millisecond
	cfg.AutoSyncInterval = 0
	cfg.LogLevel = "error"
	if feedURL != "" {
		cfg.FeedURL = feedURL
	}
	return cfg
}

func openApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewApp_CreatesDatabaseDir(t *testing.T) {
	cfg := testConfig(t, offlineAddr, "")
	openApp(t, cfg)

	_, err := os.Stat(cfg.DatabasePath)
	require.NoError(t, err)
}

func TestApp_ServiceLookup(t *testing.T) {
	a := openApp(t, testConfig(t, offlineAddr, ""))

	for _, name := range []string{"animal", "animals", "batch", "offspring_batches"} {
		svc, err := a.Service(name)
		require.NoError(t, err, name)
		require.NotNil(t, svc)
	}

	_, err := a.Service("snakes")
	require.ErrorIs(t, err, common.ErrUnknownTable)
}

func TestApp_SyncInvalidatesStatistics(t *testing.T) {
	be := startBackend(t)
	ctx := context.Background()

	writer := openApp(t, testConfig(t, be.addr, be.feedURL))
	reader := openApp(t, testConfig(t, be.addr, be.feedURL))

	rsvc, err := reader.Service("animal")
	require.NoError(t, err)
	stats, err := rsvc.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Total)

	wsvc, err := writer.Service("animal")
	require.NoError(t, err)
	_, err = wsvc.Create(ctx, map[string]any{"name": "Pixel", "status": "active"})
	require.NoError(t, err)
	require.NoError(t, writer.Engine().SyncNow(ctx))

	require.NoError(t, reader.Engine().SyncNow(ctx))
	stats, err = rsvc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.By["status"]["active"])
}

func TestApp_DaemonFollowsFeed(t *testing.T) {
	be := startBackend(t)

	writer := openApp(t, testConfig(t, be.addr, be.feedURL))
	follower := openApp(t, testConfig(t, be.addr, be.feedURL))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- follower.RunDaemon(ctx) }()

	require.Eventually(t, func() bool { return be.hub.Subscribers("u1") == 1 }, 3*time.Second, 10*time.Millisecond)

	wsvc, err := writer.Service("animal")
	require.NoError(t, err)
	created, err := wsvc.Create(context.Background(), map[string]any{"name": "Pixel"})
	require.NoError(t, err)
	require.NoError(t, writer.Engine().SyncNow(context.Background()))

	fsvc, err := follower.Service("animal")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		list, err := fsvc.List(context.Background(), services.ListOptions{})
		return err == nil && len(list) == 1 && list[0].ID == created.ID
	}, 3*time.Second, 10*time.Millisecond)

	devices, err := be.svc.Devices(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, devices, 2, "writer reports its sync, follower registers on start")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("stderr fallback", func(t *testing.T) {
		cfg := &config.Config{LogLevel: "info"}
		var buf bytes.Buffer
		l, closer, err := newLogger(cfg, &buf)
		require.NoError(t, err)
		l.Info(context.Background(), "hello")
		require.NoError(t, closer.Close())
		assert.Contains(t, buf.String(), "hello")
	})

	t.Run("rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "client.log")
		cfg := &config.Config{LogLevel: "debug", LogFile: path}
		l, closer, err := newLogger(cfg, nil)
		require.NoError(t, err)
		l.Debug(context.Background(), "to file")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
	})
}
