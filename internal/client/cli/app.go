package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/herpsync/internal/client/client"
	"github.com/dmitrijs2005/herpsync/internal/client/config"
	"github.com/dmitrijs2005/herpsync/internal/client/device"
	"github.com/dmitrijs2005/herpsync/internal/client/feed"
	"github.com/dmitrijs2005/herpsync/internal/client/models"
	"github.com/dmitrijs2005/herpsync/internal/client/services"
	"github.com/dmitrijs2005/herpsync/internal/client/store"
	"github.com/dmitrijs2005/herpsync/internal/client/syncer"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/filex"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"golang.org/x/sync/errgroup"
)

// App wires the local store, the backend client and the sync components
// for one owner.
type App struct {
	cfg     *config.Config
	logger  logging.Logger
	store   *store.Store
	backend *client.GRPCClient

	services map[string]services.RecordService
	registry *device.Registry
	engine   *syncer.Engine
	listener *feed.Listener

	unsubscribe func()
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	dbPath, err := filex.EnsureParentDir(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("prepare database dir: %w", err)
	}
	c := *cfg
	c.DatabasePath = dbPath

	clock := common.RealClock{}
	st, err := store.Open(ctx, c.DSN(), clock)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	backend, err := client.NewGRPCClient(c.ServerEndpointAddr, c.RequestTimeout)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &App{
		cfg:      &c,
		logger:   logger,
		store:    st,
		backend:  backend,
		services: map[string]services.RecordService{},
	}

	ids := common.UUIDGenerator{}
	a.registry = device.NewRegistry(st, backend, c.OwnerID, ids, logger)
	a.engine = syncer.NewEngine(st, backend, c.OwnerID, clock, logger, syncer.WithDevice(a.registry))
	a.listener = feed.NewListener(st, c.OwnerID, clock, logger)

	for _, k := range models.Kinds() {
		svc := services.NewRecordService(st, k, c.OwnerID, clock, ids, logger)
		a.services[k.Table] = svc
		a.listener.AddRefresher(k.Table, svc)
	}

	a.unsubscribe = a.engine.Subscribe(func(ev syncer.Event) {
		if ev.Type != syncer.EventCompleted {
			return
		}
		for _, svc := range a.services {
			svc.Invalidate()
		}
	})

	return a, nil
}

// Service returns the repository for a kind given by table name or alias.
func (a *App) Service(kind string) (services.RecordService, error) {
	k, err := models.LookupKind(kind)
	if err != nil {
		return nil, err
	}
	return a.services[k.Table], nil
}

func (a *App) Engine() *syncer.Engine { return a.engine }

func (a *App) Registry() *device.Registry { return a.registry }

// RunDaemon keeps the local store in sync until ctx is done: it watches
// connectivity, syncs periodically and applies change-feed events.
func (a *App) RunDaemon(ctx context.Context) error {
	if err := a.registry.Register(ctx); err != nil {
		return err
	}

	src, err := feed.NewWebSocketSource(a.cfg.FeedURL, a.cfg.OwnerID, a.logger)
	if err != nil {
		return err
	}
	return a.runDaemon(ctx, src)
}

func (a *App) runDaemon(ctx context.Context, src feed.Source) error {
	stop := a.listener.OnChange(func(n feed.Notification) {
		a.logger.Info(ctx, "remote change applied", "kind", n.Kind, "action", n.Action, "id", n.Record.ID)
	})
	defer stop()

	a.logger.Info(ctx, "daemon started",
		"owner", a.cfg.OwnerID, "server", a.cfg.ServerEndpointAddr,
		"check_interval", a.cfg.OnlineCheckInterval, "auto_sync", a.cfg.AutoSyncInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.engine.RunMonitor(gctx, a.cfg.OnlineCheckInterval) })
	if a.cfg.AutoSyncInterval > 0 {
		g.Go(func() error { return a.engine.RunAutoSync(gctx, a.cfg.AutoSyncInterval) })
	}
	g.Go(func() error { return a.listener.Run(gctx, src) })

	err := g.Wait()
	a.logger.Info(ctx, "daemon stopped")
	return err
}

func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return errors.Join(a.backend.Close(), a.store.Close())
}

// newLogger builds the client logger. Without a log file it writes to
// fallback.
func newLogger(cfg *config.Config, fallback io.Writer) (logging.Logger, io.Closer, error) {
	if cfg.LogFile == "" {
		return logging.NewTextLogger(fallback, cfg.LogLevel), io.NopCloser(nil), nil
	}
	w, err := logging.NewRotatingWriter(logging.FileOptions{Path: cfg.LogFile, MaxBackups: 3, MaxAgeDays: 28})
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.NewTextLogger(w, cfg.LogLevel), w, nil
}
