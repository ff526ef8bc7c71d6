// Package server wires the sync backend together: storage, the sync service,
// the gRPC endpoint and the change feed.
package server

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/server/config"
	"github.com/dmitrijs2005/herpsync/internal/server/feed"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/herpsync/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/herpsync/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repos       repomanager.RepositoryManager
	hub         *feed.Hub
	syncService *services.SyncService
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	var repos repomanager.RepositoryManager
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, data is kept in memory")
		repos = repomanager.NewInMemoryRepositoryManager()
	} else {
		pg, err := repomanager.NewPostgresRepositoryManager(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		repos = pg
	}

	hub := feed.NewHub(c.FeedBuffer, logger)
	svc := services.NewSyncService(repos, common.RealClock{}, hub, logger)

	return &App{config: c, logger: logger, repos: repos, hub: hub, syncService: svc}, nil
}

// Run serves gRPC and the change feed until ctx is cancelled, a termination
// signal arrives or either server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.repos.Close()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.syncService, app.logger).Run(ctx)
	})
	g.Go(func() error {
		return feed.NewServer(app.config.EndpointAddrFeed, app.hub, app.logger).Run(ctx)
	})

	err := g.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}
