package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/server"
	"github.com/dmitrijs2005/herpsync/internal/server/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, sync, err := logging.NewProductionZap(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer sync()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "init failed", "error", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "server stopped with error", "error", err)
	}
}
