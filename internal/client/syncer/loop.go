package syncer

import (
	"context"
	"time"
)

const defaultPingTimeout = 3 * time.Second

// RunMonitor pings the backend every interval until ctx is done.
func (e *Engine) RunMonitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.CheckConnectivity(ctx, defaultPingTimeout)
	for {
		select {
		case <-ticker.C:
			e.CheckConnectivity(ctx, defaultPingTimeout)
		case <-ctx.Done():
			return nil
		}
	}
}

// RunAutoSync triggers SyncNow every interval, skipping ticks while offline
// or while a sync is already running.
func (e *Engine) RunAutoSync(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.autoSync(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *Engine) autoSync(ctx context.Context) {
	switch {
	case !e.Online():
		e.logger.Debug(ctx, "auto-sync skipped, offline")
	case e.State() == StateSyncing:
		e.logger.Debug(ctx, "auto-sync skipped, sync in progress")
	default:
		_ = e.SyncNow(ctx)
	}
}
