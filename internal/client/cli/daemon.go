package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Stay running: watch connectivity, auto-sync and follow the change feed",
		Long: `Run in the foreground until interrupted.

The daemon pings the backend every --check-interval, syncs when it comes
back online and every --auto-sync, and applies change-feed events from
--feed-url as they arrive. Use --log-file to write a rotating log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return a.RunDaemon(ctx)
			})
		},
	}
}
