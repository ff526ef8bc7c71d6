package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/spf13/cobra"
)

const pingTimeout = 3 * time.Second

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and pull remote ones",
		Long: `Run one sync cycle against the backend.

When the backend cannot be reached nothing is attempted and queued changes
keep their retry budget.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				e := a.Engine()
				e.CheckConnectivity(ctx, pingTimeout)
				if !e.Online() {
					st, err := e.Status(ctx)
					if err != nil {
						return err
					}
					return fmt.Errorf("%w: %d changes stay queued", common.ErrUnavailable, st.PendingCount)
				}
				if err := e.SyncNow(ctx); err != nil {
					return err
				}
				st, err := e.Status(ctx)
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Report(st.LastReport)
			})
		},
	}
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending changes, last sync and local counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				e := a.Engine()
				if probe {
					e.CheckConnectivity(ctx, pingTimeout)
				}
				st, err := e.Status(ctx)
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Status(st)
			})
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", true, "ping the backend to report connectivity")
	return cmd
}

func NewDeviceCommand(rootOpts *RootOptions) *cobra.Command {
	var register bool

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Show this installation's device record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				r := a.Registry()
				if register {
					if err := r.Register(ctx); err != nil {
						return err
					}
				}
				d, err := r.Device(ctx)
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Device(d)
			})
		},
	}
	cmd.Flags().BoolVar(&register, "register", false, "announce the device to the backend")
	return cmd
}
