package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/herpsync/internal/client/config"
	"github.com/spf13/cobra"
)

// Output formats.
const (
	FormatAuto  = "auto"
	FormatTable = "table"
	FormatJSON  = "json"
)

var ValidFormats = []string{FormatAuto, FormatTable, FormatJSON}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Output string

	loader *config.Loader
	cfg    *config.Config
}

// NewRootCommand creates the root command of the herpsync client.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "herpsync",
		Short:         "Offline-first records for reptile breeders",
		Long:          "Keeps animals and offspring batches in a local database and syncs them with the herpsync backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidFormats)
			}
			cfg, err := opts.loader.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	opts.loader = config.NewLoader(cmd.PersistentFlags())
	cmd.PersistentFlags().StringVar(&opts.Output, "output", FormatAuto, "output format (auto|table|json)")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewDeviceCommand(opts))
	cmd.AddCommand(NewDaemonCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// withApp opens the application for one command and closes it afterwards.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	logger, logCloser, err := newLogger(o.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := NewApp(ctx, o.cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func (o *RootOptions) printer(cmd *cobra.Command) *printer {
	return newPrinter(cmd.OutOrStdout(), o.Output)
}
