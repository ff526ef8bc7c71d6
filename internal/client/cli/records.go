package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/herpsync/internal/client/services"
	"github.com/spf13/cobra"
)

const kindHelp = "kind is animal(s) or batch(es)"

func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "create <kind>",
		Short: "Create a record",
		Long: `Create a record in the local database and queue it for sync.

Fields are given as --set key=value for text or --set key:=json for other
values, for example --set weight:=1320. ` + kindHelp + ".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				svc, err := a.Service(args[0])
				if err != nil {
					return err
				}
				rec, err := svc.Create(ctx, fields)
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Record(rec)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field assignment key=value or key:=json (repeatable)")
	return cmd
}

func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Show a record, including deleted ones",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				svc, err := a.Service(args[0])
				if err != nil {
					return err
				}
				rec, err := svc.Read(ctx, args[1])
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Record(rec)
			})
		},
	}
}

func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sets   []string
		unsets []string
	)

	cmd := &cobra.Command{
		Use:   "update <kind> <id>",
		Short: "Change fields of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			for _, k := range unsets {
				patch[k] = nil
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update: use --set or --unset")
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				svc, err := a.Service(args[0])
				if err != nil {
					return err
				}
				rec, err := svc.Update(ctx, args[1], patch)
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Record(rec)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field assignment key=value or key:=json (repeatable)")
	cmd.Flags().StringArrayVar(&unsets, "unset", nil, "field to remove (repeatable)")
	return cmd
}

func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Soft-delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				svc, err := a.Service(args[0])
				if err != nil {
					return err
				}
				rec, err := svc.Delete(ctx, args[1])
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Record(rec)
			})
		},
	}
}

func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <kind> <id>",
		Short: "Bring back a soft-deleted record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				svc, err := a.Service(args[0])
				if err != nil {
					return err
				}
				rec, err := svc.Restore(ctx, args[1])
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Record(rec)
			})
		},
	}
}

// listFlags are shared by list and search.
type listFlags struct {
	deleted bool
	sortBy  string
	desc    bool
	filters []string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.deleted, "deleted", false, "include soft-deleted records")
	cmd.Flags().StringVar(&f.sortBy, "sort", "", "sort by field (default newest first)")
	cmd.Flags().BoolVar(&f.desc, "desc", false, "sort descending")
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "keep records where field=value[,value] (repeatable)")
}

func (f *listFlags) options() (services.ListOptions, error) {
	filters, err := parseFilters(f.filters)
	if err != nil {
		return services.ListOptions{}, err
	}
	opts := services.ListOptions{
		IncludeDeleted: f.deleted,
		SortBy:         f.sortBy,
		SortOrder:      services.SortAsc,
		Filters:        filters,
	}
	if f.desc {
		opts.SortOrder = services.SortDesc
	}
	return opts, nil
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	lf := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := lf.options()
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				svc, err := a.Service(args[0])
				if err != nil {
					return err
				}
				list, err := svc.List(ctx, opts)
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Records(svc.Kind(), list)
			})
		},
	}
	lf.register(cmd)
	return cmd
}

func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	lf := &listFlags{}

	cmd := &cobra.Command{
		Use:   "search <kind> <query>",
		Short: "Find records by text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := lf.options()
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				svc, err := a.Service(args[0])
				if err != nil {
					return err
				}
				list, err := svc.Search(ctx, args[1], opts)
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Records(svc.Kind(), list)
			})
		},
	}
	lf.register(cmd)
	return cmd
}

func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <kind>",
		Short: "Show totals and recent activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *App) error {
				svc, err := a.Service(args[0])
				if err != nil {
					return err
				}
				s, err := svc.Statistics(ctx)
				if err != nil {
					return err
				}
				return rootOpts.printer(cmd).Statistics(svc.Kind(), s)
			})
		},
	}
}
