package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/app"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/spf13/cobra"
)

func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				if !a.Watcher.Online() {
					return NewExitError(ExitFailure, "server unreachable, nothing replayed")
				}
				report, err := a.Syncer.Flush(ctx)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts.Format, report, func(w io.Writer) {
					fmt.Fprintf(w, "succeeded %d, retried %d, conflicted %d, failed %d, deferred %d\n",
						report.Succeeded, report.Retried, report.Conflicted, report.Failed, report.Deferred)
				})
			})
		},
	}
}

func NewQueueCommand(opts *RootOptions) *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show queued or failed offline actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				list := a.Queue.Pending(ctx)
				if failed {
					list = a.Queue.Failed(ctx)
				}
				return emit(cmd.OutOrStdout(), opts.Format, list, func(w io.Writer) {
					printActions(w, list)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "show actions that gave up instead of pending ones")

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <id>",
		Short: "Move a failed action back into the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				action, err := a.Queue.RetryFailed(ctx, args[0])
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts.Format, action, func(w io.Writer) {
					fmt.Fprintf(w, "%s requeued\n", action.ID)
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dismiss <id>",
		Short: "Forget a failed action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				if err := a.Queue.DismissFailed(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s dismissed\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func printActions(w io.Writer, list []models.QueuedAction) {
	if len(list) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOPERATION\tRESOURCE\tQUEUED\tRETRIES\tLAST ERROR")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			a.ID, a.Operation, a.ResourceKey(), a.QueuedAt.Format(time.RFC3339), a.RetryCount, a.LastError)
	}
	tw.Flush()
}

func NewConflictsCommand(opts *RootOptions) *cobra.Command {
	runList := func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
			pending := a.Resolver.Pending(ctx)
			return emit(cmd.OutOrStdout(), opts.Format, pending, func(w io.Writer) {
				if len(pending) == 0 {
					fmt.Fprintln(w, "No conflicts")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tOPERATION\tRESOURCE\tSERVER VERSION\tLAST ERROR")
				for _, c := range pending {
					fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%d\t%s\n",
						c.ID, c.Operation, c.ResourceType, c.ResourceID, c.ServerVersion, c.LastError)
				}
				tw.Flush()
			})
		})
	}

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List unresolved conflicts",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List unresolved conflicts",
		Args:  cobra.NoArgs,
		RunE:  runList,
	})
	cmd.AddCommand(newResolveCommand(opts))
	return cmd
}

func newResolveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id> [client-wins|server-wins|merge]",
		Short: "Resolve a conflict",
		Long: `Resolve a conflict. Without a strategy the CLI asks for one when stdin
is a terminal.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 2 {
				name = args[1]
			} else {
				in := opts.input()
				if !stdinIsTerminal(in) {
					return NewExitError(ExitCommandError, "strategy required: client-wins, server-wins or merge")
				}
				var err error
				name, err = GetSimpleText(bufio.NewReader(in), "Strategy (client-wins, server-wins, merge)", cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			strategy, err := models.ParseStrategy(name)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid argument", err)
			}

			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				if err := a.Resolver.Resolve(ctx, args[0], strategy); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s resolved with %s\n", args[0], strategy)
				return nil
			})
		},
	}
}

// StatsResult is the JSON shape of the stats command.
type StatsResult struct {
	Storage storage.Stats  `json:"storage"`
	Caches  map[string]int `json:"caches"`
	Pending int            `json:"pending"`
	Failed  int            `json:"failed"`
	Online  bool           `json:"online"`
}

func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show local storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				res := StatsResult{
					Storage: a.Store.Stats(ctx),
					Caches:  a.Caches.Sizes(),
					Pending: len(a.Queue.Pending(ctx)),
					Failed:  len(a.Queue.Failed(ctx)),
					Online:  a.Watcher.Online(),
				}
				return emit(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) {
					fmt.Fprintf(w, "online     %t\n", res.Online)
					fmt.Fprintf(w, "stored     %d items, %d bytes, %d bytes free\n",
						res.Storage.ItemCount, res.Storage.TotalBytes, res.Storage.Remaining)
					fmt.Fprintf(w, "queue      %d pending, %d failed\n", res.Pending, res.Failed)
					names := make([]string, 0, len(res.Caches))
					for n := range res.Caches {
						names = append(names, n)
					}
					sort.Strings(names)
					for _, n := range names {
						fmt.Fprintf(w, "cache      %-18s %d\n", n, res.Caches[n])
					}
				})
			})
		},
	}
}
