package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/app"
	"github.com/spf13/cobra"
)

func NewPrefsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and write synced preferences",
	}
	cmd.AddCommand(newPrefsGetCommand(opts), newPrefsSetCommand(opts))
	return cmd
}

func newPrefsGetCommand(opts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "get [name]",
		Short: "Print all preferences or one value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				if refresh && a.Watcher.Online() {
					if _, err := a.RefreshPreferences(ctx); err != nil {
						return err
					}
				}
				prefs := a.Preferences.Get(ctx)
				if len(args) == 1 {
					raw, ok := prefs.Values[args[0]]
					if !ok {
						return NewExitError(ExitFailure, fmt.Sprintf("preference %q is not set", args[0]))
					}
					return emit(cmd.OutOrStdout(), opts.Format, raw, func(w io.Writer) {
						fmt.Fprintln(w, string(raw))
					})
				}

				names := make([]string, 0, len(prefs.Values))
				for k := range prefs.Values {
					names = append(names, k)
				}
				sort.Strings(names)
				return emit(cmd.OutOrStdout(), opts.Format, prefs.Values, func(w io.Writer) {
					for _, k := range names {
						fmt.Fprintf(w, "%s = %s\n", k, prefs.Values[k])
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the server copy first when online")
	return cmd
}

// preferenceValue reads s as JSON, falling back to a plain string.
func preferenceValue(s string) any {
	var v any
	if json.Unmarshal([]byte(s), &v) == nil {
		return json.RawMessage(s)
	}
	return s
}

func newPrefsSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set one preference",
		Long: `Set one preference. The value is stored as JSON when it parses as JSON
and as a string otherwise.`,
		Example: `  pnrwatch prefs set theme dark
  pnrwatch prefs set notifications true
  pnrwatch prefs set refreshMinutes 15`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				out, err := a.SetPreference(ctx, args[0], preferenceValue(args[1]))
				if err != nil {
					return err
				}
				res := newMutationResult("preferences", out)
				return emit(cmd.OutOrStdout(), opts.Format, res, res.text)
			})
		},
	}
}
