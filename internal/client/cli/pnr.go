package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/app"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/spf13/cobra"
)

// MutationResult is the JSON shape printed for a write.
type MutationResult struct {
	PNR        string            `json:"pnr,omitempty"`
	Status     string            `json:"status"` // "synced" | "queued" | "conflict"
	Version    int               `json:"version,omitempty"`
	ActionID   string            `json:"actionId,omitempty"`
	ConflictID string            `json:"conflictId,omitempty"`
	Record     *models.PNRRecord `json:"record,omitempty"`
}

func newMutationResult(pnr string, out app.Outcome) MutationResult {
	res := MutationResult{PNR: pnr, Status: "synced", Version: out.Version}
	switch {
	case out.Queued:
		res.Status = "queued"
		res.ActionID = out.ActionID
	case out.Conflict != nil:
		res.Status = "conflict"
		res.ConflictID = out.Conflict.ID
		if out.Conflict.Status == models.ConflictResolved {
			res.Status = "resolved"
		}
	}
	return res
}

func (r MutationResult) text(w io.Writer) {
	switch r.Status {
	case "queued":
		fmt.Fprintf(w, "%s: offline, queued as %s\n", r.PNR, r.ActionID)
	case "conflict":
		fmt.Fprintf(w, "%s: conflict %s, resolve with 'pnrwatch conflicts resolve %s <strategy>'\n", r.PNR, r.ConflictID, r.ConflictID)
	case "resolved":
		fmt.Fprintf(w, "%s: conflict %s resolved automatically\n", r.PNR, r.ConflictID)
	default:
		fmt.Fprintf(w, "%s: synced at version %d\n", r.PNR, r.Version)
	}
}

// invalidInput turns validation errors into usage errors.
func invalidInput(err error) error {
	if errors.Is(err, common.ErrInvalidPNR) {
		return WrapExitError(ExitCommandError, "invalid argument", err)
	}
	return err
}

func NewTrackCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "track <pnr>...",
		Short: "Start tracking one or more PNRs",
		Example: `  pnrwatch track 2455423890
  pnrwatch track 245-5423890 8612345678`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				results := make([]MutationResult, 0, len(args))
				for _, arg := range args {
					rec, out, err := a.TrackPNR(ctx, arg)
					if err != nil {
						return invalidInput(err)
					}
					res := newMutationResult(rec.PNR, out)
					res.Record = &rec
					results = append(results, res)
				}
				return emit(cmd.OutOrStdout(), opts.Format, results, func(w io.Writer) {
					for _, r := range results {
						r.text(w)
					}
				})
			})
		},
	}
}

func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked PNRs from the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				records := a.PNRs.GetAllPNRs(ctx)
				return emit(cmd.OutOrStdout(), opts.Format, records, func(w io.Writer) {
					if len(records) == 0 {
						fmt.Fprintln(w, "No PNRs tracked")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "PNR\tTRAIN\tFROM\tTO\tDATE\tCHART")
					for _, r := range records {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
							r.PNR, r.Train.Number, r.Journey.From, r.Journey.To, r.Journey.Date, r.ChartStatus)
					}
					tw.Flush()
				})
			})
		},
	}
}

func NewShowCommand(opts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "show <pnr>",
		Short: "Show one PNR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				pnr, err := common.NormalizePNR(args[0])
				if err != nil {
					return invalidInput(err)
				}
				if refresh && a.Watcher.Online() {
					if _, err := a.RefreshPNR(ctx, pnr); err != nil {
						return err
					}
				}
				rec, ok := a.PNRs.GetPNR(ctx, pnr)
				if !ok {
					return WrapExitError(ExitFailure, "show", fmt.Errorf("pnr %s: %w", pnr, common.ErrNotFound))
				}
				return emit(cmd.OutOrStdout(), opts.Format, rec, func(w io.Writer) { printRecord(w, rec) })
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the server copy first when online")
	return cmd
}

func printRecord(w io.Writer, r models.PNRRecord) {
	fmt.Fprintf(w, "PNR       %s\n", r.PNR)
	if r.Train.Number != "" {
		fmt.Fprintf(w, "Train     %s %s %s\n", r.Train.Number, r.Train.Name, r.Train.Class)
	}
	if r.Journey.From != "" || r.Journey.To != "" {
		fmt.Fprintf(w, "Journey   %s -> %s on %s\n", r.Journey.From, r.Journey.To, r.Journey.Date)
	}
	if r.ChartStatus != "" {
		fmt.Fprintf(w, "Chart     %s\n", r.ChartStatus)
	}
	for _, p := range r.Passengers {
		fmt.Fprintf(w, "  #%d  %s -> %s", p.Number, p.BookingStatus, p.CurrentStatus)
		if p.Coach != "" {
			fmt.Fprintf(w, "  %s/%s", p.Coach, p.Berth)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Updated   %s\n", r.UpdatedAt.Format("2006-01-02 15:04:05"))
}

// parsePassenger parses "N=STATUS" into a passenger number and status.
func parsePassenger(s string) (int, string, error) {
	num, status, ok := strings.Cut(s, "=")
	if !ok {
		return 0, "", fmt.Errorf("passenger %q: want N=STATUS", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 1 {
		return 0, "", fmt.Errorf("passenger %q: bad number", s)
	}
	return n, strings.TrimSpace(status), nil
}

// setPassengerStatus updates passenger n, appending it when absent.
func setPassengerStatus(r *models.PNRRecord, n int, status string) {
	for i := range r.Passengers {
		if r.Passengers[i].Number == n {
			r.Passengers[i].CurrentStatus = status
			return
		}
	}
	r.Passengers = append(r.Passengers, models.Passenger{Number: n, BookingStatus: status, CurrentStatus: status})
}

func NewUpdateCommand(opts *RootOptions) *cobra.Command {
	var (
		chart      string
		train      string
		from, to   string
		date       string
		passengers []string
	)

	cmd := &cobra.Command{
		Use:   "update <pnr>",
		Short: "Edit a tracked PNR",
		Example: `  pnrwatch update 2455423890 --chart "Chart Prepared"
  pnrwatch update 2455423890 --passenger 1=CNF --passenger 2=RAC`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type status struct {
				n int
				s string
			}
			var updates []status
			for _, p := range passengers {
				n, s, err := parsePassenger(p)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid argument", err)
				}
				updates = append(updates, status{n, s})
			}

			flags := cmd.Flags()
			edit := func(r *models.PNRRecord) {
				if flags.Changed("chart") {
					r.ChartStatus = chart
				}
				if flags.Changed("train") {
					r.Train.Number = train
				}
				if flags.Changed("from") {
					r.Journey.From = from
				}
				if flags.Changed("to") {
					r.Journey.To = to
				}
				if flags.Changed("date") {
					r.Journey.Date = date
				}
				for _, u := range updates {
					setPassengerStatus(r, u.n, u.s)
				}
			}

			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				rec, out, err := a.UpdatePNR(ctx, args[0], edit)
				if err != nil {
					return invalidInput(err)
				}
				res := newMutationResult(rec.PNR, out)
				res.Record = &rec
				return emit(cmd.OutOrStdout(), opts.Format, res, res.text)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&chart, "chart", "", "chart status")
	f.StringVar(&train, "train", "", "train number")
	f.StringVar(&from, "from", "", "boarding station code")
	f.StringVar(&to, "to", "", "destination station code")
	f.StringVar(&date, "date", "", "journey date")
	f.StringArrayVar(&passengers, "passenger", nil, "passenger status as N=STATUS (repeatable)")
	return cmd
}

func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <pnr>",
		Aliases: []string{"rm"},
		Short:   "Stop tracking a PNR",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app.App) error {
				out, err := a.RemovePNR(ctx, args[0])
				if err != nil {
					return invalidInput(err)
				}
				pnr, _ := common.NormalizePNR(args[0])
				res := newMutationResult(pnr, out)
				return emit(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) {
					if res.Status == "synced" {
						fmt.Fprintf(w, "%s: removed\n", pnr)
						return
					}
					res.text(w)
				})
			})
		},
	}
}
