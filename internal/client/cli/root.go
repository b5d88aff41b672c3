package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/app"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/config"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	ServerURL  string
	HealthAddr string
	StorageDSN string
	Token      string
	ViewsAddr  string
	Interval   int
	Format     string // "json" | "text"
	Verbose    bool

	// AppOptions are appended to every app the commands open.
	AppOptions []app.Option
	// In is read by interactive prompts; os.Stdin when nil.
	In io.Reader

	cfg *config.Config
}

// NewRootCommand creates the root command of the pnrwatch CLI.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}

	cmd := &cobra.Command{
		Use:   "pnrwatch",
		Short: "Offline-first PNR status tracker",
		Long: `pnrwatch tracks Indian Railways PNR bookings against a sync server.

Changes made while the server is unreachable are queued locally and replayed
once it is back. Writes the server rejects as stale become conflicts that
can be resolved with client-wins, server-wins or merge.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigFile, "config", "c", "", "JSON config file")
	pf.StringVarP(&opts.ServerURL, "server", "s", "", "base URL of the sync API")
	pf.StringVarP(&opts.HealthAddr, "health", "g", "", "gRPC health endpoint used for connectivity probes")
	pf.StringVarP(&opts.StorageDSN, "storage", "d", "", "SQLite file of the local store (empty keeps it in memory)")
	pf.StringVarP(&opts.Token, "token", "t", "", "bearer access token")
	pf.StringVarP(&opts.ViewsAddr, "views", "w", "", "listen address of the view bridge")
	pf.IntVarP(&opts.Interval, "interval", "i", 0, "online check interval (in seconds)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewTrackCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewPrefsCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewViewsCommand(opts))

	return cmd
}

// loadConfig layers the command-line flags over config.Load.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	var args []string
	if opts.ConfigFile != "" {
		args = append(args, "-c", opts.ConfigFile)
	}
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = opts.ServerURL
	}
	if flags.Changed("health") {
		cfg.HealthAddr = opts.HealthAddr
	}
	if flags.Changed("storage") {
		cfg.StorageDSN = opts.StorageDSN
	}
	if flags.Changed("token") {
		cfg.AccessToken = opts.Token
	}
	if flags.Changed("views") {
		cfg.ViewsAddr = opts.ViewsAddr
	}
	if flags.Changed("interval") {
		cfg.OnlineCheckInterval = time.Duration(opts.Interval) * time.Second
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}

	if cfg.AccessToken == "" && stdinIsTerminal(opts.input()) {
		if cfg.AccessToken, err = GetSecret("Access token", cmd.ErrOrStderr()); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

func (o *RootOptions) input() io.Reader {
	if o.In != nil {
		return o.In
	}
	return os.Stdin
}

// withApp opens the client, runs fn and disposes the client again.
func withApp(cmd *cobra.Command, opts *RootOptions, background bool, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.New(cmd.ErrOrStderr(), "text", opts.cfg.LogLevel)
	appOpts := []app.Option{app.WithLogger(logger)}
	if !background {
		appOpts = append(appOpts, app.WithoutBackground())
	}
	appOpts = append(appOpts, opts.AppOptions...)

	a := app.New(opts.cfg, appOpts...)
	if err := a.Init(ctx); err != nil {
		return WrapExitError(ExitCommandError, "start client", err)
	}

	err := fn(ctx, a)
	if derr := a.Dispose(); derr != nil && err == nil {
		err = derr
	}
	return err
}
