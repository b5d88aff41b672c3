package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/app"
	"github.com/spf13/cobra"
)

func NewViewsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "Run the background sync and serve the view bridge",
		Long: `Run the client in the foreground: the connectivity watcher and the
periodic sync stay active, and views connect to ws://<views addr>/ws to
receive sync events and send GET_CACHE_SIZE or NOTIFICATION_CLICK.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(ctx context.Context, a *app.App) error {
				return serveViews(ctx, a, opts.cfg.ViewsAddr, func(addr string) {
					fmt.Fprintf(cmd.OutOrStdout(), "view bridge listening on ws://%s/ws\n", addr)
				})
			})
		},
	}
}

// serveViews serves the hub until ctx is cancelled.
func serveViews(ctx context.Context, a *app.App, addr string, ready func(addr string)) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", a.Hub)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ready(lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
