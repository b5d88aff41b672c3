// Package server wires the pnrserver backend: storage, the sync HTTP API
// and the gRPC health endpoint, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/api"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/config"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/repositories/repomanager"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/repositories/resources"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/services"

	gs "github.com/curiousoddesy/PNR-Watch-sub005/internal/server/grpc"
)

// shutdownTimeout bounds how long in-flight HTTP requests may take to drain.
const shutdownTimeout = 5 * time.Second

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	resources *services.ResourceService
	grpc      *gs.GRPCServer
}

// NewApp opens storage and applies migrations. Logs go to w.
func NewApp(ctx context.Context, c *config.Config, w io.Writer) (*App, error) {
	logger := logging.New(w, "json", c.LogLevel)

	app := &App{config: c, logger: logger}

	if c.DatabaseDSN == config.MemoryDSN {
		logger.Warn(ctx, "using in-memory storage, data is lost on exit")
		app.resources = services.NewResourceService(services.DirectUnitOfWork{Repo: resources.NewMemoryRepository()})
	} else {
		db, err := repomanager.Open(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		rm := repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		app.db = db
		app.resources = services.NewResourceService(services.NewPostgresUnitOfWork(db, rm))
	}

	if c.GRPCAddr != "" {
		app.grpc = gs.NewGRPCServer(c.GRPCAddr, logger, c.SecretKey)
	}

	return app, nil
}

// Handler returns the sync HTTP API.
func (app *App) Handler() http.Handler {
	return api.NewHandler(app.resources, app.logger, app.config.SecretKey).Routes()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	listen, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		cancelFunc()
		return fmt.Errorf("http listen: %w", err)
	}

	srv := &http.Server{Handler: app.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
	if app.grpc != nil {
		app.grpc.SetServing(true)
	}

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancelFunc()
		return err
	}
	return nil
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	if err := app.grpc.Run(ctx); err != nil {
		cancelFunc()
		return fmt.Errorf("grpc: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled or a signal arrives, then closes storage.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		if err != nil {
			app.logger.Error(ctx, err.Error())
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		record(app.startHTTPServer(ctx, cancelFunc))
	}()

	if app.grpc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(app.startGRPCServer(ctx, cancelFunc))
		}()
	}

	wg.Wait()

	if app.db != nil {
		record(app.db.Close())
	}
	app.logger.Info(ctx, "Stopped")

	return errors.Join(errs...)
}
