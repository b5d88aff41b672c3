// Package app is the composition root of the pnrwatch client: it builds
// every component from config, starts the background loops and tears them
// down again.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/cache"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/client"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/config"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/conflicts"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/connectivity"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/medium"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/messaging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/repositories/pnrs"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/repositories/preferences"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/router"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/syncqueue"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/idgen"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

type App struct {
	cfg        *config.Config
	log        logging.Logger
	clock      timex.Clock
	ids        idgen.Generator
	transport  http.RoundTripper
	background bool

	Medium      medium.Medium
	Store       *storage.Store
	PNRs        *pnrs.StoreRepository
	Preferences *preferences.Service
	Bus         *messaging.Bus
	Hub         *messaging.Hub
	API         *client.HTTPClient
	Reads       *client.HTTPClient
	Auth        *client.AuthTransport
	Resolver    *conflicts.Resolver
	Queue       *syncqueue.Queue
	Syncer      *syncqueue.Syncer
	Caches      *cache.Caches
	Router      *router.Router
	Watcher     *connectivity.Watcher

	// HTTP sends requests through the router: reads are cached and
	// mutations are captured while offline. Reads is an API client over it;
	// API bypasses the router so replays are never captured again.
	HTTP *http.Client

	pinger client.Pinger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*App)

func WithLogger(l logging.Logger) Option { return func(a *App) { a.log = l } }

func WithClock(c timex.Clock) Option { return func(a *App) { a.clock = c } }

func WithIDs(g idgen.Generator) Option { return func(a *App) { a.ids = g } }

// WithMedium replaces the medium chosen from config.
func WithMedium(m medium.Medium) Option { return func(a *App) { a.Medium = m } }

// WithTransport sets the network transport under authentication.
func WithTransport(rt http.RoundTripper) Option { return func(a *App) { a.transport = rt } }

// WithPinger replaces the liveness probe chosen from config.
func WithPinger(p client.Pinger) Option { return func(a *App) { a.pinger = p } }

// WithoutBackground skips the connectivity watcher and the periodic sync
// loop. One-shot commands use it.
func WithoutBackground() Option { return func(a *App) { a.background = false } }

func New(cfg *config.Config, opts ...Option) *App {
	a := &App{cfg: cfg, background: true}
	for _, o := range opts {
		o(a)
	}
	a.log = logging.OrNop(a.log)
	a.clock = timex.OrReal(a.clock)
	a.ids = idgen.OrUUID(a.ids)
	if a.transport == nil {
		a.transport = http.DefaultTransport
	}
	return a
}

// Init opens the local store, wires every component and starts the bus and,
// unless disabled, the connectivity watcher and the periodic sync loop.
func (a *App) Init(ctx context.Context) error {
	if a.Medium == nil {
		m, err := openMedium(ctx, a.cfg.StorageDSN)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		a.Medium = m
	}

	a.Store = storage.New(a.Medium, a.cfg.Capacity, a.clock, a.log)
	a.PNRs = pnrs.NewStoreRepository(a.Store, a.clock)
	a.Preferences = preferences.NewService(a.Store, a.clock, a.log)

	a.Bus = messaging.NewBus(a.log)
	a.Hub = messaging.NewHub(a.Bus, a.log, a.cfg.ViewsOrigins...)

	a.Auth = client.NewAuthTransport(a.transport, a.cfg.AccessToken)
	a.Caches = cache.NewCaches(a.clock)
	direct := router.InvalidateOnWrite(a.Auth, a.Caches)
	api, err := client.NewHTTPClient(a.cfg.ServerURL, &http.Client{Transport: direct})
	if err != nil {
		a.closeMedium()
		return err
	}
	a.API = api

	if a.pinger == nil {
		a.pinger, err = a.newPinger()
		if err != nil {
			a.closeMedium()
			return err
		}
	}

	a.Resolver = conflicts.NewResolver(a.Store, a.API, a.Bus, a.cfg.Strategy(), a.clock, a.ids, a.log)
	a.Resolver.Register(common.ResourcePNR, a.PNRs)
	a.Resolver.Register(common.ResourcePreferences, a.Preferences)

	a.Queue = syncqueue.NewQueue(a.Store, a.clock, a.ids)
	a.Syncer = syncqueue.NewSyncer(a.Queue, a.API, a.Resolver, a.Bus, syncqueue.Config{
		Retention:      a.cfg.QueueRetention,
		MaxAttempts:    a.cfg.MaxAttempts,
		InitialBackoff: a.cfg.BackoffInitial,
		MaxBackoff:     a.cfg.BackoffMax,
	}, a.clock, a.log)

	a.Watcher = connectivity.NewWatcher(a.pinger, a.cfg.OnlineCheckInterval, a.log)
	if a.background {
		a.Watcher.OnOnline(func(ctx context.Context) { a.replay(ctx, "reconnected") })
	}

	rules, err := router.LoadRules(a.cfg.RoutesFile)
	if err != nil {
		a.closeMedium()
		return err
	}
	for i := range rules {
		if rules[i].Strategy == router.NetworkFirst && rules[i].Timeout == 0 {
			rules[i].Timeout = a.cfg.NetworkTimeout
		}
	}
	a.Router, err = router.New(direct, rules, a.Caches, a.Watcher, a.Queue, a.log)
	if err != nil {
		a.closeMedium()
		return err
	}
	a.HTTP = &http.Client{Transport: a.Router}
	if a.Reads, err = client.NewHTTPClient(a.cfg.ServerURL, a.HTTP); err != nil {
		a.closeMedium()
		return err
	}

	a.Bus.On(messaging.KindGetCacheSize, a.onGetCacheSize)
	a.Bus.On(messaging.KindNotificationClick, a.onNotificationClick)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.Bus.Start(runCtx)

	if !a.background {
		// one probe so mutations know whether to go out or be queued
		a.Watcher.Check(ctx)
	} else {
		a.wg.Add(2)
		go func() {
			defer a.wg.Done()
			a.Watcher.Run(runCtx)
		}()
		go func() {
			defer a.wg.Done()
			a.syncLoop(runCtx)
		}()
	}

	a.log.Info(ctx, "client initialised", "server", a.cfg.ServerURL, "storage", describeDSN(a.cfg.StorageDSN))
	return nil
}

func openMedium(ctx context.Context, dsn string) (medium.Medium, error) {
	if dsn == "" {
		return medium.NewMemory(0), nil
	}
	return medium.OpenSQLite(ctx, dsn, 0)
}

func describeDSN(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return dsn
}

func (a *App) newPinger() (client.Pinger, error) {
	if a.cfg.HealthAddr == "" {
		return a.API, nil
	}
	return client.NewHealthPinger(a.cfg.HealthAddr, "")
}

// syncLoop replays pending actions every SyncInterval while online.
func (a *App) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.Watcher.Online() && a.Syncer.HasPending(ctx) {
				a.replay(ctx, "periodic")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) replay(ctx context.Context, reason string) {
	report, err := a.Syncer.Replay(ctx)
	if err != nil {
		a.log.Warn(ctx, "replay failed", "reason", reason, "error", err)
		return
	}
	if !report.Skipped {
		a.log.Debug(ctx, "replay finished", "reason", reason, "report", report)
	}
}

func (a *App) onGetCacheSize(ctx context.Context, _ messaging.Message) {
	st := a.Store.Stats(ctx)
	a.Bus.Post(messaging.CacheSize{
		Caches:     a.Caches.Sizes(),
		StoreBytes: st.TotalBytes,
		StoreItems: st.ItemCount,
	})
}

// onNotificationClick refreshes the PNR the user acted on.
func (a *App) onNotificationClick(ctx context.Context, msg messaging.Message) {
	click, ok := msg.(messaging.NotificationClick)
	if !ok || click.PNR == "" {
		return
	}
	if _, err := a.RefreshPNR(ctx, click.PNR); err != nil {
		a.log.Info(ctx, "refresh after notification click failed", "pnr", click.PNR, "error", err)
	}
}

// Dispose stops the background loops, waits for in-flight revalidations
// and closes the network client and the local store. It is safe to call
// more than once.
func (a *App) Dispose() error {
	var err error
	a.once.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		if a.Hub != nil {
			a.Hub.Close()
		}
		if a.Bus != nil {
			a.Bus.Close()
		}
		if a.Router != nil {
			a.Router.Wait()
		}
		if a.API != nil {
			err = errors.Join(err, a.API.Close())
		}
		if c, ok := a.pinger.(io.Closer); ok && a.pinger != client.Pinger(a.API) {
			err = errors.Join(err, c.Close())
		}
		err = errors.Join(err, a.closeMedium())
	})
	return err
}

func (a *App) closeMedium() error {
	if a.Medium == nil {
		return nil
	}
	return a.Medium.Close()
}
