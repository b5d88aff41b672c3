// Package connectivity tracks whether the sync server is reachable by
// probing it periodically.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/client"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
)

type Mode string

const (
	ModeUnknown Mode = ""
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// DefaultProbeTimeout bounds a single probe.
const DefaultProbeTimeout = 3 * time.Second

// Watcher probes a Pinger and remembers the last outcome.
type Watcher struct {
	pinger   client.Pinger
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	mu       sync.Mutex
	mode     Mode
	onOnline []func(context.Context)
}

func NewWatcher(pinger client.Pinger, interval time.Duration, logger logging.Logger) *Watcher {
	return &Watcher{
		pinger:   pinger,
		interval: interval,
		timeout:  DefaultProbeTimeout,
		log:      logging.OrNop(logger).With("module", "connectivity"),
	}
}

// OnOnline registers f to run every time the watcher switches to online.
// f runs on the probing goroutine.
func (w *Watcher) OnOnline(f func(context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onOnline = append(w.onOnline, f)
}

func (w *Watcher) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// Online reports the outcome of the last probe. Before the first probe the
// client is assumed offline.
func (w *Watcher) Online() bool { return w.Mode() == ModeOnline }

// Check probes once and updates the mode.
func (w *Watcher) Check(ctx context.Context) Mode {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(pctx)
	cancel()

	next := ModeOnline
	if err != nil {
		next = ModeOffline
	}

	w.mu.Lock()
	prev := w.mode
	w.mode = next
	callbacks := append([]func(context.Context){}, w.onOnline...)
	w.mu.Unlock()

	if prev == next {
		return next
	}
	w.log.Info(ctx, "switched mode", "mode", next)
	if err != nil {
		w.log.Debug(ctx, "probe failed", "error", err)
	}
	if next == ModeOnline {
		for _, f := range callbacks {
			f(ctx)
		}
	}
	return next
}

// Run probes immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
