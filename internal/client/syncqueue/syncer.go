package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/client"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/messaging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

const (
	DefaultRetention      = 24 * time.Hour
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 5 * time.Minute
)

// Config bounds replay. Zero fields take the defaults above.
type Config struct {
	Retention      time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}

// Sender replays captured requests.
type Sender interface {
	Send(ctx context.Context, req models.CapturedRequest) (client.Result, error)
}

// ConflictSink receives replay outcomes that touch local records.
type ConflictSink interface {
	Detect(ctx context.Context, action models.QueuedAction, ce *client.ConflictError) (models.Conflict, error)
	Commit(ctx context.Context, action models.QueuedAction, version int, superseded bool) error
	PendingFor(ctx context.Context, resourceType, resourceID string) bool
}

// Report summarises one replay pass.
type Report struct {
	Succeeded  int `json:"succeeded"`
	Retried    int `json:"retried"`
	Conflicted int `json:"conflicted"`
	Failed     int `json:"failed"`
	Deferred   int `json:"deferred"`

	// Skipped is set when another replay was already running.
	Skipped bool `json:"skipped,omitempty"`
}

type Syncer struct {
	queue     *Queue
	sender    Sender
	conflicts ConflictSink
	poster    messaging.Poster
	clock     timex.Clock
	log       logging.Logger
	cfg       Config

	running sync.Mutex
}

func NewSyncer(queue *Queue, sender Sender, conflicts ConflictSink, poster messaging.Poster,
	cfg Config, clock timex.Clock, logger logging.Logger) *Syncer {
	return &Syncer{
		queue:     queue,
		sender:    sender,
		conflicts: conflicts,
		poster:    poster,
		clock:     timex.OrReal(clock),
		log:       logging.OrNop(logger).With("module", "sync"),
		cfg:       cfg.withDefaults(),
	}
}

// Backoff returns the delay before attempt retry+1, i.e. InitialBackoff
// doubled per previous retry and capped at MaxBackoff.
func (s *Syncer) Backoff(retry int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < retry; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Replay runs one pass over the pending queue, skipping actions whose
// backoff has not elapsed.
func (s *Syncer) Replay(ctx context.Context) (Report, error) {
	return s.replay(ctx, false)
}

// Flush runs one pass ignoring backoff schedules. Used by explicit syncs.
func (s *Syncer) Flush(ctx context.Context) (Report, error) {
	return s.replay(ctx, true)
}

// HasPending reports whether any action waits for replay.
func (s *Syncer) HasPending(ctx context.Context) bool {
	return len(s.queue.Pending(ctx)) > 0
}

// rebase records that a resource moved from base to version during this
// pass because of our own replay.
type rebase struct {
	base    int
	version int
}

func (s *Syncer) replay(ctx context.Context, force bool) (Report, error) {
	var rep Report
	if !s.running.TryLock() {
		rep.Skipped = true
		return rep, nil
	}
	defer s.running.Unlock()

	actions := s.queue.Pending(ctx)
	if len(actions) == 0 {
		return rep, nil
	}
	s.log.Debug(ctx, "replay started", "pending", len(actions))

	blocked := make(map[string]bool)
	rebased := make(map[string]rebase)

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		key := a.ResourceKey()
		now := s.clock.Now()

		if now.Sub(a.QueuedAt) > s.cfg.Retention {
			s.fail(ctx, a, "retention window exceeded")
			rep.Failed++
			continue
		}
		if blocked[key] || s.conflicts.PendingFor(ctx, a.ResourceType, a.ResourceID) {
			rep.Deferred++
			continue
		}
		if !force && !a.NextAttemptAt.IsZero() && now.Before(a.NextAttemptAt) {
			blocked[key] = true
			rep.Deferred++
			continue
		}

		original := a.BaseVersion
		if rb, ok := rebased[key]; ok && a.BaseVersion == rb.base {
			a = withBase(a, rb.version)
		}

		res, err := s.sender.Send(ctx, a.Request)
		var ce *client.ConflictError
		switch {
		case err == nil:
			if err := s.queue.Remove(ctx, a.ID); err != nil {
				s.log.Error(ctx, "remove replayed action", "id", a.ID, "error", err)
				return rep, err
			}
			if err := s.conflicts.Commit(ctx, a, res.Version, s.queue.HasPendingFor(ctx, key)); err != nil {
				s.log.Warn(ctx, "commit replayed action locally", "id", a.ID, "error", err)
			}
			if res.Version > 0 {
				rebased[key] = rebase{base: original, version: res.Version}
			}
			s.poster.Post(messaging.SyncComplete{
				ActionID: a.ID, ResourceType: a.ResourceType, ResourceID: a.ResourceID, Version: res.Version,
			})
			s.log.Info(ctx, "action replayed", "id", a.ID, "resource", key, "version", res.Version)
			rep.Succeeded++

		case errors.As(err, &ce):
			if _, err := s.conflicts.Detect(ctx, a, ce); err != nil {
				s.log.Error(ctx, "record conflict", "id", a.ID, "error", err)
				blocked[key] = true
				rep.Deferred++
				continue
			}
			if err := s.queue.Remove(ctx, a.ID); err != nil {
				s.log.Error(ctx, "remove conflicted action", "id", a.ID, "error", err)
			}
			blocked[key] = true
			rep.Conflicted++

		case ctx.Err() != nil:
			return rep, ctx.Err()

		case errors.Is(err, common.ErrUnavailable):
			blocked[key] = true
			a.RetryCount++
			a.LastError = err.Error()
			if a.RetryCount >= s.cfg.MaxAttempts {
				s.fail(ctx, a, fmt.Sprintf("gave up after %d attempts: %v", a.RetryCount, err))
				rep.Failed++
				continue
			}
			a.NextAttemptAt = now.Add(s.Backoff(a.RetryCount))
			if err := s.queue.Update(ctx, a); err != nil {
				s.log.Error(ctx, "reschedule action", "id", a.ID, "error", err)
			}
			s.log.Info(ctx, "replay deferred", "id", a.ID, "retry", a.RetryCount, "next", a.NextAttemptAt)
			rep.Retried++

		default:
			s.fail(ctx, a, err.Error())
			rep.Failed++
		}
	}

	s.log.Debug(ctx, "replay finished", "succeeded", rep.Succeeded, "retried", rep.Retried,
		"conflicted", rep.Conflicted, "failed", rep.Failed, "deferred", rep.Deferred)
	return rep, nil
}

func (s *Syncer) fail(ctx context.Context, a models.QueuedAction, reason string) {
	if err := s.queue.MarkFailed(ctx, a, reason); err != nil {
		s.log.Error(ctx, "mark action failed", "id", a.ID, "error", err)
		return
	}
	s.log.Warn(ctx, "action failed", "id", a.ID, "resource", a.ResourceKey(), "reason", reason)
	s.poster.Post(messaging.ActionFailed{
		ActionID: a.ID, ResourceType: a.ResourceType, ResourceID: a.ResourceID, Reason: reason,
	})
}

// withBase returns a copy of a targeting version instead of its captured
// base version.
func withBase(a models.QueuedAction, version int) models.QueuedAction {
	a.BaseVersion = version
	a.Request.Header = a.Request.Header.Clone()
	if a.Request.Header == nil {
		a.Request.Header = http.Header{}
	}
	a.Request.Header.Set("If-Match", client.FormatETag(version))
	return a
}
