package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

// Key is the durable store key holding the preferences record.
const Key = "user_preferences"

type Service struct {
	store *storage.Store
	clock timex.Clock
	log   logging.Logger

	// mu owns the record: every write path holds it across read and write.
	mu sync.Mutex
}

func NewService(store *storage.Store, clock timex.Clock, logger logging.Logger) *Service {
	return &Service{
		store: store,
		clock: timex.OrReal(clock),
		log:   logging.OrNop(logger).With("module", "preferences"),
	}
}

// Get returns the stored preferences, or an empty set.
func (s *Service) Get(ctx context.Context) models.Preferences {
	p, _ := s.load(ctx)
	return p
}

// load returns the record and its stored version (0 when absent).
func (s *Service) load(ctx context.Context) (models.Preferences, int) {
	e, ok := s.store.Entry(ctx, Key)
	if !ok {
		return models.NewPreferences(), 0
	}

	var p models.Preferences
	if err := json.Unmarshal(e.Data, &p); err != nil {
		s.log.Warn(ctx, "decode preferences", "error", err)
		return models.NewPreferences(), 0
	}
	if p.Values == nil {
		p.Values = map[string]json.RawMessage{}
	}
	if p.FieldUpdatedAt == nil {
		p.FieldUpdatedAt = map[string]time.Time{}
	}
	return p, e.Version
}

// Version is the server version the local copy was last reconciled with.
func (s *Service) Version(ctx context.Context) int {
	_, v := s.load(ctx)
	return v
}

// Value decodes the preference name into dst.
func (s *Service) Value(ctx context.Context, name string, dst any) bool {
	raw, ok := s.Get(ctx).Values[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// UpdatePreference sets one field and stamps its update time. The stored
// version is left unchanged.
func (s *Service) UpdatePreference(ctx context.Context, name string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn(ctx, "encode preference", "name", name, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, version := s.load(ctx)
	p.Values[name] = raw
	p.FieldUpdatedAt[name] = s.clock.Now().UTC()

	return s.store.Set(ctx, Key, p, storage.Options{Version: version})
}

// Reset removes every preference.
func (s *Service) Reset(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Remove(ctx, Key)
}

// Apply replaces the local record with a server-authoritative copy. The id
// is ignored: there is one record per user.
func (s *Service) Apply(ctx context.Context, _ string, data json.RawMessage, version int) error {
	var p models.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode preferences: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.Set(ctx, Key, p, storage.Options{Version: version}) {
		return fmt.Errorf("store preferences: %w", common.ErrWriteFailed)
	}
	return nil
}

// SetVersion records the server version and keeps the local values.
func (s *Service) SetVersion(ctx context.Context, _ string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.Has(ctx, Key) {
		return nil
	}
	p, _ := s.load(ctx)
	if !s.store.Set(ctx, Key, p, storage.Options{Version: version}) {
		return fmt.Errorf("store preferences: %w", common.ErrWriteFailed)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, _ string) error {
	if !s.Reset(ctx) {
		return fmt.Errorf("reset preferences: %w", common.ErrWriteFailed)
	}
	return nil
}

// Merge keeps, for every field, the value from the side whose
// FieldUpdatedAt is newer. Ties and unstamped fields go to the client.
func (s *Service) Merge(client, server json.RawMessage) (json.RawMessage, error) {
	return MergePreferences(client, server)
}

func MergePreferences(client, server json.RawMessage) (json.RawMessage, error) {
	var c, sv models.Preferences
	if err := json.Unmarshal(client, &c); err != nil {
		return nil, fmt.Errorf("decode client preferences: %w", err)
	}
	if len(server) > 0 && string(server) != "null" {
		if err := json.Unmarshal(server, &sv); err != nil {
			return nil, fmt.Errorf("decode server preferences: %w", err)
		}
	}

	out := models.NewPreferences()
	for name, v := range sv.Values {
		out.Values[name] = v
		if ts, ok := sv.FieldUpdatedAt[name]; ok {
			out.FieldUpdatedAt[name] = ts
		}
	}
	for name, v := range c.Values {
		cts := c.FieldUpdatedAt[name]
		if _, ok := out.Values[name]; ok && sv.FieldUpdatedAt[name].After(cts) {
			continue
		}
		out.Values[name] = v
		if !cts.IsZero() {
			out.FieldUpdatedAt[name] = cts
		} else {
			delete(out.FieldUpdatedAt, name)
		}
	}
	return json.Marshal(out)
}
