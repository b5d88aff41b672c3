package pnrs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

// KeyPrefix prefixes every PNR key in the durable store.
const KeyPrefix = "pnr:"

func key(pnr string) string { return KeyPrefix + pnr }

type StoreRepository struct {
	store *storage.Store
	clock timex.Clock
}

func NewStoreRepository(store *storage.Store, clock timex.Clock) *StoreRepository {
	return &StoreRepository{store: store, clock: timex.OrReal(clock)}
}

// StorePNR writes rec under pnr, bumping the version. CreatedAt is kept from
// the existing record when rec leaves it zero; UpdatedAt is set to now.
func (r *StoreRepository) StorePNR(ctx context.Context, pnr string, rec models.PNRRecord) bool {
	if pnr == "" {
		return false
	}

	version := 1
	if e, ok := r.store.Entry(ctx, key(pnr)); ok {
		version = e.Version + 1
		if rec.CreatedAt.IsZero() {
			var prev models.PNRRecord
			if json.Unmarshal(e.Data, &prev) == nil {
				rec.CreatedAt = prev.CreatedAt
			}
		}
	}

	now := r.clock.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.PNR = pnr

	return r.store.Set(ctx, key(pnr), rec, storage.Options{TTL: common.DefaultPNRTTL, Version: version})
}

func (r *StoreRepository) GetPNR(ctx context.Context, pnr string) (models.PNRRecord, bool) {
	var rec models.PNRRecord
	if !r.store.Get(ctx, key(pnr), &rec) {
		return models.PNRRecord{}, false
	}
	return rec, true
}

// GetAllPNRs returns every live record, newest CreatedAt first. Expired and
// corrupt records are skipped.
func (r *StoreRepository) GetAllPNRs(ctx context.Context) []models.PNRRecord {
	keys := r.store.Keys(ctx, KeyPrefix)

	out := make([]models.PNRRecord, 0, len(keys))
	for _, k := range keys {
		if rec, ok := r.GetPNR(ctx, strings.TrimPrefix(k, KeyPrefix)); ok {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *StoreRepository) RemovePNR(ctx context.Context, pnr string) bool {
	return r.store.Remove(ctx, key(pnr))
}

func (r *StoreRepository) Version(ctx context.Context, pnr string) int {
	e, ok := r.store.Entry(ctx, key(pnr))
	if !ok {
		return 0
	}
	return e.Version
}

func (r *StoreRepository) Apply(ctx context.Context, pnr string, data json.RawMessage, version int) error {
	var rec models.PNRRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode pnr %s: %w", pnr, err)
	}
	if rec.PNR == "" {
		rec.PNR = pnr
	}
	if version <= 0 {
		version = 1
	}
	if !r.store.Set(ctx, key(pnr), rec, storage.Options{TTL: common.DefaultPNRTTL, Version: version}) {
		return fmt.Errorf("store pnr %s: %w", pnr, common.ErrWriteFailed)
	}
	return nil
}

// SetVersion moves the stored version of pnr and keeps its data. A missing
// record is left missing.
func (r *StoreRepository) SetVersion(ctx context.Context, pnr string, version int) error {
	var rec models.PNRRecord
	if !r.store.Get(ctx, key(pnr), &rec) {
		return nil
	}
	if !r.store.Set(ctx, key(pnr), rec, storage.Options{TTL: common.DefaultPNRTTL, Version: version}) {
		return fmt.Errorf("store pnr %s: %w", pnr, common.ErrWriteFailed)
	}
	return nil
}

func (r *StoreRepository) Delete(ctx context.Context, pnr string) error {
	if !r.RemovePNR(ctx, pnr) {
		return fmt.Errorf("remove pnr %s: %w", pnr, common.ErrWriteFailed)
	}
	return nil
}
