package tariff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/storage"
	"github.com/bolletta/bolletta/pkg/types"
)

// Source names a tariff source. It prefixes cache keys and labels metrics.
type Source string

const (
	SourceArera   Source = "arera"
	SourcePortale Source = "portale"
)

// Cache keeps parsed parameter sets per source, consumer class and period so
// a period is downloaded and parsed at most once.
type Cache struct {
	db  storage.Database
	now func() time.Time
}

// NewCache returns a Cache persisting to db.
func NewCache(db storage.Database) *Cache {
	return &Cache{db: db, now: time.Now}
}

// profileClass is the part of the profile that changes which values a source
// returns. ARERA rows depend on the house type only; Portale Offerte fields
// also depend on the contracted power.
func profileClass(source Source, profile types.ConsumerProfile) string {
	if source == SourcePortale && profile.HouseType == types.HouseTypeResidential {
		if profile.HighPower() {
			return string(profile.HouseType) + "_high"
		}
		return string(profile.HouseType) + "_low"
	}
	return string(profile.HouseType)
}

// CacheKey returns the key period is cached under, e.g.
// "arera:residential:2024_01" or "portale:residential_low:20240131".
func CacheKey(source Source, profile types.ConsumerProfile, period types.PeriodKey) string {
	return fmt.Sprintf("%s:%s:%s", source, profileClass(source, profile), period)
}

// Get returns the cached set. Storage failures are logged and reported as a
// miss so the caller falls back to downloading.
func (c *Cache) Get(ctx context.Context, source Source, profile types.ConsumerProfile, period types.PeriodKey) (types.TariffParameterSet, bool) {
	key := CacheKey(source, profile, period)
	params, err := c.db.GetTariff(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Ctx(ctx).WarnContext(ctx, "failed to read tariff cache", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	return params, true
}

// Put stores params. A failed write only costs a future download.
func (c *Cache) Put(ctx context.Context, source Source, profile types.ConsumerProfile, period types.PeriodKey, params types.TariffParameterSet) {
	key := CacheKey(source, profile, period)
	if err := c.db.PutTariff(ctx, key, params, c.now()); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to write tariff cache", slog.String("key", key), slog.Any("error", err))
	}
}
