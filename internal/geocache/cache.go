// Package geocache caches third-party place identity by coordinates. A fine
// bucket (about 11 m) points at one record; a coarse bucket (about 111 m)
// accumulates candidate ids that are matched by great-circle distance.
// The cache is best effort: store failures degrade to misses and dropped
// writes, never to errors.
package geocache

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/docstore"
	"github.com/sells-group/placepulse/internal/metrics"
	"github.com/sells-group/placepulse/internal/model"
)

// DefaultProvider is recorded on writes that do not name a provider.
const DefaultProvider = "google"

// Config holds the coarse-match tuning knobs.
type Config struct {
	CoarseCandidateLimit         int           `yaml:"coarse_candidate_limit" mapstructure:"coarse_candidate_limit"`
	CoarseMatchMaxDistanceMeters float64       `yaml:"coarse_match_max_distance_meters" mapstructure:"coarse_match_max_distance_meters"`
	OpTimeout                    time.Duration `yaml:"-" mapstructure:"-"`
}

// Tier identifies which bucket produced a hit.
type Tier string

// Lookup tiers.
const (
	TierMiss   Tier = "miss"
	TierFine   Tier = "fine"
	TierCoarse Tier = "coarse"
)

type fineEntry struct {
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
}

type coarseCandidate struct {
	Key     string    `json:"key"`
	AddedAt time.Time `json:"added_at"`
}

type coarseEntry struct {
	Candidates []coarseCandidate `json:"candidates"`
}

// Cache is the two-tier geo cache.
type Cache struct {
	store docstore.Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over store.
func New(store docstore.Store, cfg Config, opts ...Option) *Cache {
	if cfg.CoarseCandidateLimit <= 0 {
		cfg.CoarseCandidateLimit = 8
	}
	if cfg.CoarseMatchMaxDistanceMeters <= 0 {
		cfg.CoarseMatchMaxDistanceMeters = 150
	}
	c := &Cache{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns a fresh cached place near lat/lon, or false on a miss.
func (c *Cache) Lookup(ctx context.Context, lat, lon, ttlDays float64) (*model.CachedExternalPlace, bool) {
	rec, tier := c.lookup(ctx, lat, lon, ttlDays)
	metrics.CacheLookups.WithLabelValues(string(tier)).Inc()
	return rec, tier != TierMiss
}

func (c *Cache) lookup(ctx context.Context, lat, lon, ttlDays float64) (*model.CachedExternalPlace, Tier) {
	if ttlDays <= 0 || !ValidCoordinate(lat, lon) {
		return nil, TierMiss
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	log := zap.L().With(zap.Float64("lat", lat), zap.Float64("lon", lon))
	now := c.now()
	ttl := time.Duration(ttlDays * float64(24*time.Hour))

	fine := FineKey(lat, lon)
	var fe fineEntry
	err := c.store.Get(ctx, docstore.CollectionGeoFine, fine, &fe)
	switch {
	case err == nil:
		if rec := c.fresh(ctx, fe.Key, now, ttl); rec != nil {
			log.Debug("geocache: fine hit", zap.String("key", fe.Key))
			return rec, TierFine
		}
	case !errors.Is(err, docstore.ErrNotFound):
		log.Warn("geocache: fine bucket read failed", zap.Error(err))
		return nil, TierMiss
	}

	var ce coarseEntry
	err = c.store.Get(ctx, docstore.CollectionGeoCoarse, CoarseKey(lat, lon), &ce)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			log.Warn("geocache: coarse bucket read failed", zap.Error(err))
		}
		return nil, TierMiss
	}

	candidates := ce.Candidates
	if len(candidates) > c.cfg.CoarseCandidateLimit {
		candidates = candidates[len(candidates)-c.cfg.CoarseCandidateLimit:]
	}

	var (
		best     *model.CachedExternalPlace
		bestDist = c.cfg.CoarseMatchMaxDistanceMeters
	)
	// Most recent first, so equal distances favor the newest record.
	for i := len(candidates) - 1; i >= 0; i-- {
		if candidates[i].Key == fe.Key {
			continue
		}
		rec := c.fresh(ctx, candidates[i].Key, now, ttl)
		if rec == nil {
			continue
		}
		if d := Haversine(lat, lon, rec.Lat, rec.Lon); d <= bestDist && (best == nil || d < bestDist) {
			best, bestDist = rec, d
		}
	}
	if best == nil {
		return nil, TierMiss
	}
	log.Debug("geocache: coarse hit", zap.String("key", best.CacheKey()), zap.Float64("distance_m", bestDist))
	return best, TierCoarse
}

// fresh loads a record and returns it only if it is younger than ttl.
func (c *Cache) fresh(ctx context.Context, key string, now time.Time, ttl time.Duration) *model.CachedExternalPlace {
	var rec model.CachedExternalPlace
	if err := c.store.Get(ctx, docstore.CollectionExternalPlaces, key, &rec); err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			zap.L().Warn("geocache: record read failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	if now.Sub(rec.UpdatedAt) >= ttl {
		return nil
	}
	return &rec
}

// Store writes place at lat/lon: the record is merged into any existing one,
// the fine bucket is pointed at it, and its id is appended to the coarse
// bucket. All three writes share one transaction. Failures are logged and
// dropped.
func (c *Cache) Store(ctx context.Context, place *model.CachedExternalPlace, lat, lon float64) {
	if err := c.write(ctx, place, lat, lon); err != nil {
		metrics.CacheWriteFailures.Inc()
		zap.L().Warn("geocache: write dropped",
			zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
	}
}

func (c *Cache) write(ctx context.Context, place *model.CachedExternalPlace, lat, lon float64) error {
	if place == nil || place.ExternalPlaceID == "" {
		return eris.New("geocache: place without external id")
	}
	if !ValidCoordinate(lat, lon) {
		return eris.New("geocache: invalid coordinate")
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	now := c.now()
	incoming := *place
	if incoming.Provider == "" {
		incoming.Provider = DefaultProvider
	}
	incoming.Lat, incoming.Lon = lat, lon
	incoming.UpdatedAt = now
	key := incoming.CacheKey()

	return c.store.Transact(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var existing model.CachedExternalPlace
		err := tx.Get(ctx, docstore.CollectionExternalPlaces, key, &existing)
		switch {
		case err == nil:
			incoming = merge(existing, incoming)
		case !errors.Is(err, docstore.ErrNotFound):
			return err
		}
		if err := tx.Set(ctx, docstore.CollectionExternalPlaces, key, incoming); err != nil {
			return err
		}

		if err := tx.Set(ctx, docstore.CollectionGeoFine, FineKey(lat, lon), fineEntry{Key: key, UpdatedAt: now}); err != nil {
			return err
		}

		coarse := CoarseKey(lat, lon)
		var ce coarseEntry
		if err := tx.Get(ctx, docstore.CollectionGeoCoarse, coarse, &ce); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		ce.Candidates = slices.DeleteFunc(ce.Candidates, func(cand coarseCandidate) bool { return cand.Key == key })
		ce.Candidates = append(ce.Candidates, coarseCandidate{Key: key, AddedAt: now})
		return tx.Set(ctx, docstore.CollectionGeoCoarse, coarse, ce)
	})
}

// merge overlays next onto prev. Empty fields in next keep prev's values.
func merge(prev, next model.CachedExternalPlace) model.CachedExternalPlace {
	out := next
	if out.Name == "" {
		out.Name = prev.Name
	}
	if out.Address == "" {
		out.Address = prev.Address
	}
	if out.Website == "" {
		out.Website = prev.Website
	}
	if len(out.Types) == 0 {
		out.Types = prev.Types
	}
	if len(out.PhotoRefs) == 0 {
		out.PhotoRefs = prev.PhotoRefs
	}
	return out
}

func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OpTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.OpTimeout)
	}
	return context.WithCancel(ctx)
}
