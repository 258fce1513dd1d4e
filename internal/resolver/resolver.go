// Package resolver identifies the business at a coordinate for pin creation:
// geo cache first, then the daily external lookup quota, then the place
// provider behind a deadline, breaker, and retries.
package resolver

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/apperr"
	"github.com/sells-group/placepulse/internal/geocache"
	"github.com/sells-group/placepulse/internal/metrics"
	"github.com/sells-group/placepulse/internal/model"
	"github.com/sells-group/placepulse/internal/quota"
	"github.com/sells-group/placepulse/internal/resilience"
	"github.com/sells-group/placepulse/pkg/places"
)

// Provider is the external place lookup service.
type Provider interface {
	SearchNearby(ctx context.Context, lat, lon, radiusMeters float64, hint string) (*places.Candidate, error)
	Details(ctx context.Context, id string) (*places.Details, error)
}

// Source tells where a result came from.
type Source string

// Result sources.
const (
	SourceCache    Source = "cache"
	SourceProvider Source = "provider"
	SourceNone     Source = "none"
)

// Config tunes resolution.
type Config struct {
	CacheTTLDays             float64
	MaxExternalLookupsPerDay uint
	SearchRadiusMeters       float64
	ProviderName             string
}

// Request is a pin-creation lookup.
type Request struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Hint string  `json:"hint,omitempty"`
}

// Result is the resolved identity. Place is nil when nothing was found or
// the provider failed.
type Result struct {
	Place  *model.CachedExternalPlace `json:"place"`
	Source Source                     `json:"source"`
}

// Resolver runs the lookup chain.
type Resolver struct {
	cache    *geocache.Cache
	limiter  *quota.Limiter
	provider Provider
	guard    *resilience.Guard
	cfg      Config
}

// New creates a Resolver. A nil provider disables external lookups; cache
// hits are still served.
func New(cache *geocache.Cache, limiter *quota.Limiter, provider Provider, guard *resilience.Guard, cfg Config) *Resolver {
	if cfg.SearchRadiusMeters <= 0 {
		cfg.SearchRadiusMeters = 75
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = geocache.DefaultProvider
	}
	if guard == nil {
		guard = resilience.NewGuard(cfg.ProviderName, resilience.Config{})
	}
	return &Resolver{cache: cache, limiter: limiter, provider: provider, guard: guard, cfg: cfg}
}

// Resolve returns the external identity at req's coordinate. It fails only
// for invalid input or an exhausted quota.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if !geocache.ValidCoordinate(req.Lat, req.Lon) {
		return nil, eris.Wrapf(apperr.ErrInvalidInput, "resolver: coordinate %v,%v", req.Lat, req.Lon)
	}
	log := zap.L().With(zap.Float64("lat", req.Lat), zap.Float64("lon", req.Lon))

	if hit, ok := r.cache.Lookup(ctx, req.Lat, req.Lon, r.cfg.CacheTTLDays); ok {
		return &Result{Place: hit, Source: SourceCache}, nil
	}
	if r.provider == nil {
		log.Debug("resolver: no provider configured")
		return &Result{Source: SourceNone}, nil
	}

	d := r.limiter.TryConsume(ctx, quota.ExternalLookupKey, r.cfg.MaxExternalLookupsPerDay)
	if !d.Allowed {
		return nil, eris.Wrapf(apperr.ErrRateLimited, "resolver: %d external lookups per day used", r.cfg.MaxExternalLookupsPerDay)
	}

	cand, err := resilience.Call(ctx, r.guard, "search", func(ctx context.Context) (*places.Candidate, error) {
		return r.provider.SearchNearby(ctx, req.Lat, req.Lon, r.cfg.SearchRadiusMeters, req.Hint)
	})
	metrics.ProviderCalls.WithLabelValues("search", metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn("resolver: provider search failed", zap.Error(apperr.Provider(err, "resolver: search")))
		return &Result{Source: SourceNone}, nil
	}
	if cand == nil {
		return &Result{Source: SourceNone}, nil
	}

	det, err := resilience.Call(ctx, r.guard, "details", func(ctx context.Context) (*places.Details, error) {
		return r.provider.Details(ctx, cand.ID)
	})
	metrics.ProviderCalls.WithLabelValues("details", metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn("resolver: provider details failed", zap.String("external_place_id", cand.ID),
			zap.Error(apperr.Provider(err, "resolver: details")))
		return &Result{Source: SourceNone}, nil
	}

	place := toCached(cand, det, r.cfg.ProviderName)
	r.cache.Store(ctx, place, req.Lat, req.Lon)
	log.Info("resolver: resolved from provider",
		zap.String("external_place_id", place.ExternalPlaceID), zap.Uint("quota_remaining", d.Remaining))
	return &Result{Place: place, Source: SourceProvider}, nil
}

func toCached(cand *places.Candidate, det *places.Details, provider string) *model.CachedExternalPlace {
	p := &model.CachedExternalPlace{
		ExternalPlaceID: cand.ID,
		Provider:        provider,
		Name:            cand.Name,
		Types:           cand.Types,
		Lat:             cand.Lat,
		Lon:             cand.Lon,
	}
	if det == nil {
		return p
	}
	if det.ID != "" {
		p.ExternalPlaceID = det.ID
	}
	if det.Name != "" {
		p.Name = det.Name
	}
	if len(det.Types) > 0 {
		p.Types = det.Types
	}
	p.Address = det.Address
	p.Website = det.Website
	p.PhotoRefs = det.PhotoRefs
	return p
}
