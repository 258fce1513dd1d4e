package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/db"
	"github.com/sells-group/placepulse/internal/docstore"
	"github.com/sells-group/placepulse/internal/events"
	"github.com/sells-group/placepulse/internal/geocache"
	"github.com/sells-group/placepulse/internal/ledger"
	"github.com/sells-group/placepulse/internal/maintenance"
	"github.com/sells-group/placepulse/internal/quota"
	"github.com/sells-group/placepulse/internal/resilience"
	"github.com/sells-group/placepulse/internal/resolver"
	"github.com/sells-group/placepulse/pkg/places"
)

// appEnv holds the wired services shared by the subcommands.
type appEnv struct {
	Store    docstore.Store
	Ledger   *ledger.Ledger
	Sweep    *maintenance.Sweep
	Resolver *resolver.Resolver
	Limiter  *quota.Limiter

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// postgres returns the Postgres store when the env runs on one.
func (e *appEnv) postgres() (*docstore.PostgresStore, bool) {
	pg, ok := e.Store.(*docstore.PostgresStore)
	return pg, ok
}

// initEnv opens the store and builds the ledger, sweep, and resolver from cfg.
func initEnv(ctx context.Context) (*appEnv, error) {
	env := &appEnv{}

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = store
	env.closers = append(env.closers, store.Close)

	counter, closeCounter, err := openCounter(ctx, store)
	if err != nil {
		env.Close()
		return nil, err
	}
	if closeCounter != nil {
		env.closers = append(env.closers, closeCounter)
	}
	env.Limiter = quota.NewLimiter(counter,
		quota.WithFailClosed(cfg.Quota.FailClosed),
		quota.WithOpTimeout(cfg.Store.OpTimeout()),
	)

	pub, err := openPublisher()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, pub.Close)

	env.Ledger = ledger.New(store, cfg.LedgerConfig(),
		ledger.WithPublisher(pub),
		ledger.WithUsage(env.Limiter),
	)
	env.Sweep = maintenance.New(store, cfg.LifecycleThresholds(), cfg.ScoringParams(), cfg.SweepConfig(),
		maintenance.WithPublisher(pub),
	)

	cache := geocache.New(store, cfg.GeoCacheSettings())
	guard := resilience.NewGuard(geocache.DefaultProvider, cfg.ProviderGuard())
	env.Resolver = resolver.New(cache, env.Limiter, newProvider(), guard, resolver.Config{
		CacheTTLDays:             cfg.GeoCache.TTLDays,
		MaxExternalLookupsPerDay: cfg.Quota.MaxExternalLookupsPerDay,
		SearchRadiusMeters:       cfg.Places.SearchRadiusMeters,
		ProviderName:             geocache.DefaultProvider,
	})

	return env, nil
}

// openStore opens the configured document store and applies its migration.
func openStore(ctx context.Context) (docstore.Store, error) {
	var store docstore.Store
	switch cfg.Store.Driver {
	case "memory":
		store = docstore.NewMemory()
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.Store.MaxConns)})
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		store = docstore.NewPostgres(pool)
	case "sqlite":
		s, err := docstore.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		store = s
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	zap.L().Debug("store ready", zap.String("driver", cfg.Store.Driver))
	return store, nil
}

// openCounter returns the quota counter for the configured backend and an
// optional close func.
func openCounter(ctx context.Context, store docstore.Store) (quota.Counter, func() error, error) {
	if cfg.Quota.Backend != "redis" {
		return quota.NewDocCounter(store), nil, nil
	}
	rdb, err := quota.DialRedis(ctx, cfg.Quota.RedisURL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open redis quota counter")
	}
	return quota.NewRedisCounter(rdb, cfg.Quota.RedisPrefix), rdb.Close, nil
}

// openPublisher connects to NATS when configured.
func openPublisher() (events.Publisher, error) {
	if cfg.Events.NATSURL == "" {
		return events.Nop{}, nil
	}
	pub, err := events.NewNATS(events.NATSConfig{
		URL:            cfg.Events.NATSURL,
		SubjectPrefix:  cfg.Events.SubjectPrefix,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open event publisher")
	}
	return pub, nil
}

// newProvider returns the Places client, or nil without an API key.
func newProvider() resolver.Provider {
	if cfg.Places.APIKey == "" {
		zap.L().Info("places api key not set, resolving from cache only")
		return nil
	}
	return places.NewClient(cfg.Places.APIKey,
		places.WithBaseURL(cfg.Places.BaseURL),
		places.WithLanguage(cfg.Places.Language),
		places.WithRateLimit(cfg.Places.RatePerSecond),
		places.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Places.TimeoutSecs) * time.Second}),
	)
}
