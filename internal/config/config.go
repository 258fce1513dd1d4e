package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/placepulse/internal/geocache"
	"github.com/sells-group/placepulse/internal/ledger"
	"github.com/sells-group/placepulse/internal/lifecycle"
	"github.com/sells-group/placepulse/internal/maintenance"
	"github.com/sells-group/placepulse/internal/model"
	"github.com/sells-group/placepulse/internal/resilience"
	"github.com/sells-group/placepulse/internal/scoring"
)

// Config holds the full application configuration.
type Config struct {
	Lifecycle   LifecycleConfig   `yaml:"lifecycle" mapstructure:"lifecycle"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	GeoCache    GeoCacheConfig    `yaml:"geocache" mapstructure:"geocache"`
	Quota       QuotaConfig       `yaml:"quota" mapstructure:"quota"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Places      PlacesConfig      `yaml:"places" mapstructure:"places"`
	Resilience  ResilienceConfig  `yaml:"resilience" mapstructure:"resilience"`
	Maintenance MaintenanceConfig `yaml:"maintenance" mapstructure:"maintenance"`
	Events      EventsConfig      `yaml:"events" mapstructure:"events"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// LifecycleConfig holds the feature gate and tab thresholds.
type LifecycleConfig struct {
	Enabled                      bool    `yaml:"enabled" mapstructure:"enabled"`
	RecentWindowDays             float64 `yaml:"recent_window_days" mapstructure:"recent_window_days"`
	TrendingMinBurst             uint    `yaml:"trending_min_burst" mapstructure:"trending_min_burst"`
	ClassicsMinAgeDays           float64 `yaml:"classics_min_age_days" mapstructure:"classics_min_age_days"`
	ClassicsMinTotalEndorsements uint    `yaml:"classics_min_total_endorsements" mapstructure:"classics_min_total_endorsements"`
	DownvoteHideThreshold        uint    `yaml:"downvote_hide_threshold" mapstructure:"downvote_hide_threshold"`
}

// ScoringConfig holds decay parameters.
type ScoringConfig struct {
	DecayHalfLifeDays float64       `yaml:"decay_half_life_days" mapstructure:"decay_half_life_days"`
	Weights           WeightsConfig `yaml:"weights" mapstructure:"weights"`

	// HistoryRetentionDays bounds each place's event log; 0 derives it.
	HistoryRetentionDays float64 `yaml:"history_retention_days" mapstructure:"history_retention_days"`
}

// WeightsConfig holds per-event score weights.
type WeightsConfig struct {
	Endorsement float64 `yaml:"endorsement" mapstructure:"endorsement"`
	Renewal     float64 `yaml:"renewal" mapstructure:"renewal"`
	Downvote    float64 `yaml:"downvote" mapstructure:"downvote"`
}

// GeoCacheConfig configures the coordinate cache.
type GeoCacheConfig struct {
	TTLDays                      float64 `yaml:"ttl_days" mapstructure:"ttl_days"`
	CoarseCandidateLimit         int     `yaml:"coarse_candidate_limit" mapstructure:"coarse_candidate_limit"`
	CoarseMatchMaxDistanceMeters float64 `yaml:"coarse_match_max_distance_meters" mapstructure:"coarse_match_max_distance_meters"`
}

// QuotaConfig configures the daily external lookup quota.
type QuotaConfig struct {
	MaxExternalLookupsPerDay uint   `yaml:"max_external_lookups_per_day" mapstructure:"max_external_lookups_per_day"`
	Backend                  string `yaml:"backend" mapstructure:"backend"` // "store" or "redis"
	RedisURL                 string `yaml:"redis_url" mapstructure:"redis_url"`
	RedisPrefix              string `yaml:"redis_prefix" mapstructure:"redis_prefix"`
	FailClosed               bool   `yaml:"fail_closed" mapstructure:"fail_closed"`
}

// StoreConfig configures the document store.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"` // "memory", "postgres", or "sqlite"
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns      int    `yaml:"max_conns" mapstructure:"max_conns"`
	OpTimeoutSecs int    `yaml:"op_timeout_secs" mapstructure:"op_timeout_secs"`
}

// OpTimeout returns the per-call store timeout.
func (s StoreConfig) OpTimeout() time.Duration {
	return time.Duration(s.OpTimeoutSecs) * time.Second
}

// PlacesConfig configures the Google Places client.
type PlacesConfig struct {
	APIKey             string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	Language           string  `yaml:"language" mapstructure:"language"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SearchRadiusMeters float64 `yaml:"search_radius_meters" mapstructure:"search_radius_meters"`
	RatePerSecond      float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// ResilienceConfig configures retries and the breaker around the place provider.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MaintenanceConfig configures the sweep.
type MaintenanceConfig struct {
	PageSize            int     `yaml:"page_size" mapstructure:"page_size"`
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	ScoreEpsilon        float64 `yaml:"score_epsilon" mapstructure:"score_epsilon"`
	MinIntervalMins     int     `yaml:"min_interval_mins" mapstructure:"min_interval_mins"`
	ScheduleIntervalMin int     `yaml:"schedule_interval_mins" mapstructure:"schedule_interval_mins"` // 0 disables the serve scheduler
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url" mapstructure:"nats_url"` // empty disables publishing
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("lifecycle.enabled", true)
	v.SetDefault("lifecycle.recent_window_days", 7)
	v.SetDefault("lifecycle.trending_min_burst", 3)
	v.SetDefault("lifecycle.classics_min_age_days", 30)
	v.SetDefault("lifecycle.classics_min_total_endorsements", 10)
	v.SetDefault("lifecycle.downvote_hide_threshold", 5)
	v.SetDefault("scoring.decay_half_life_days", 7)
	v.SetDefault("scoring.weights.endorsement", 1.0)
	v.SetDefault("scoring.weights.renewal", 0.6)
	v.SetDefault("scoring.weights.downvote", -1.0)
	v.SetDefault("scoring.history_retention_days", 0)
	v.SetDefault("geocache.ttl_days", 30)
	v.SetDefault("geocache.coarse_candidate_limit", 8)
	v.SetDefault("geocache.coarse_match_max_distance_meters", 150)
	v.SetDefault("quota.max_external_lookups_per_day", 1000)
	v.SetDefault("quota.backend", "store")
	v.SetDefault("quota.redis_url", "")
	v.SetDefault("quota.redis_prefix", "placepulse:quota:")
	v.SetDefault("quota.fail_closed", false)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.op_timeout_secs", 5)
	v.SetDefault("places.api_key", "")
	v.SetDefault("places.language", "en")
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.timeout_secs", 8)
	v.SetDefault("places.search_radius_meters", 75)
	v.SetDefault("places.rate_per_second", 5)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 200)
	v.SetDefault("resilience.max_backoff_ms", 2000)
	v.SetDefault("resilience.jitter", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("maintenance.page_size", 200)
	v.SetDefault("maintenance.concurrency", 4)
	v.SetDefault("maintenance.score_epsilon", 1e-6)
	v.SetDefault("maintenance.min_interval_mins", 60)
	v.SetDefault("maintenance.schedule_interval_mins", 0)
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "placepulse")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "serve",
// "maintenance", "migrate", "resolve", "cli".
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	switch mode {
	case "serve", "maintenance", "migrate", "resolve", "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Scoring.DecayHalfLifeDays <= 0 {
		add("scoring.decay_half_life_days must be > 0")
	}
	if c.Scoring.HistoryRetentionDays < 0 {
		add("scoring.history_retention_days must be >= 0")
	}
	if c.Lifecycle.RecentWindowDays <= 0 {
		add("lifecycle.recent_window_days must be > 0")
	}
	if c.Lifecycle.ClassicsMinAgeDays < 0 {
		add("lifecycle.classics_min_age_days must be >= 0")
	}
	if c.GeoCache.CoarseCandidateLimit < 1 {
		add("geocache.coarse_candidate_limit must be >= 1")
	}
	if c.GeoCache.CoarseMatchMaxDistanceMeters <= 0 {
		add("geocache.coarse_match_max_distance_meters must be > 0")
	}

	switch c.Store.Driver {
	case "memory":
		if mode == "migrate" {
			add("store.driver memory has nothing to migrate")
		}
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for driver %s", c.Store.Driver)
		}
	default:
		add("store.driver must be one of memory, postgres, sqlite")
	}

	switch c.Quota.Backend {
	case "store":
	case "redis":
		if c.Quota.RedisURL == "" {
			add("quota.redis_url is required for backend redis")
		}
	default:
		add("quota.backend must be store or redis")
	}

	if mode == "maintenance" || mode == "serve" {
		if c.Maintenance.Concurrency < 1 || c.Maintenance.Concurrency > 64 {
			add("maintenance.concurrency must be between 1 and 64")
		}
		if c.Maintenance.ScoreEpsilon < 0 {
			add("maintenance.score_epsilon must be >= 0")
		}
	}
	if mode == "serve" && c.Server.Port <= 0 {
		add("server.port must be > 0")
	}
	if mode == "resolve" && c.Places.APIKey == "" {
		add("places.api_key is required")
	}

	if len(errs) > 0 {
		return eris.Wrap(errors.New(strings.Join(errs, "; ")), "config: invalid")
	}
	return nil
}

// LifecycleThresholds returns the classifier settings.
func (c *Config) LifecycleThresholds() lifecycle.Config {
	return lifecycle.Config{
		RecentWindowDays:             c.Lifecycle.RecentWindowDays,
		TrendingMinBurst:             c.Lifecycle.TrendingMinBurst,
		ClassicsMinAgeDays:           c.Lifecycle.ClassicsMinAgeDays,
		ClassicsMinTotalEndorsements: c.Lifecycle.ClassicsMinTotalEndorsements,
		DownvoteHideThreshold:        c.Lifecycle.DownvoteHideThreshold,
	}
}

// ScoringParams returns the decay settings.
func (c *Config) ScoringParams() scoring.Config {
	return scoring.Config{
		HalfLifeDays: c.Scoring.DecayHalfLifeDays,
		Weights: scoring.Weights{
			model.EventEndorsement: c.Scoring.Weights.Endorsement,
			model.EventRenewal:     c.Scoring.Weights.Renewal,
			model.EventDownvote:    c.Scoring.Weights.Downvote,
		},
	}
}

// LedgerConfig returns the ledger settings.
func (c *Config) LedgerConfig() ledger.Config {
	return ledger.Config{
		Enabled:              c.Lifecycle.Enabled,
		Lifecycle:            c.LifecycleThresholds(),
		Scoring:              c.ScoringParams(),
		OpTimeout:            c.Store.OpTimeout(),
		HistoryRetentionDays: c.Scoring.HistoryRetentionDays,
	}
}

// GeoCacheSettings returns the geo cache settings.
func (c *Config) GeoCacheSettings() geocache.Config {
	return geocache.Config{
		CoarseCandidateLimit:         c.GeoCache.CoarseCandidateLimit,
		CoarseMatchMaxDistanceMeters: c.GeoCache.CoarseMatchMaxDistanceMeters,
		OpTimeout:                    c.Store.OpTimeout(),
	}
}

// SweepConfig returns the maintenance sweep settings.
func (c *Config) SweepConfig() maintenance.Config {
	return maintenance.Config{
		PageSize:     c.Maintenance.PageSize,
		Concurrency:  c.Maintenance.Concurrency,
		ScoreEpsilon: c.Maintenance.ScoreEpsilon,
		MinInterval:  time.Duration(c.Maintenance.MinIntervalMins) * time.Minute,
		OpTimeout:    c.Store.OpTimeout(),
	}
}

// ProviderGuard returns the resilience settings for the place provider.
func (c *Config) ProviderGuard() resilience.Config {
	return resilience.Config{
		Timeout: time.Duration(c.Places.TimeoutSecs) * time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:    c.Resilience.MaxAttempts,
			InitialBackoff: time.Duration(c.Resilience.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(c.Resilience.MaxBackoffMs) * time.Millisecond,
			Jitter:         c.Resilience.Jitter,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: c.Resilience.FailureThreshold,
			Cooldown:         time.Duration(c.Resilience.ResetTimeoutSecs) * time.Second,
		},
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
