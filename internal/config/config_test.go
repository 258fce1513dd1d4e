package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Lifecycle.Enabled)
	assert.InDelta(t, 7, cfg.Lifecycle.RecentWindowDays, 0.001)
	assert.Equal(t, uint(3), cfg.Lifecycle.TrendingMinBurst)
	assert.InDelta(t, 30, cfg.Lifecycle.ClassicsMinAgeDays, 0.001)
	assert.Equal(t, uint(10), cfg.Lifecycle.ClassicsMinTotalEndorsements)
	assert.Equal(t, uint(5), cfg.Lifecycle.DownvoteHideThreshold)
	assert.InDelta(t, 7, cfg.Scoring.DecayHalfLifeDays, 0.001)
	assert.InDelta(t, 0.6, cfg.Scoring.Weights.Renewal, 0.001)
	assert.InDelta(t, -1.0, cfg.Scoring.Weights.Downvote, 0.001)
	assert.Equal(t, 8, cfg.GeoCache.CoarseCandidateLimit)
	assert.InDelta(t, 150, cfg.GeoCache.CoarseMatchMaxDistanceMeters, 0.001)
	assert.Equal(t, "store", cfg.Quota.Backend)
	assert.False(t, cfg.Quota.FailClosed)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout())
	assert.Equal(t, "https://places.googleapis.com/v1", cfg.Places.BaseURL)
	assert.InDelta(t, 75, cfg.Places.SearchRadiusMeters, 0.001)
	assert.Equal(t, 200, cfg.Maintenance.PageSize)
	assert.InDelta(t, 1e-6, cfg.Maintenance.ScoreEpsilon, 1e-9)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: file:places.db
lifecycle:
  enabled: false
  trending_min_burst: 4
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:places.db", cfg.Store.DatabaseURL)
	assert.False(t, cfg.Lifecycle.Enabled)
	assert.Equal(t, uint(4), cfg.Lifecycle.TrendingMinBurst)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, uint(5), cfg.Lifecycle.DownvoteHideThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PLACEPULSE_STORE_DRIVER", "postgres")
	t.Setenv("PLACEPULSE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PLACEPULSE_SERVER_PORT", "3000")
	t.Setenv("PLACEPULSE_QUOTA_MAX_EXTERNAL_LOOKUPS_PER_DAY", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, uint(25), cfg.Quota.MaxExternalLookupsPerDay)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PLACEPULSE_PLACES_API_KEY=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("PLACEPULSE_PLACES_API_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Places.APIKey)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [\n"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Lifecycle.RecentWindowDays = 7
	cfg.Lifecycle.ClassicsMinAgeDays = 30
	cfg.Scoring.DecayHalfLifeDays = 7
	cfg.GeoCache.CoarseCandidateLimit = 8
	cfg.GeoCache.CoarseMatchMaxDistanceMeters = 150
	cfg.Quota.Backend = "store"
	cfg.Store.Driver = "memory"
	cfg.Maintenance.Concurrency = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()

	cfg.Store.Driver = "postgres"
	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for driver postgres")

	cfg.Store.DatabaseURL = "postgres://localhost/places"
	assert.NoError(t, cfg.Validate("cli"))

	cfg.Store.Driver = "mongo"
	err = cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be one of")
}

func TestValidateMigrate_MemoryStore(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to migrate")
}

func TestValidateQuotaBackend(t *testing.T) {
	cfg := validDefaults()
	cfg.Quota.Backend = "redis"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota.redis_url is required")

	cfg.Quota.RedisURL = "redis://localhost:6379/0"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Maintenance.Concurrency = 0
	err := cfg.Validate("maintenance")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance.concurrency must be between 1 and 64")

	cfg.Maintenance.Concurrency = 65
	assert.Error(t, cfg.Validate("maintenance"))

	// Not checked outside the sweep modes.
	assert.NoError(t, cfg.Validate("cli"))

	cfg.Maintenance.Concurrency = 64
	assert.NoError(t, cfg.Validate("maintenance"))
}

func TestValidateHalfLife(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.DecayHalfLifeDays = 0

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.decay_half_life_days must be > 0")
}

func TestValidateResolve_RequiresAPIKey(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "places.api_key is required")

	cfg.Places.APIKey = "key"
	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = -1
	cfg.GeoCache.CoarseCandidateLimit = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "geocache.coarse_candidate_limit")
}

func TestDomainConversions(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	lc := cfg.LedgerConfig()
	assert.True(t, lc.Enabled)
	assert.Equal(t, uint(5), lc.Lifecycle.DownvoteHideThreshold)
	assert.InDelta(t, 7, lc.Scoring.HalfLifeDays, 0.001)
	assert.InDelta(t, 1.0, lc.Scoring.Weights[model.EventEndorsement], 0.001)
	assert.Equal(t, 5*time.Second, lc.OpTimeout)

	sc := cfg.SweepConfig()
	assert.Equal(t, time.Hour, sc.MinInterval)
	assert.Equal(t, 4, sc.Concurrency)

	gc := cfg.GeoCacheSettings()
	assert.Equal(t, 8, gc.CoarseCandidateLimit)

	pg := cfg.ProviderGuard()
	assert.Equal(t, 8*time.Second, pg.Timeout)
	assert.Equal(t, 3, pg.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, pg.Retry.InitialBackoff)
	assert.Equal(t, 30*time.Second, pg.Breaker.Cooldown)
}
