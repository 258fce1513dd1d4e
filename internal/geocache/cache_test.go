package geocache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placepulse/internal/docstore"
	"github.com/sells-group/placepulse/internal/metrics"
	"github.com/sells-group/placepulse/internal/model"
)

const (
	capeTownLat = -33.9249
	capeTownLon = 18.4241
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, cfg Config) (*Cache, *clock, docstore.Store) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := docstore.NewMemory()
	return New(store, cfg, WithClock(clk.now)), clk, store
}

func tableMountain() *model.CachedExternalPlace {
	return &model.CachedExternalPlace{
		ExternalPlaceID: "ChIJ-table",
		Provider:        "google",
		Name:            "Table Mountain Cafe",
		Types:           []string{"cafe"},
	}
}

func TestLookup_FineRoundTrip(t *testing.T) {
	c, _, _ := newTestCache(t, Config{})
	ctx := context.Background()

	c.Store(ctx, tableMountain(), capeTownLat, capeTownLon)

	rec, tier := c.lookup(ctx, capeTownLat, capeTownLon, 30)
	require.NotNil(t, rec)
	assert.Equal(t, TierFine, tier)
	assert.Equal(t, "ChIJ-table", rec.ExternalPlaceID)

	got, ok := c.Lookup(ctx, capeTownLat, capeTownLon, 30)
	require.True(t, ok)
	assert.Equal(t, "Table Mountain Cafe", got.Name)
}

func TestLookup_CoarseFallback(t *testing.T) {
	c, _, _ := newTestCache(t, Config{})
	ctx := context.Background()
	c.Store(ctx, tableMountain(), capeTownLat, capeTownLon)

	// About 40 m away: different fine bucket, same coarse bucket.
	require.NotEqual(t, FineKey(capeTownLat, capeTownLon), FineKey(-33.9252, 18.4244))
	require.Equal(t, CoarseKey(capeTownLat, capeTownLon), CoarseKey(-33.9252, 18.4244))

	rec, tier := c.lookup(ctx, -33.9252, 18.4244, 30)
	require.NotNil(t, rec)
	assert.Equal(t, TierCoarse, tier)
	assert.Equal(t, "ChIJ-table", rec.ExternalPlaceID)
}

func TestLookup_FarPointMisses(t *testing.T) {
	c, _, _ := newTestCache(t, Config{})
	ctx := context.Background()
	c.Store(ctx, tableMountain(), capeTownLat, capeTownLon)

	// About 300 m south.
	_, ok := c.Lookup(ctx, -33.9276, capeTownLon, 30)
	assert.False(t, ok)
}

func TestLookup_CoarseDistanceLimit(t *testing.T) {
	c, _, _ := newTestCache(t, Config{CoarseMatchMaxDistanceMeters: 20})
	ctx := context.Background()
	c.Store(ctx, tableMountain(), capeTownLat, capeTownLon)

	_, tier := c.lookup(ctx, -33.9252, 18.4244, 30)
	assert.Equal(t, TierMiss, tier)
}

func TestLookup_ExpiredRecordMisses(t *testing.T) {
	c, clk, _ := newTestCache(t, Config{})
	ctx := context.Background()
	c.Store(ctx, tableMountain(), capeTownLat, capeTownLon)

	clk.advance(29 * 24 * time.Hour)
	_, ok := c.Lookup(ctx, capeTownLat, capeTownLon, 30)
	assert.True(t, ok)

	clk.advance(24 * time.Hour)
	_, ok = c.Lookup(ctx, capeTownLat, capeTownLon, 30)
	assert.False(t, ok)

	_, ok = c.Lookup(ctx, -33.9252, 18.4244, 30)
	assert.False(t, ok)
}

func TestLookup_CandidateLimit(t *testing.T) {
	ctx := context.Background()
	near := &model.CachedExternalPlace{ExternalPlaceID: "near", Provider: "google"}
	newer := &model.CachedExternalPlace{ExternalPlaceID: "newer", Provider: "google"}
	query := [2]float64{-33.9250, 18.4242}

	t.Run("closest wins within limit", func(t *testing.T) {
		c, clk, _ := newTestCache(t, Config{})
		c.Store(ctx, near, capeTownLat, capeTownLon)
		clk.advance(time.Minute)
		c.Store(ctx, newer, -33.9246, 18.4238)

		rec, tier := c.lookup(ctx, query[0], query[1], 30)
		require.NotNil(t, rec)
		assert.Equal(t, TierCoarse, tier)
		assert.Equal(t, "near", rec.ExternalPlaceID)
	})

	t.Run("only most recent candidates are read", func(t *testing.T) {
		c, clk, _ := newTestCache(t, Config{CoarseCandidateLimit: 1})
		c.Store(ctx, near, capeTownLat, capeTownLon)
		clk.advance(time.Minute)
		c.Store(ctx, newer, -33.9246, 18.4238)

		rec, _ := c.lookup(ctx, query[0], query[1], 30)
		require.NotNil(t, rec)
		assert.Equal(t, "newer", rec.ExternalPlaceID)
	})
}

func TestStore_MergesRecord(t *testing.T) {
	c, _, store := newTestCache(t, Config{})
	ctx := context.Background()
	c.Store(ctx, &model.CachedExternalPlace{
		ExternalPlaceID: "x1", Provider: "google", Name: "Old Name", Website: "https://example.com",
	}, capeTownLat, capeTownLon)
	c.Store(ctx, &model.CachedExternalPlace{
		ExternalPlaceID: "x1", Provider: "google", Name: "New Name", Address: "1 Long St",
	}, capeTownLat, capeTownLon)

	var rec model.CachedExternalPlace
	require.NoError(t, store.Get(ctx, docstore.CollectionExternalPlaces, "google:x1", &rec))
	assert.Equal(t, "New Name", rec.Name)
	assert.Equal(t, "1 Long St", rec.Address)
	assert.Equal(t, "https://example.com", rec.Website)
}

func TestStore_CoarseBucketIsAdditive(t *testing.T) {
	c, clk, store := newTestCache(t, Config{})
	ctx := context.Background()
	a := &model.CachedExternalPlace{ExternalPlaceID: "a"}
	b := &model.CachedExternalPlace{ExternalPlaceID: "b"}

	c.Store(ctx, a, capeTownLat, capeTownLon)
	clk.advance(time.Second)
	c.Store(ctx, b, -33.9246, 18.4238)
	clk.advance(time.Second)
	c.Store(ctx, a, capeTownLat, capeTownLon)

	var ce coarseEntry
	require.NoError(t, store.Get(ctx, docstore.CollectionGeoCoarse, CoarseKey(capeTownLat, capeTownLon), &ce))
	require.Len(t, ce.Candidates, 2)
	assert.Equal(t, "google:b", ce.Candidates[0].Key)
	assert.Equal(t, "google:a", ce.Candidates[1].Key, "re-added id moves to the end")
}

func TestStore_RejectsIncompleteInput(t *testing.T) {
	c, _, store := newTestCache(t, Config{})
	ctx := context.Background()

	c.Store(ctx, nil, capeTownLat, capeTownLon)
	c.Store(ctx, &model.CachedExternalPlace{}, capeTownLat, capeTownLon)
	c.Store(ctx, tableMountain(), 120, capeTownLon)

	docs, err := store.List(ctx, docstore.CollectionExternalPlaces, "", 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

type brokenStore struct {
	docstore.Store
}

var errDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string, string, any) error { return errDown }
func (brokenStore) Transact(context.Context, func(context.Context, docstore.Tx) error) error {
	return errDown
}

func TestCache_StoreFailuresDegrade(t *testing.T) {
	c := New(brokenStore{}, Config{})
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.CacheWriteFailures)

	assert.NotPanics(t, func() { c.Store(ctx, tableMountain(), capeTownLat, capeTownLon) })
	assert.InDelta(t, before+1, testutil.ToFloat64(metrics.CacheWriteFailures), 1e-9)

	rec, ok := c.Lookup(ctx, capeTownLat, capeTownLon, 30)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestLookup_InvalidInput(t *testing.T) {
	c, _, _ := newTestCache(t, Config{})
	ctx := context.Background()
	c.Store(ctx, tableMountain(), capeTownLat, capeTownLon)

	_, ok := c.Lookup(ctx, capeTownLat, capeTownLon, 0)
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, 91, 0, 30)
	assert.False(t, ok)
}
