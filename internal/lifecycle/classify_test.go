package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/placepulse/internal/model"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		RecentWindowDays:             7,
		TrendingMinBurst:             3,
		ClassicsMinAgeDays:           30,
		ClassicsMinTotalEndorsements: 10,
		DownvoteHideThreshold:        5,
	}
}

func TestClassify_Classics(t *testing.T) {
	p := &model.Place{
		ID:                "p1",
		CreatedAt:         now.AddDate(0, 0, -40),
		LastEndorsedAt:    now.AddDate(0, 0, -20),
		TotalEndorsements: 12,
	}
	tabs := Classify(p, now, testConfig())
	assert.True(t, tabs.Has(model.TabClassics))
	assert.True(t, tabs.Has(model.TabAll))
	assert.False(t, tabs.Has(model.TabRecent))
	assert.False(t, tabs.Has(model.TabTrending))
}

func TestClassify_ClassicsNeedsBothThresholds(t *testing.T) {
	young := &model.Place{CreatedAt: now.AddDate(0, 0, -10), TotalEndorsements: 50}
	assert.False(t, Classify(young, now, testConfig()).Has(model.TabClassics))

	quiet := &model.Place{CreatedAt: now.AddDate(0, 0, -100), TotalEndorsements: 9}
	assert.False(t, Classify(quiet, now, testConfig()).Has(model.TabClassics))
}

func TestClassify_RecentBoundary(t *testing.T) {
	p := &model.Place{CreatedAt: now.AddDate(0, 0, -8), LastEndorsedAt: now.AddDate(0, 0, -7)}
	assert.True(t, Classify(p, now, testConfig()).Has(model.TabRecent))

	p.LastEndorsedAt = now.AddDate(0, 0, -7).Add(-time.Minute)
	assert.False(t, Classify(p, now, testConfig()).Has(model.TabRecent))
}

func TestClassify_Trending(t *testing.T) {
	p := &model.Place{CreatedAt: now, LastEndorsedAt: now, RecentEndorsements: 3, TotalEndorsements: 3}
	tabs := Classify(p, now, testConfig())
	assert.Equal(t, []model.Tab{model.TabRecent, model.TabTrending, model.TabAll}, tabs.Slice())
}

func TestClassify_HiddenBelongsToNone(t *testing.T) {
	p := &model.Place{
		CreatedAt:          now.AddDate(-1, 0, 0),
		LastEndorsedAt:     now,
		RecentEndorsements: 20,
		TotalEndorsements:  50,
		IsHidden:           true,
	}
	assert.Empty(t, Classify(p, now, testConfig()))
}

func TestShouldHide(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name      string
		downvotes uint
		recent    uint
		want      bool
	}{
		{"threshold reached", 5, 100, true},
		{"more than half of recent", 3, 4, true},
		{"exactly half", 2, 4, false},
		{"no downvotes", 0, 0, false},
		{"downvote with no recent", 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldHide(tt.downvotes, tt.recent, cfg))
		})
	}
}

func TestShouldHide_ZeroThresholdIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.DownvoteHideThreshold = 0
	assert.False(t, ShouldHide(0, 10, cfg))
}

func TestSort_Trending(t *testing.T) {
	places := []model.Place{
		{ID: "c", Score: 1},
		{ID: "b", Score: 3},
		{ID: "a", Score: 1},
	}
	Sort(places, model.TabTrending)
	assert.Equal(t, []string{"b", "a", "c"}, ids(places))
}

func TestSort_Classics(t *testing.T) {
	places := []model.Place{
		{ID: "x", TotalEndorsements: 10},
		{ID: "y", TotalEndorsements: 40},
		{ID: "w", TotalEndorsements: 10},
	}
	Sort(places, model.TabClassics)
	assert.Equal(t, []string{"y", "w", "x"}, ids(places))
}

func TestSort_RecentUsesLatestActivity(t *testing.T) {
	places := []model.Place{
		{ID: "old", CreatedAt: now.AddDate(0, 0, -10), LastEndorsedAt: now.AddDate(0, 0, -5)},
		{ID: "fresh", CreatedAt: now.AddDate(0, 0, -1)},
		{ID: "active", CreatedAt: now.AddDate(0, 0, -30), LastEndorsedAt: now},
		{ID: "b-tie", CreatedAt: now.AddDate(0, 0, -1)},
	}
	Sort(places, model.TabRecent)
	assert.Equal(t, []string{"active", "b-tie", "fresh", "old"}, ids(places))
}

func ids(places []model.Place) []string {
	out := make([]string, len(places))
	for i, p := range places {
		out[i] = p.ID
	}
	return out
}
