// Package lifecycle derives tab membership and ordering from place stats.
package lifecycle

import (
	"slices"
	"strings"
	"time"

	"github.com/sells-group/placepulse/internal/model"
	"github.com/sells-group/placepulse/internal/scoring"
)

// Config holds the classification thresholds.
type Config struct {
	RecentWindowDays             float64
	TrendingMinBurst             uint
	ClassicsMinAgeDays           float64
	ClassicsMinTotalEndorsements uint
	DownvoteHideThreshold        uint
}

// TabSet is the set of tabs a place belongs to.
type TabSet map[model.Tab]struct{}

// Has reports whether tab is in the set.
func (s TabSet) Has(tab model.Tab) bool {
	_, ok := s[tab]
	return ok
}

// Slice returns the tabs in display order.
func (s TabSet) Slice() []model.Tab {
	out := make([]model.Tab, 0, len(s))
	for _, tab := range model.AllTabs {
		if s.Has(tab) {
			out = append(out, tab)
		}
	}
	return out
}

// SetOf builds a TabSet from a list.
func SetOf(tabs []model.Tab) TabSet {
	s := make(TabSet, len(tabs))
	for _, tab := range tabs {
		s[tab] = struct{}{}
	}
	return s
}

// Classify returns the tabs place belongs to at now. Hidden places belong to none.
func Classify(p *model.Place, now time.Time, cfg Config) TabSet {
	tabs := TabSet{}
	if p.IsHidden {
		return tabs
	}
	tabs[model.TabAll] = struct{}{}
	if InRecentWindow(p.LastEndorsedAt, now, cfg) {
		tabs[model.TabRecent] = struct{}{}
	}
	if p.RecentEndorsements >= cfg.TrendingMinBurst {
		tabs[model.TabTrending] = struct{}{}
	}
	if scoring.DaysBetween(p.CreatedAt, now) >= cfg.ClassicsMinAgeDays &&
		p.TotalEndorsements >= cfg.ClassicsMinTotalEndorsements {
		tabs[model.TabClassics] = struct{}{}
	}
	return tabs
}

// InRecentWindow reports whether t is within RecentWindowDays of now.
func InRecentWindow(t, now time.Time, cfg Config) bool {
	return scoring.DaysBetween(t, now) <= cfg.RecentWindowDays
}

// ShouldHide applies the downvote hiding rule.
func ShouldHide(downvotes, recentEndorsements uint, cfg Config) bool {
	if cfg.DownvoteHideThreshold > 0 && downvotes >= cfg.DownvoteHideThreshold {
		return true
	}
	return float64(downvotes) > 0.5*float64(recentEndorsements)
}

// Sort orders places for tab in place. Ties are broken by ID ascending.
func Sort(places []model.Place, tab model.Tab) {
	slices.SortStableFunc(places, func(a, b model.Place) int {
		var c int
		switch tab {
		case model.TabTrending:
			c = cmpDesc(a.Score, b.Score)
		case model.TabClassics:
			c = cmpDesc(a.TotalEndorsements, b.TotalEndorsements)
		default:
			c = b.ActivityAt().Compare(a.ActivityAt())
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func cmpDesc[T float64 | uint](a, b T) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
