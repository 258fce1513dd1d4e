// Package model holds the documents persisted by the lifecycle engine and
// the geo cache.
package model

import (
	"slices"
	"time"
)

// EventKind identifies a scored user action.
type EventKind string

// Event kinds.
const (
	EventEndorsement EventKind = "endorsement"
	EventRenewal     EventKind = "renewal"
	EventDownvote    EventKind = "downvote"
)

// Tab is a derived lifecycle classification used to filter the map view.
type Tab string

// Lifecycle tabs.
const (
	TabRecent   Tab = "recent"
	TabTrending Tab = "trending"
	TabClassics Tab = "classics"
	TabAll      Tab = "all"
)

// AllTabs lists the tabs in display order.
var AllTabs = []Tab{TabRecent, TabTrending, TabClassics, TabAll}

// ParseTab validates a tab name.
func ParseTab(s string) (Tab, bool) {
	t := Tab(s)
	return t, slices.Contains(AllTabs, t)
}

// Place is one real-world point of interest.
type Place struct {
	ID                 string    `json:"id"`
	ExternalPlaceID    string    `json:"external_place_id,omitempty"`
	Name               string    `json:"name"`
	Category           string    `json:"category,omitempty"`
	Lat                float64   `json:"lat"`
	Lon                float64   `json:"lon"`
	TotalEndorsements  uint      `json:"total_endorsements"`
	RecentEndorsements uint      `json:"recent_endorsements"`
	LastEndorsedAt     time.Time `json:"last_endorsed_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Downvotes          uint      `json:"downvotes"`
	IsHidden           bool      `json:"is_hidden"`
	Score              float64   `json:"score"`

	// LifecycleTabs is the tab snapshot taken by the last maintenance sweep.
	LifecycleTabs []Tab     `json:"lifecycle_tabs,omitempty"`
	LastSweptAt   time.Time `json:"last_swept_at,omitempty"`
}

// ActivityAt is the timestamp used to order the recent and all tabs.
func (p *Place) ActivityAt() time.Time {
	if p.LastEndorsedAt.After(p.CreatedAt) {
		return p.LastEndorsedAt
	}
	return p.CreatedAt
}

// PlaceSeed describes a place that may not exist yet.
type PlaceSeed struct {
	Name            string  `json:"name"`
	Category        string  `json:"category,omitempty"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	ExternalPlaceID string  `json:"external_place_id,omitempty"`
}

// EventEntry is one scored action in a place's history.
type EventEntry struct {
	ID     string    `json:"id"`
	Kind   EventKind `json:"kind"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// EventLog is the retained event history of a place. Entries trimmed from
// Events survive as Folded, their summed weight decayed to FoldedAt.
type EventLog struct {
	PlaceID  string       `json:"place_id"`
	Events   []EventEntry `json:"events"`
	Folded   float64      `json:"folded,omitempty"`
	FoldedAt time.Time    `json:"folded_at"`
}

// ActionRecord is the (place, user, kind) junction used for duplicate and
// 24h rate-limit checks.
type ActionRecord struct {
	PlaceID string    `json:"place_id"`
	UserID  string    `json:"user_id"`
	Kind    EventKind `json:"kind"`
	FirstAt time.Time `json:"first_at"`
	LastAt  time.Time `json:"last_at"`
	Count   uint      `json:"count"`
}

// ActionKey returns the document key of an action record.
func ActionKey(placeID, userID string, kind EventKind) string {
	return placeID + "|" + userID + "|" + string(kind)
}
