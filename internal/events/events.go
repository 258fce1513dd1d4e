// Package events publishes place lifecycle transitions to interested
// subscribers. Publishing is fire-and-forget from the ledger's perspective.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/placepulse/internal/model"
)

// Type names a lifecycle transition.
type Type string

// Lifecycle event types. They double as NATS subject suffixes.
const (
	PlaceEndorsed  Type = "place.endorsed"
	PlaceDownvoted Type = "place.downvoted"
	PlaceRenewed   Type = "place.renewed"
	PlaceHidden    Type = "place.hidden"
	PlaceUnhidden  Type = "place.unhidden"
)

// Event is the payload of a lifecycle transition.
type Event struct {
	ID       string    `json:"id"`
	Type     Type      `json:"type"`
	PlaceID  string    `json:"place_id"`
	UserID   string    `json:"user_id,omitempty"`
	Score    float64   `json:"score"`
	IsHidden bool      `json:"is_hidden"`
	At       time.Time `json:"at"`
}

// New builds an event for place p.
func New(t Type, p *model.Place, userID string, at time.Time) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     t,
		PlaceID:  p.ID,
		UserID:   userID,
		Score:    p.Score,
		IsHidden: p.IsHidden,
		At:       at,
	}
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Recorder keeps published events in memory. Used by tests and the
// stats command's dry runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close implements Publisher.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the published event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
