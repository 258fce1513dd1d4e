// Package ledger applies endorse, downvote, renew, and moderation transitions
// to places. Every transition is one store transaction covering the place,
// its event log, and the acting user's action record, so concurrent
// transitions on the same place never lose updates.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/apperr"
	"github.com/sells-group/placepulse/internal/docstore"
	"github.com/sells-group/placepulse/internal/events"
	"github.com/sells-group/placepulse/internal/geocache"
	"github.com/sells-group/placepulse/internal/lifecycle"
	"github.com/sells-group/placepulse/internal/metrics"
	"github.com/sells-group/placepulse/internal/model"
	"github.com/sells-group/placepulse/internal/scoring"
)

// ActionCooldown is the minimum gap between two downvotes or two renewals
// of the same place by the same user.
const ActionCooldown = 24 * time.Hour

// Config controls the ledger.
type Config struct {
	Enabled   bool
	Lifecycle lifecycle.Config
	Scoring   scoring.Config
	OpTimeout time.Duration
	// HistoryRetentionDays bounds the event log. Older entries are folded
	// into a single decayed weight. Zero derives it from the recent window
	// and half-life.
	HistoryRetentionDays float64
}

// historyHalfLives is how many half-lives of history are kept by default.
const historyHalfLives = 10

func (c Config) retention() time.Duration {
	days := c.HistoryRetentionDays
	if days <= 0 {
		days = max(c.Lifecycle.RecentWindowDays, historyHalfLives*c.Scoring.HalfLifeDays)
	}
	// Recent counts are read from the log, so the window must stay whole.
	days = max(days, c.Lifecycle.RecentWindowDays)
	return time.Duration(days * 24 * float64(time.Hour))
}

// UsageReporter reports today's consumption of a quota key.
type UsageReporter interface {
	Used(ctx context.Context, key string) (uint, error)
}

// Ledger is the system of record for place scores and counters.
type Ledger struct {
	store docstore.Store
	cfg   Config
	pub   events.Publisher
	usage UsageReporter
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) { l.pub = p }
}

// WithUsage attaches the quota usage source for dashboard stats.
func WithUsage(u UsageReporter) Option {
	return func(l *Ledger) { l.usage = u }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger.
func New(store docstore.Store, cfg Config, opts ...Option) *Ledger {
	l := &Ledger{store: store, cfg: cfg, pub: events.Nop{}, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EndorseRequest endorses an existing place by id, or a place described by
// a seed that is created on first endorsement.
type EndorseRequest struct {
	PlaceID string           `json:"place_id,omitempty"`
	Seed    *model.PlaceSeed `json:"seed,omitempty"`
	UserID  string           `json:"user_id"`
}

// Endorse records a user's endorsement. A user may endorse a place once.
func (l *Ledger) Endorse(ctx context.Context, req EndorseRequest) (*model.Place, error) {
	if err := l.gate(); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, eris.Wrap(apperr.ErrInvalidInput, "ledger: endorse: missing user id")
	}
	id := strings.TrimSpace(req.PlaceID)
	if req.Seed != nil {
		if err := validateSeed(req.Seed); err != nil {
			return nil, err
		}
		if id == "" {
			id = SeedID(*req.Seed)
		}
	}
	if id == "" {
		return nil, eris.Wrap(apperr.ErrInvalidInput, "ledger: endorse: missing place id or seed")
	}

	var (
		place   model.Place
		created bool
	)
	err := l.transact(ctx, "endorse", func(ctx context.Context, tx docstore.Tx) error {
		now := l.now()
		err := tx.Get(ctx, docstore.CollectionPlaces, id, &place)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			if req.Seed == nil {
				return eris.Wrapf(apperr.ErrNotFound, "ledger: place %s", id)
			}
			place = l.newPlace(id, *req.Seed, now)
			created = true
		case err != nil:
			return err
		default:
			rec, found, err := getAction(ctx, tx, id, userID, model.EventEndorsement)
			if err != nil {
				return err
			}
			if found {
				return eris.Wrapf(apperr.ErrDuplicateAction, "ledger: user %s already endorsed %s on %s",
					userID, id, rec.FirstAt.Format(time.DateOnly))
			}
			if lifecycle.InRecentWindow(place.LastEndorsedAt, now, l.cfg.Lifecycle) {
				place.RecentEndorsements++
			}
			place.TotalEndorsements++
			place.Score = l.cfg.Scoring.Roll(place.Score, place.UpdatedAt, now, model.EventEndorsement)
			place.LastEndorsedAt = now
			place.UpdatedAt = now
		}
		return l.record(ctx, tx, &place, userID, model.EventEndorsement, now)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("ledger: endorsed",
		zap.String("place_id", id), zap.String("user_id", userID),
		zap.Bool("created", created), zap.Uint("total", place.TotalEndorsements))
	l.publish(ctx, &place, userID, events.PlaceEndorsed)
	return &place, nil
}

// Downvote records a downvote and hides the place when the hiding rule
// trips. A user may downvote a place once per ActionCooldown.
func (l *Ledger) Downvote(ctx context.Context, placeID, userID string) (*model.Place, error) {
	var hidden bool
	place, err := l.cooledTransition(ctx, "downvote", placeID, userID, model.EventDownvote,
		func(p *model.Place, now time.Time) {
			p.Downvotes++
			p.Score = l.cfg.Scoring.Roll(p.Score, p.UpdatedAt, now, model.EventDownvote)
			p.UpdatedAt = now
			if !p.IsHidden && lifecycle.ShouldHide(p.Downvotes, p.RecentEndorsements, l.cfg.Lifecycle) {
				p.IsHidden = true
				hidden = true
			}
		})
	if err != nil {
		return nil, err
	}

	zap.L().Info("ledger: downvoted",
		zap.String("place_id", place.ID), zap.String("user_id", userID),
		zap.Uint("downvotes", place.Downvotes), zap.Bool("hidden", place.IsHidden))
	l.publish(ctx, place, userID, events.PlaceDownvoted)
	if hidden {
		l.publish(ctx, place, userID, events.PlaceHidden)
	}
	return place, nil
}

// Renew refreshes a place's recency without counting a new endorsement.
// A user may renew a place once per ActionCooldown.
func (l *Ledger) Renew(ctx context.Context, placeID, userID string) (*model.Place, error) {
	place, err := l.cooledTransition(ctx, "renew", placeID, userID, model.EventRenewal,
		func(p *model.Place, now time.Time) {
			if lifecycle.InRecentWindow(p.LastEndorsedAt, now, l.cfg.Lifecycle) &&
				p.RecentEndorsements < p.TotalEndorsements {
				p.RecentEndorsements++
			}
			p.Score = l.cfg.Scoring.Roll(p.Score, p.UpdatedAt, now, model.EventRenewal)
			p.LastEndorsedAt = now
			p.UpdatedAt = now
		})
	if err != nil {
		return nil, err
	}

	zap.L().Info("ledger: renewed",
		zap.String("place_id", place.ID), zap.String("user_id", userID),
		zap.Uint("recent", place.RecentEndorsements))
	l.publish(ctx, place, userID, events.PlaceRenewed)
	return place, nil
}

// cooledTransition runs the shared downvote/renew flow: load the place,
// enforce the per-user cooldown, apply mutate, and record the event.
func (l *Ledger) cooledTransition(ctx context.Context, op, placeID, userID string, kind model.EventKind,
	mutate func(p *model.Place, now time.Time)) (*model.Place, error) {
	if err := l.gate(); err != nil {
		return nil, err
	}
	placeID, userID = strings.TrimSpace(placeID), strings.TrimSpace(userID)
	if placeID == "" || userID == "" {
		return nil, eris.Wrapf(apperr.ErrInvalidInput, "ledger: %s: missing place or user id", op)
	}

	var place model.Place
	err := l.transact(ctx, op, func(ctx context.Context, tx docstore.Tx) error {
		now := l.now()
		if err := l.load(ctx, tx, placeID, &place); err != nil {
			return err
		}
		rec, found, err := getAction(ctx, tx, placeID, userID, kind)
		if err != nil {
			return err
		}
		if found && now.Sub(rec.LastAt) < ActionCooldown {
			return eris.Wrapf(apperr.ErrRateLimited, "ledger: %s: user %s acted on %s %s ago",
				op, userID, placeID, now.Sub(rec.LastAt).Round(time.Minute))
		}
		mutate(&place, now)
		return l.record(ctx, tx, &place, userID, kind, now)
	})
	if err != nil {
		return nil, err
	}
	return &place, nil
}

// Unhide is the moderation override: it clears the hidden flag and resets
// downvotes so the hiding rule does not immediately trip again.
func (l *Ledger) Unhide(ctx context.Context, placeID string) (*model.Place, error) {
	if err := l.gate(); err != nil {
		return nil, err
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, eris.Wrap(apperr.ErrInvalidInput, "ledger: unhide: missing place id")
	}

	var place model.Place
	err := l.transact(ctx, "unhide", func(ctx context.Context, tx docstore.Tx) error {
		if err := l.load(ctx, tx, placeID, &place); err != nil {
			return err
		}
		place.IsHidden = false
		place.Downvotes = 0
		place.UpdatedAt = l.now()
		return tx.Set(ctx, docstore.CollectionPlaces, placeID, place)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("ledger: unhidden", zap.String("place_id", placeID))
	l.publish(ctx, &place, "", events.PlaceUnhidden)
	return &place, nil
}

// Get loads a place by id.
func (l *Ledger) Get(ctx context.Context, placeID string) (*model.Place, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, eris.Wrap(apperr.ErrInvalidInput, "ledger: get: missing place id")
	}
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	var place model.Place
	err := l.store.Get(ctx, docstore.CollectionPlaces, placeID, &place)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, eris.Wrapf(apperr.ErrNotFound, "ledger: place %s", placeID)
	}
	if err != nil {
		return nil, apperr.Store(err, "ledger: get")
	}
	return &place, nil
}

// History returns the retained event log of a place.
func (l *Ledger) History(ctx context.Context, placeID string) (*model.EventLog, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	var log model.EventLog
	err := l.store.Get(ctx, docstore.CollectionPlaceEvents, placeID, &log)
	if errors.Is(err, docstore.ErrNotFound) {
		return &model.EventLog{PlaceID: placeID}, nil
	}
	if err != nil {
		return nil, apperr.Store(err, "ledger: history")
	}
	return &log, nil
}

func (l *Ledger) gate() error {
	if !l.cfg.Enabled {
		return apperr.ErrFeatureDisabled
	}
	return nil
}

func validateSeed(seed *model.PlaceSeed) error {
	if !geocache.ValidCoordinate(seed.Lat, seed.Lon) {
		return eris.Wrapf(apperr.ErrInvalidInput, "ledger: seed coordinate %f,%f out of range", seed.Lat, seed.Lon)
	}
	if strings.TrimSpace(seed.Name) == "" && seed.ExternalPlaceID == "" {
		return eris.Wrap(apperr.ErrInvalidInput, "ledger: seed needs a name or an external place id")
	}
	return nil
}

func (l *Ledger) newPlace(id string, seed model.PlaceSeed, now time.Time) model.Place {
	return model.Place{
		ID:                 id,
		ExternalPlaceID:    seed.ExternalPlaceID,
		Name:               strings.TrimSpace(seed.Name),
		Category:           seed.Category,
		Lat:                seed.Lat,
		Lon:                seed.Lon,
		TotalEndorsements:  1,
		RecentEndorsements: 1,
		LastEndorsedAt:     now,
		CreatedAt:          now,
		UpdatedAt:          now,
		Score: scoring.Clamp(scoring.ComputeScore(
			[]scoring.Event{{DaysAgo: 0, Weight: l.cfg.Scoring.Weight(model.EventEndorsement)}},
			l.cfg.Scoring.HalfLifeDays)),
	}
}

func (l *Ledger) load(ctx context.Context, tx docstore.Tx, placeID string, place *model.Place) error {
	err := tx.Get(ctx, docstore.CollectionPlaces, placeID, place)
	if errors.Is(err, docstore.ErrNotFound) {
		return eris.Wrapf(apperr.ErrNotFound, "ledger: place %s", placeID)
	}
	return err
}

func getAction(ctx context.Context, tx docstore.Tx, placeID, userID string, kind model.EventKind) (model.ActionRecord, bool, error) {
	var rec model.ActionRecord
	err := tx.Get(ctx, docstore.CollectionPlaceActions, model.ActionKey(placeID, userID, kind), &rec)
	if errors.Is(err, docstore.ErrNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// record writes the place, appends to its event log, and upserts the user's
// action record.
func (l *Ledger) record(ctx context.Context, tx docstore.Tx, place *model.Place, userID string, kind model.EventKind, now time.Time) error {
	if err := tx.Set(ctx, docstore.CollectionPlaces, place.ID, place); err != nil {
		return err
	}

	var log model.EventLog
	if err := tx.Get(ctx, docstore.CollectionPlaceEvents, place.ID, &log); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	log.PlaceID = place.ID
	log.Events = append(log.Events, model.EventEntry{ID: uuid.NewString(), Kind: kind, UserID: userID, At: now})
	if n := l.cfg.Scoring.Fold(&log, now.Add(-l.cfg.retention()), now); n > 0 {
		zap.L().Debug("ledger: folded old events", zap.String("place_id", place.ID), zap.Int("count", n))
	}
	if err := tx.Set(ctx, docstore.CollectionPlaceEvents, place.ID, log); err != nil {
		return err
	}

	rec, found, err := getAction(ctx, tx, place.ID, userID, kind)
	if err != nil {
		return err
	}
	if !found {
		rec = model.ActionRecord{PlaceID: place.ID, UserID: userID, Kind: kind, FirstAt: now}
	}
	rec.LastAt = now
	rec.Count++
	return tx.Set(ctx, docstore.CollectionPlaceActions, model.ActionKey(place.ID, userID, kind), rec)
}

// transact runs fn in a store transaction. User-facing errors pass through;
// anything else is reported as a store failure.
func (l *Ledger) transact(ctx context.Context, op string, fn func(ctx context.Context, tx docstore.Tx) error) error {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	err := l.store.Transact(ctx, fn)
	metrics.Transitions.WithLabelValues(op, outcomeLabel(err)).Inc()
	if err == nil || apperr.IsUserFacing(err) {
		return err
	}
	zap.L().Error("ledger: transaction failed", zap.String("op", op), zap.Error(err))
	return apperr.Store(err, "ledger: "+op)
}

func (l *Ledger) publish(ctx context.Context, place *model.Place, userID string, t events.Type) {
	if err := l.pub.Publish(ctx, events.New(t, place, userID, place.UpdatedAt)); err != nil {
		zap.L().Warn("ledger: publish event failed",
			zap.String("type", string(t)), zap.String("place_id", place.ID), zap.Error(err))
	}
}

func (l *Ledger) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.OpTimeout > 0 {
		return context.WithTimeout(ctx, l.cfg.OpTimeout)
	}
	return context.WithCancel(ctx)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrDuplicateAction):
		return "duplicate"
	case errors.Is(err, apperr.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
