// Package maintenance runs the periodic sweep that recomputes scores,
// recent counters, hiding, and tab snapshots for every place.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/placepulse/internal/apperr"
	"github.com/sells-group/placepulse/internal/docstore"
	"github.com/sells-group/placepulse/internal/events"
	"github.com/sells-group/placepulse/internal/lifecycle"
	"github.com/sells-group/placepulse/internal/metrics"
	"github.com/sells-group/placepulse/internal/model"
	"github.com/sells-group/placepulse/internal/scoring"
)

// lastRunKey is the marker document of the last completed sweep.
const lastRunKey = "last"

// Config tunes the sweep.
type Config struct {
	PageSize     int           `yaml:"page_size" mapstructure:"page_size"`
	Concurrency  int           `yaml:"concurrency" mapstructure:"concurrency"`
	ScoreEpsilon float64       `yaml:"score_epsilon" mapstructure:"score_epsilon"`
	MinInterval  time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
	OpTimeout    time.Duration `yaml:"-" mapstructure:"-"`
}

// RunOptions controls a single run.
type RunOptions struct {
	// Force runs even if the previous sweep finished within MinInterval.
	Force bool
}

// Sweep recomputes derived place state.
type Sweep struct {
	store     docstore.Store
	lifecycle lifecycle.Config
	scoring   scoring.Config
	cfg       Config
	pub       events.Publisher
	now       func() time.Time
}

// Option configures a Sweep.
type Option func(*Sweep)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweep) { s.now = now }
}

// WithPublisher publishes place.hidden events for places the sweep hides.
func WithPublisher(p events.Publisher) Option {
	return func(s *Sweep) { s.pub = p }
}

// New creates a Sweep.
func New(store docstore.Store, lc lifecycle.Config, sc scoring.Config, cfg Config, opts ...Option) *Sweep {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	s := &Sweep{store: store, lifecycle: lc, scoring: sc, cfg: cfg, pub: events.Nop{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// delta is the per-place outcome of a sweep.
type delta struct {
	scoreUpdated     bool
	lifecycleUpdated bool
	expired          bool
	newClassics      bool
	newTrending      bool
	hidden           bool
}

// Run sweeps every place. Per-place failures are collected in the report.
// Cancellation stops the sweep between places; each place's update is
// atomic either way.
func (s *Sweep) Run(ctx context.Context, opts RunOptions) (*model.MaintenanceReport, error) {
	start := s.now()
	report := &model.MaintenanceReport{RunID: uuid.NewString(), StartedAt: start, Errors: []string{}}
	log := zap.L().With(zap.String("run_id", report.RunID))

	if !opts.Force {
		skip, err := s.recentlyRan(ctx, start)
		if err != nil {
			return nil, err
		}
		if skip {
			report.Skipped = true
			report.FinishedAt = start
			log.Info("maintenance: skipped, previous run is recent", zap.Duration("min_interval", s.cfg.MinInterval))
			return report, nil
		}
	}

	log.Info("maintenance: sweep started", zap.Int("page_size", s.cfg.PageSize), zap.Int("concurrency", s.cfg.Concurrency))
	var mu sync.Mutex
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return s.interrupted(report, err)
		}
		docs, err := s.store.List(ctx, docstore.CollectionPlaces, after, s.cfg.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupted(report, ctx.Err())
			}
			return nil, apperr.Store(err, "maintenance: list places")
		}

		g := new(errgroup.Group)
		g.SetLimit(s.cfg.Concurrency)
		for _, d := range docs {
			id := d.Key
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				dl, err := s.sweepPlace(ctx, id, start)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					metrics.SweepPlaces.WithLabelValues("error").Inc()
					report.Errors = append(report.Errors, fmt.Sprintf("place %s: %v", id, err))
					log.Warn("maintenance: place failed", zap.String("place_id", id), zap.Error(err))
					return nil
				}
				report.PinsProcessed++
				tally(report, dl)
				return nil
			})
		}
		_ = g.Wait()

		if len(docs) < s.cfg.PageSize {
			break
		}
		after = docs[len(docs)-1].Key
	}
	if err := ctx.Err(); err != nil {
		return s.interrupted(report, err)
	}

	report.FinishedAt = s.now()
	slices.Sort(report.Errors)
	s.saveRun(ctx, report)
	metrics.SweepDuration.Observe(report.FinishedAt.Sub(start).Seconds())

	log.Info("maintenance: sweep finished",
		zap.Int("processed", report.PinsProcessed),
		zap.Int("scores_updated", report.ScoresUpdated),
		zap.Int("lifecycle_updated", report.LifecycleUpdated),
		zap.Int("hidden", report.HiddenPins),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func tally(r *model.MaintenanceReport, d delta) {
	outcome := "unchanged"
	if d.scoreUpdated {
		r.ScoresUpdated++
		outcome = "updated"
	}
	if d.lifecycleUpdated {
		r.LifecycleUpdated++
		outcome = "updated"
	}
	if d.expired {
		r.ExpiredPins++
	}
	if d.newClassics {
		r.NewClassics++
	}
	if d.newTrending {
		r.NewTrending++
	}
	if d.hidden {
		r.HiddenPins++
	}
	metrics.SweepPlaces.WithLabelValues(outcome).Inc()
}

func (s *Sweep) interrupted(report *model.MaintenanceReport, err error) (*model.MaintenanceReport, error) {
	report.FinishedAt = s.now()
	zap.L().Warn("maintenance: sweep interrupted",
		zap.String("run_id", report.RunID), zap.Int("processed", report.PinsProcessed), zap.Error(err))
	return report, eris.Wrap(err, "maintenance: interrupted")
}

func (s *Sweep) recentlyRan(ctx context.Context, now time.Time) (bool, error) {
	if s.cfg.MinInterval <= 0 {
		return false, nil
	}
	var last model.MaintenanceRun
	err := s.store.Get(ctx, docstore.CollectionMaintenanceRuns, lastRunKey, &last)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Store(err, "maintenance: read last run")
	}
	return now.Sub(last.FinishedAt) < s.cfg.MinInterval, nil
}

// saveRun records the run marker and the full report. Failures only log:
// the sweep itself already committed.
func (s *Sweep) saveRun(ctx context.Context, report *model.MaintenanceReport) {
	run := model.MaintenanceRun{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Processed:  report.PinsProcessed,
		Errors:     len(report.Errors),
	}
	err := s.store.Transact(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Set(ctx, docstore.CollectionMaintenanceRuns, lastRunKey, run); err != nil {
			return err
		}
		return tx.Set(ctx, docstore.CollectionMaintenanceRuns, "report:"+report.RunID, report)
	})
	if err != nil {
		zap.L().Warn("maintenance: failed to record run", zap.String("run_id", report.RunID), zap.Error(err))
	}
}

// sweepPlace recomputes one place in its own transaction and writes it back
// only if something changed.
func (s *Sweep) sweepPlace(ctx context.Context, id string, now time.Time) (delta, error) {
	if s.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.OpTimeout)
		defer cancel()
	}

	var (
		d     delta
		place model.Place
	)
	err := s.store.Transact(ctx, func(ctx context.Context, tx docstore.Tx) error {
		d = delta{}
		if err := tx.Get(ctx, docstore.CollectionPlaces, id, &place); err != nil {
			return err
		}
		var log model.EventLog
		if err := tx.Get(ctx, docstore.CollectionPlaceEvents, id, &log); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}

		next := s.recompute(place, &log, now)
		prevTabs := lifecycle.SetOf(place.LifecycleTabs)
		nextTabs := lifecycle.SetOf(next.LifecycleTabs)

		// Decay since the score was last written is not an update; only
		// drift that decay does not explain is counted.
		d.scoreUpdated = math.Abs(next.Score-s.decayedScore(place, now)) > s.cfg.ScoreEpsilon
		refresh := math.Abs(next.Score-place.Score) > s.cfg.ScoreEpsilon
		d.lifecycleUpdated = !slices.Equal(prevTabs.Slice(), nextTabs.Slice()) ||
			next.RecentEndorsements != place.RecentEndorsements ||
			next.IsHidden != place.IsHidden
		d.expired = prevTabs.Has(model.TabRecent) && !nextTabs.Has(model.TabRecent)
		d.newClassics = nextTabs.Has(model.TabClassics) && !prevTabs.Has(model.TabClassics)
		d.newTrending = nextTabs.Has(model.TabTrending) && !prevTabs.Has(model.TabTrending)
		d.hidden = next.IsHidden && !place.IsHidden

		if !refresh && !d.lifecycleUpdated {
			return nil
		}
		next.LastSweptAt = now
		place = next
		return tx.Set(ctx, docstore.CollectionPlaces, id, next)
	})
	if err != nil {
		return delta{}, err
	}
	if d.hidden {
		if err := s.pub.Publish(ctx, events.New(events.PlaceHidden, &place, "", now)); err != nil {
			zap.L().Warn("maintenance: publish failed", zap.String("place_id", id), zap.Error(err))
		}
	}
	return d, nil
}

// decayedScore ages the stored score from when it was last written (by a
// transition or a sweep) to now.
func (s *Sweep) decayedScore(p model.Place, now time.Time) float64 {
	at := p.UpdatedAt
	if p.LastSweptAt.After(at) {
		at = p.LastSweptAt
	}
	if at.IsZero() {
		return p.Score
	}
	return scoring.Decay(p.Score, scoring.DaysBetween(at, now), s.scoring.HalfLifeDays)
}

// recompute derives score, recent count, hiding, and tabs at now.
func (s *Sweep) recompute(p model.Place, log *model.EventLog, now time.Time) model.Place {
	next := p
	if len(log.Events) > 0 || log.Folded != 0 {
		next.Score = s.scoring.FromLog(log, now)
		var recent uint
		for _, e := range log.Events {
			if e.Kind != model.EventDownvote && lifecycle.InRecentWindow(e.At, now, s.lifecycle) {
				recent++
			}
		}
		next.RecentEndorsements = recent
	} else {
		next.Score = s.scoring.FromCounters(&p, now)
		if !lifecycle.InRecentWindow(p.LastEndorsedAt, now, s.lifecycle) {
			next.RecentEndorsements = 0
		}
	}
	next.RecentEndorsements = min(next.RecentEndorsements, next.TotalEndorsements)
	next.IsHidden = lifecycle.ShouldHide(next.Downvotes, next.RecentEndorsements, s.lifecycle)

	tabs := lifecycle.Classify(&next, now, s.lifecycle).Slice()
	if len(tabs) == 0 {
		tabs = nil
	}
	next.LifecycleTabs = tabs
	return next
}
