// Package quota enforces per-day usage caps on costly operations such as
// external place lookups. Counters are keyed by UTC day and limiter key.
package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/metrics"
)

// ExternalLookupKey is the limiter key guarding place provider lookups.
const ExternalLookupKey = "external_lookup"

// Counter is an atomic increment-with-check primitive.
type Counter interface {
	// Incr increments the counter at key unless it already reached limit.
	// It returns the count after the call and whether the increment happened.
	Incr(ctx context.Context, key string, limit uint) (count uint, allowed bool, err error)
	// Get returns the current count at key, 0 when absent.
	Get(ctx context.Context, key string) (uint, error)
}

// Decision is the outcome of TryConsume.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining uint `json:"remaining"`
}

// Limiter applies daily caps over a Counter.
type Limiter struct {
	counter    Counter
	failClosed bool
	opTimeout  time.Duration
	now        func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithFailClosed denies requests when the counter store is unreachable.
// The default is to fail open.
func WithFailClosed(v bool) Option {
	return func(l *Limiter) { l.failClosed = v }
}

// WithOpTimeout bounds each counter call.
func WithOpTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.opTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a Limiter.
func NewLimiter(counter Counter, opts ...Option) *Limiter {
	l := &Limiter{counter: counter, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DayKey returns the counter key for limiterKey on the UTC day of t.
func DayKey(t time.Time, limiterKey string) string {
	return t.UTC().Format(time.DateOnly) + ":" + limiterKey
}

// TryConsume takes one unit of limiterKey's daily allowance.
func (l *Limiter) TryConsume(ctx context.Context, limiterKey string, maxPerDay uint) Decision {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	count, allowed, err := l.counter.Incr(ctx, DayKey(l.now(), limiterKey), maxPerDay)
	if err != nil {
		zap.L().Warn("quota: counter unavailable",
			zap.String("key", limiterKey), zap.Bool("fail_closed", l.failClosed), zap.Error(err))
		metrics.QuotaDecisions.WithLabelValues(limiterKey, "error").Inc()
		if l.failClosed {
			return Decision{}
		}
		return Decision{Allowed: true, Remaining: maxPerDay}
	}

	d := Decision{Allowed: allowed}
	if count < maxPerDay {
		d.Remaining = maxPerDay - count
	}
	label := "denied"
	if allowed {
		label = "allowed"
	}
	metrics.QuotaDecisions.WithLabelValues(limiterKey, label).Inc()
	return d
}

// Used returns today's consumption of limiterKey.
func (l *Limiter) Used(ctx context.Context, limiterKey string) (uint, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()
	return l.counter.Get(ctx, DayKey(l.now(), limiterKey))
}

func (l *Limiter) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.opTimeout > 0 {
		return context.WithTimeout(ctx, l.opTimeout)
	}
	return context.WithCancel(ctx)
}
