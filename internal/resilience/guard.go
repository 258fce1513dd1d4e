package resilience

import (
	"context"
	"time"
)

// Config is the provider guard configuration.
type Config struct {
	// Timeout bounds one guarded call, retries included. Zero disables it.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// Guard wraps calls to one provider. Each attempt passes through the breaker;
// an open breaker ends the retry loop at once.
type Guard struct {
	cfg     Config
	breaker *Breaker
}

// NewGuard creates a guard with its own breaker.
func NewGuard(name string, cfg Config, opts ...BreakerOption) *Guard {
	return &Guard{cfg: cfg, breaker: NewBreaker(name, cfg.Breaker, opts...)}
}

// Breaker exposes the guard's breaker.
func (g *Guard) Breaker() *Breaker { return g.breaker }

// Call runs fn under the guard's deadline, retry policy, and breaker.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	return Retry(ctx, g.cfg.Retry, op, func(ctx context.Context) (T, error) {
		return Execute(ctx, g.breaker, fn)
	})
}
