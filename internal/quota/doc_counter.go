package quota

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placepulse/internal/docstore"
	"github.com/sells-group/placepulse/internal/model"
)

// DocCounter keeps counters as documents and increments them inside a store
// transaction.
type DocCounter struct {
	store docstore.Store
}

// NewDocCounter creates a DocCounter.
func NewDocCounter(store docstore.Store) *DocCounter {
	return &DocCounter{store: store}
}

// Incr implements Counter.
func (c *DocCounter) Incr(ctx context.Context, key string, limit uint) (uint, bool, error) {
	var (
		count   uint
		allowed bool
	)
	err := c.store.Transact(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var qc model.QuotaCounter
		if err := tx.Get(ctx, docstore.CollectionQuotaCounters, key, &qc); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		count, allowed = qc.Count, false
		if qc.Count >= limit {
			return nil
		}
		qc.Day, qc.Key = splitKey(key)
		qc.Count++
		count, allowed = qc.Count, true
		return tx.Set(ctx, docstore.CollectionQuotaCounters, key, qc)
	})
	if err != nil {
		return 0, false, eris.Wrapf(err, "quota: incr %s", key)
	}
	return count, allowed, nil
}

// Get implements Counter.
func (c *DocCounter) Get(ctx context.Context, key string) (uint, error) {
	var qc model.QuotaCounter
	err := c.store.Get(ctx, docstore.CollectionQuotaCounters, key, &qc)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "quota: get %s", key)
	}
	return qc.Count, nil
}

func splitKey(key string) (day, limiterKey string) {
	day, limiterKey, _ = strings.Cut(key, ":")
	return day, limiterKey
}
