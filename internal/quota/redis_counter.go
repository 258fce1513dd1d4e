package quota

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// counterTTL keeps yesterday's counters around for the stats page.
const counterTTL = 48 * time.Hour

// incrScript returns {count, allowed}. The check and the increment run
// atomically on the server.
var incrScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local max = tonumber(ARGV[1])
if current >= max then
	return {current, 0}
end
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {n, 1}
`)

// RedisCounter keeps counters in Redis.
type RedisCounter struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCounter creates a counter on an existing client. Keys are
// namespaced with prefix.
func NewRedisCounter(rdb *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "placepulse:quota:"
	}
	return &RedisCounter{rdb: rdb, prefix: prefix}
}

// DialRedis parses url and builds a client. An unreachable server is logged,
// not returned: the limiter fails open per call until Redis comes back.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "quota: parse redis url")
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		zap.L().Warn("quota: redis unreachable at startup", zap.String("addr", opts.Addr), zap.Error(err))
	}
	return rdb, nil
}

// Incr implements Counter.
func (c *RedisCounter) Incr(ctx context.Context, key string, limit uint) (uint, bool, error) {
	res, err := incrScript.Run(ctx, c.rdb, []string{c.prefix + key}, limit, counterTTL.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, eris.Wrapf(err, "quota: redis incr %s", key)
	}
	if len(res) != 2 {
		return 0, false, eris.Errorf("quota: redis incr %s: unexpected reply %v", key, res)
	}
	return uint(res[0]), res[1] == 1, nil
}

// Get implements Counter.
func (c *RedisCounter) Get(ctx context.Context, key string) (uint, error) {
	n, err := c.rdb.Get(ctx, c.prefix+key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "quota: redis get %s", key)
	}
	return uint(n), nil
}
