package paycore

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore keeps window counters in Redis so multiple server
// instances share one view of each identifier's window. Counter keys expire
// with the window; no janitor is needed.
type RedisWindowStore struct {
	rdb    *redis.Client
	prefix string
}

// RedisWindowStoreOption configures a RedisWindowStore.
type RedisWindowStoreOption func(*RedisWindowStore)

// WithRedisPrefix overrides the key prefix (default "ratelimit").
func WithRedisPrefix(prefix string) RedisWindowStoreOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

// NewRedisWindowStore returns a Redis-backed window store.
func NewRedisWindowStore(rdb *redis.Client, opts ...RedisWindowStoreOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "ratelimit",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr implements WindowStore. The first increment of a window sets the key
// TTL to the window length; the window start is implicit in the remaining
// TTL. The TTL is only ever set on a key that has none, so later increments
// never slide the window forward.
func (s *RedisWindowStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	k := s.prefix + ":" + key

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	count := int(incr.Val())
	expiresIn := ttl.Val()
	if expiresIn < 0 {
		// First increment of the window, or a key stranded without a TTL by
		// a crash between INCR and PEXPIRE. Either way the key has no
		// expiry yet, so setting one here cannot shorten a live window.
		if err := s.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, err
		}
		expiresIn = window
	}
	return count, expiresIn, nil
}
