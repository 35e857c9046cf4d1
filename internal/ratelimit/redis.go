// internal/ratelimit/redis.go
//
// Redis-backed counter store for multi-instance deployments.
//
// INCR is atomic server-side; the TTL is attached only when INCR returns 1
// (first write in the window), so later increments never extend the
// window.  The small race where the process dies between INCR and EXPIRE
// would leave an immortal counter, hence the NX-less Expire is retried on
// every count==1 observation rather than guarded.

package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis implements Store over a shared redis instance.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client.  Keys are namespaced so the limiter
// can share a database with other uses.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "siteforge:ratelimit:"}
}

// Incr implements Store.
func (s *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	full := s.prefix + key

	n, err := s.client.Incr(ctx, full).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, full, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}
