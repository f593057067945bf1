package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter caps how often one user may run an action inside a window.
type Limiter interface {
	Allow(ctx context.Context, userID int64, action string) (bool, error)
}

// NewLimiter uses a Redis fixed window when a client is given and process
// memory otherwise. A non-positive limit disables limiting.
func NewLimiter(client *redis.Client, limit int, window time.Duration) Limiter {
	if limit <= 0 || window <= 0 {
		return noLimit{}
	}
	if client == nil {
		return &memoryLimiter{limit: limit, window: window, hits: make(map[string]*bucket), now: time.Now}
	}
	return &redisLimiter{client: client, limit: limit, window: window}
}

func rateKey(userID int64, action string) string {
	return fmt.Sprintf("rate_limit:%d:%s", userID, action)
}

type noLimit struct{}

func (noLimit) Allow(context.Context, int64, string) (bool, error) { return true, nil }

type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func (r *redisLimiter) Allow(ctx context.Context, userID int64, action string) (bool, error) {
	key := rateKey(userID, action)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, key, r.window).Err(); err != nil {
			return true, err
		}
	}
	return count <= int64(r.limit), nil
}

type bucket struct {
	count int
	reset time.Time
}

type memoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string]*bucket
	now    func() time.Time
}

func (m *memoryLimiter) Allow(_ context.Context, userID int64, action string) (bool, error) {
	now := m.now()
	key := rateKey(userID, action)

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.hits[key]
	if !ok || !now.Before(b.reset) {
		if len(m.hits) > 10000 {
			for k, v := range m.hits {
				if !now.Before(v.reset) {
					delete(m.hits, k)
				}
			}
		}
		m.hits[key] = &bucket{count: 1, reset: now.Add(m.window)}
		return true, nil
	}
	b.count++
	return b.count <= m.limit, nil
}
