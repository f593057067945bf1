package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// UpdateDeduper tracks processed Telegram update IDs.
type UpdateDeduper interface {
	Seen(ctx context.Context, updateID int64) (bool, error)
}

type redisUpdateDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func (d *redisUpdateDeduper) Seen(ctx context.Context, updateID int64) (bool, error) {
	ok, err := d.client.SetNX(ctx, "tg:update:"+strconv.FormatInt(updateID, 10), 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type memoryUpdateDeduper struct {
	mu     sync.Mutex
	seen   map[int64]time.Time
	ttl    time.Duration
	nextGC time.Time
	now    func() time.Time
}

func newMemoryUpdateDeduper(ttl time.Duration) *memoryUpdateDeduper {
	return &memoryUpdateDeduper{
		seen:   make(map[int64]time.Time),
		ttl:    ttl,
		nextGC: time.Now().Add(ttl),
		now:    time.Now,
	}
}

func (d *memoryUpdateDeduper) Seen(_ context.Context, updateID int64) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[updateID]; ok && exp.After(now) {
		return true, nil
	}
	d.seen[updateID] = now.Add(d.ttl)

	if now.After(d.nextGC) {
		for id, exp := range d.seen {
			if !exp.After(now) {
				delete(d.seen, id)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}
	return false, nil
}

// NewUpdateDeduper uses Redis when a client is given and process memory otherwise.
func NewUpdateDeduper(client *redis.Client, ttl time.Duration) UpdateDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if client == nil {
		return newMemoryUpdateDeduper(ttl)
	}
	return &redisUpdateDeduper{client: client, ttl: ttl}
}

// TelegramUpdateDedup drops redelivered Telegram webhook updates by update_id.
func TelegramUpdateDedup(deduper UpdateDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if deduper == nil || req.Body == nil {
				return next(c)
			}

			raw, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewReader(raw))

			var payload struct {
				UpdateID int64 `json:"update_id"`
			}
			if err := json.Unmarshal(raw, &payload); err != nil || payload.UpdateID == 0 {
				return next(c)
			}

			dup, err := deduper.Seen(req.Context(), payload.UpdateID)
			if err == nil && dup {
				// Telegram only needs a 2xx to stop retrying.
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
