package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type checkoutKind int

const (
	checkoutCharge checkoutKind = iota + 1
	checkoutPurchase
	checkoutRenew
)

// checkout is an order the user described by command and has not yet
// chosen a payment method for.
type checkout struct {
	kind      checkoutKind
	amount    int64
	planID    uint
	name      string
	serviceID uint
	promo     string
	at        time.Time
}

// checkoutStore holds at most one open checkout per user. take removes the
// checkout so a gateway button can only be used once.
type checkoutStore interface {
	put(ctx context.Context, telegramID int64, c checkout) error
	take(ctx context.Context, telegramID int64) (checkout, bool, error)
}

// newCheckoutStore keeps checkouts in Redis when a client is given, so they
// survive restarts, and in process memory otherwise.
func newCheckoutStore(client *redis.Client, ttl time.Duration) checkoutStore {
	if client == nil {
		return newCheckouts(ttl)
	}
	return &redisCheckouts{client: client, ttl: ttl}
}

func checkoutKey(telegramID int64) string {
	return fmt.Sprintf("checkout:%d", telegramID)
}

type checkoutRecord struct {
	Kind      checkoutKind `json:"kind"`
	Amount    int64        `json:"amount,omitempty"`
	PlanID    uint         `json:"plan_id,omitempty"`
	Name      string       `json:"name,omitempty"`
	ServiceID uint         `json:"service_id,omitempty"`
	Promo     string       `json:"promo,omitempty"`
	At        time.Time    `json:"at"`
}

func encodeCheckout(c checkout) ([]byte, error) {
	return json.Marshal(checkoutRecord{
		Kind: c.kind, Amount: c.amount, PlanID: c.planID, Name: c.name,
		ServiceID: c.serviceID, Promo: c.promo, At: c.at,
	})
}

func decodeCheckout(b []byte) (checkout, error) {
	var r checkoutRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return checkout{}, err
	}
	return checkout{
		kind: r.Kind, amount: r.Amount, planID: r.PlanID, name: r.Name,
		serviceID: r.ServiceID, promo: r.Promo, at: r.At,
	}, nil
}

type redisCheckouts struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *redisCheckouts) put(ctx context.Context, telegramID int64, c checkout) error {
	c.at = time.Now()
	b, err := encodeCheckout(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, checkoutKey(telegramID), b, s.ttl).Err()
}

func (s *redisCheckouts) take(ctx context.Context, telegramID int64) (checkout, bool, error) {
	b, err := s.client.GetDel(ctx, checkoutKey(telegramID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkout{}, false, nil
	}
	if err != nil {
		return checkout{}, false, err
	}
	c, err := decodeCheckout(b)
	if err != nil {
		return checkout{}, false, fmt.Errorf("decode checkout: %w", err)
	}
	return c, true, nil
}

type checkouts struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[int64]checkout
	now   func() time.Time
}

func newCheckouts(ttl time.Duration) *checkouts {
	return &checkouts{ttl: ttl, items: make(map[int64]checkout), now: time.Now}
}

func (s *checkouts) put(_ context.Context, telegramID int64, c checkout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.at = s.now()
	s.items[telegramID] = c
	return nil
}

func (s *checkouts) take(_ context.Context, telegramID int64) (checkout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[telegramID]
	if !ok {
		return checkout{}, false, nil
	}
	delete(s.items, telegramID)
	if s.now().Sub(c.at) > s.ttl {
		return checkout{}, false, nil
	}
	return c, true, nil
}
