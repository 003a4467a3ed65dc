package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Cache bundles the Redis shortcuts used around the core. Postgres stays the
// source of truth; every method here is an optimisation.
type Cache struct {
	RDB *redis.Client
}

type OrderStatus struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func (c *Cache) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, bool) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if err != nil || s == "" {
		return nil, false
	}
	var st OrderStatus
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return nil, false
	}
	return &st, true
}

func (c *Cache) SetOrderStatus(ctx context.Context, orderID string, st OrderStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

func (c *Cache) InvalidateOrderStatus(ctx context.Context, orderID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

// ClaimIdempotent takes key for a new order. When the key is already taken
// the stored value comes back instead: the first order's id, or IdemPending
// while that request is still running.
func (c *Cache) ClaimIdempotent(ctx context.Context, buyerID, key string) (bool, string, error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, buyerID, key)
	ok, err := c.RDB.SetNX(ctx, k, IdemPending, TTLIdemClaim).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}
	v, err := c.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// claim expired between the two calls
		return false, IdemPending, nil
	}
	if err != nil {
		return false, "", err
	}
	return false, v, nil
}

// CompleteIdempotent points a claimed key at the order it produced.
func (c *Cache) CompleteIdempotent(ctx context.Context, buyerID, key, orderID string) error {
	return c.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, buyerID, key), orderID, TTLIdempotency).Err()
}

// ReleaseIdempotent frees a claimed key after a failed create so the client
// can retry with it.
func (c *Cache) ReleaseIdempotent(ctx context.Context, buyerID, key string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, buyerID, key)).Err()
}

// MarkProcessed records an event id and reports whether it was new.
func (c *Cache) MarkProcessed(ctx context.Context, service, eventID string) (bool, error) {
	return c.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup).Result()
}

// Forget drops a dedup marker so a failed event can be processed again.
func (c *Cache) Forget(ctx context.Context, service, eventID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}

// TryLock takes a lease that simply expires; it is never released early.
func (c *Cache) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return c.RDB.SetNX(ctx, fmt.Sprintf(KeyLock, name), "1", ttl).Result()
}
