package redisx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCache connects to REDIS_TEST_ADDR; tests are skipped without it.
func testCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return &Cache{RDB: rdb}
}

func TestOrderStatusCache(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	id := "ORD-" + uuid.NewString()

	_, ok := c.GetOrderStatus(ctx, id)
	assert.False(t, ok)

	require.NoError(t, c.SetOrderStatus(ctx, id, OrderStatus{Status: "confirmed", PaymentStatus: "pending"}))
	st, ok := c.GetOrderStatus(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "confirmed", st.Status)

	require.NoError(t, c.InvalidateOrderStatus(ctx, id))
	_, ok = c.GetOrderStatus(ctx, id)
	assert.False(t, ok)
}

func TestIdempotencyKeys(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	key := uuid.NewString()

	claimed, _, err := c.ClaimIdempotent(ctx, "buyer-1", key)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, v, err := c.ClaimIdempotent(ctx, "buyer-1", key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, IdemPending, v, "second request sees the claim in flight")

	require.NoError(t, c.CompleteIdempotent(ctx, "buyer-1", key, "ORD-1"))
	claimed, v, err = c.ClaimIdempotent(ctx, "buyer-1", key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "ORD-1", v)

	claimed, _, err = c.ClaimIdempotent(ctx, "buyer-2", key)
	require.NoError(t, err)
	assert.True(t, claimed, "keys are scoped per buyer")

	require.NoError(t, c.ReleaseIdempotent(ctx, "buyer-2", key))
	claimed, _, err = c.ClaimIdempotent(ctx, "buyer-2", key)
	require.NoError(t, err)
	assert.True(t, claimed, "a released key can be claimed again")
}

func TestDedupAndLock(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	ev := uuid.NewString()

	fresh, err := c.MarkProcessed(ctx, "svc", ev)
	require.NoError(t, err)
	assert.True(t, fresh)
	fresh, err = c.MarkProcessed(ctx, "svc", ev)
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, c.Forget(ctx, "svc", ev))
	fresh, err = c.MarkProcessed(ctx, "svc", ev)
	require.NoError(t, err)
	assert.True(t, fresh)

	name := "test:" + uuid.NewString()
	got, err := c.TryLock(ctx, name, time.Second)
	require.NoError(t, err)
	assert.True(t, got)
	got, err = c.TryLock(ctx, name, time.Second)
	require.NoError(t, err)
	assert.False(t, got)
}
