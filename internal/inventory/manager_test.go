package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/ariefcatur/go-fresh-market/internal/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recorder) Notify(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

var (
	buyerA = domain.Caller{ID: "buyer-a", Role: domain.RoleConsumer}
	buyerB = domain.Caller{ID: "buyer-b", Role: domain.RoleConsumer}
	admin  = domain.Caller{ID: "admin-1", Role: domain.RoleAdmin}
)

func seed(s *memstore.Store, id string, total, threshold int) {
	s.PutProduct(domain.Product{
		ID:                id,
		Name:              id,
		Price:             decimal.NewFromInt(20),
		Unit:              "kg",
		SellerID:          "farmer-1",
		SellerType:        domain.RoleFarmer,
		TotalQuantity:     total,
		LowStockThreshold: threshold,
		StockStatus:       DeriveStockStatus(total, threshold),
	})
}

func newManager(t *testing.T) (*Manager, *memstore.Store, *fakeClock, *recorder) {
	t.Helper()
	s := memstore.New()
	clk := newClock()
	rec := &recorder{}
	return &Manager{Store: s, Notifier: rec, TTL: 15 * time.Minute, Now: clk.Now}, s, clk, rec
}

func available(t *testing.T, s *memstore.Store, id string, now time.Time) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return AvailableStock(p, now)
}

func TestReserveExpiryFreesStock(t *testing.T) {
	ctx := context.Background()
	m, s, clk, _ := newManager(t)
	seed(s, "milk", 5, 1)

	hold, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "milk", Qty: 5}}, "buyer-a", "")
	require.NoError(t, err)
	assert.NotEmpty(t, hold.ReservationID)
	assert.Equal(t, clk.Now().Add(15*time.Minute), hold.ExpiresAt)
	assert.Equal(t, 0, available(t, s, "milk", clk.Now()))

	_, err = m.Reserve(ctx, []domain.ItemQty{{ProductID: "milk", Qty: 1}}, "buyer-b", "")
	var short *domain.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, []domain.StockShortage{{ProductID: "milk", Required: 1, Available: 0}}, short.Items)

	clk.Advance(15*time.Minute + time.Second)
	assert.Equal(t, 5, available(t, s, "milk", clk.Now()), "expired holds stop counting before any sweep")

	_, err = m.Reserve(ctx, []domain.ItemQty{{ProductID: "milk", Qty: 1}}, "buyer-b", "")
	require.NoError(t, err)

	n, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := s.GetProduct(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, 5, p.TotalQuantity, "sweep never touches total quantity")
	assert.Len(t, p.Reservations, 1)
}

func TestReserveAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m, s, clk, _ := newManager(t)
	seed(s, "egg", 10, 2)
	seed(s, "rice", 1, 0)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "egg", Qty: 3}, {ProductID: "rice", Qty: 2}}, "buyer-a", "r-1")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Equal(t, 10, available(t, s, "egg", clk.Now()))
	p, err := s.GetProduct(ctx, "egg")
	require.NoError(t, err)
	assert.Empty(t, p.Reservations)
}

func TestReserveMissingProduct(t *testing.T) {
	m, s, _, _ := newManager(t)
	seed(s, "egg", 10, 2)

	_, err := m.Reserve(context.Background(), []domain.ItemQty{{ProductID: "egg", Qty: 1}, {ProductID: "ghost", Qty: 1}}, "buyer-a", "")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestReserveRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	m, s, _, _ := newManager(t)
	seed(s, "egg", 10, 2)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "egg", Qty: 0}}, "buyer-a", "")
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = m.Reserve(ctx, []domain.ItemQty{{ProductID: "egg", Qty: 1}}, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Reserve(ctx, []domain.ItemQty{{ProductID: "egg", Qty: 1}}, "buyer-a", "r-1")
	require.NoError(t, err)
	_, err = m.Reserve(ctx, []domain.ItemQty{{ProductID: "egg", Qty: 1}}, "buyer-b", "r-1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	ctx := context.Background()
	m, s, clk, _ := newManager(t)
	seed(s, "strawberry", 10, 2)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "strawberry", Qty: 1}}, "buyer", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientStock):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 15, refused)
	assert.Equal(t, 0, available(t, s, "strawberry", clk.Now()))
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	m, s, clk, _ := newManager(t)
	seed(s, "kale", 4, 1)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "kale", Qty: 3}}, "buyer-a", "r-1")
	require.NoError(t, err)

	require.NoError(t, m.Confirm(ctx, buyerA, "r-1"))
	p, err := s.GetProduct(ctx, "kale")
	require.NoError(t, err)
	assert.Empty(t, p.Reservations)
	assert.Equal(t, 4, p.TotalQuantity)
	assert.Equal(t, 4, AvailableStock(p, clk.Now()))

	assert.ErrorIs(t, m.Confirm(ctx, buyerA, "r-1"), domain.ErrReservationNotFound)
	assert.ErrorIs(t, m.Confirm(ctx, buyerA, "never"), domain.ErrReservationNotFound)
}

func TestConfirmAfterSweepIsExpired(t *testing.T) {
	ctx := context.Background()
	m, s, clk, _ := newManager(t)
	seed(s, "kale", 10, 1)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "kale", Qty: 5}}, "buyer-a", "r-1")
	require.NoError(t, err)
	clk.Advance(16 * time.Minute)

	n, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	err = m.Confirm(ctx, buyerA, "r-1")
	assert.ErrorIs(t, err, domain.ErrReservationExpired)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestConfirmAndReleaseRequireHolder(t *testing.T) {
	ctx := context.Background()
	m, s, clk, _ := newManager(t)
	seed(s, "kale", 10, 1)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "kale", Qty: 4}}, "buyer-a", "r-1")
	require.NoError(t, err)
	_, err = m.Reserve(ctx, []domain.ItemQty{{ProductID: "kale", Qty: 2}}, "buyer-a", "r-2")
	require.NoError(t, err)

	t.Run("other buyer cannot release", func(t *testing.T) {
		assert.ErrorIs(t, m.Release(ctx, buyerB, "r-1"), domain.ErrUnauthorized)
		assert.Equal(t, 4, available(t, s, "kale", clk.Now()))
	})
	t.Run("other buyer cannot confirm", func(t *testing.T) {
		assert.ErrorIs(t, m.Confirm(ctx, buyerB, "r-1"), domain.ErrUnauthorized)
		p, err := s.GetProduct(ctx, "kale")
		require.NoError(t, err)
		assert.Len(t, p.Reservations, 2)
	})
	t.Run("admin may release any hold", func(t *testing.T) {
		require.NoError(t, m.Release(ctx, admin, "r-1"))
		assert.Equal(t, 8, available(t, s, "kale", clk.Now()))
	})
	t.Run("holder confirms", func(t *testing.T) {
		require.NoError(t, m.Confirm(ctx, buyerA, "r-2"))
		assert.Equal(t, 10, available(t, s, "kale", clk.Now()))
	})
}

func TestConfirmExpiredLeavesEntries(t *testing.T) {
	ctx := context.Background()
	m, s, clk, _ := newManager(t)
	seed(s, "kale", 4, 1)
	seed(s, "leek", 4, 1)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "kale", Qty: 1}, {ProductID: "leek", Qty: 1}}, "buyer-a", "r-1")
	require.NoError(t, err)
	clk.Advance(16 * time.Minute)

	assert.ErrorIs(t, m.Confirm(ctx, buyerA, "r-1"), domain.ErrReservationExpired)

	p, err := s.GetProduct(ctx, "kale")
	require.NoError(t, err)
	assert.Len(t, p.Reservations, 1)
}

func TestReleaseAnnouncesBackInStock(t *testing.T) {
	ctx := context.Background()
	m, s, clk, rec := newManager(t)
	seed(s, "basil", 3, 1)
	seed(s, "mint", 10, 1)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "basil", Qty: 3}, {ProductID: "mint", Qty: 2}}, "buyer-a", "r-1")
	require.NoError(t, err)
	require.Equal(t, 0, available(t, s, "basil", clk.Now()))

	require.NoError(t, m.Release(ctx, buyerA, "r-1"))
	assert.Equal(t, 3, available(t, s, "basil", clk.Now()))

	evs := rec.ofType(domain.EventProductBackInStock)
	require.Len(t, evs, 1)
	assert.Equal(t, "basil", evs[0].ProductID)
	assert.Equal(t, "3", evs[0].Metadata["available"])

	assert.ErrorIs(t, m.Release(ctx, buyerA, "r-1"), domain.ErrReservationNotFound)
}

func TestReleaseSurvivesNotifierFailure(t *testing.T) {
	ctx := context.Background()
	m, s, _, rec := newManager(t)
	rec.err = errors.New("sink down")
	seed(s, "basil", 1, 0)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "basil", Qty: 1}}, "buyer-a", "r-1")
	require.NoError(t, err)
	assert.NoError(t, m.Release(ctx, buyerA, "r-1"))
	assert.Len(t, rec.ofType(domain.EventProductBackInStock), 1)
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	m, s, _, _ := newManager(t)
	seed(s, "onion", 5, 1)

	_, err := m.Reserve(ctx, []domain.ItemQty{{ProductID: "onion", Qty: 2}}, "buyer-a", "")
	require.NoError(t, err)

	got, err := m.CheckAvailability(ctx, []domain.ItemQty{
		{ProductID: "onion", Qty: 3},
		{ProductID: "onion", Qty: 4},
		{ProductID: "ghost", Qty: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []Availability{
		{ProductID: "onion", Requested: 3, Available: 3, Sufficient: true, Found: true},
		{ProductID: "onion", Requested: 4, Available: 3, Sufficient: false, Found: true},
		{ProductID: "ghost", Requested: 1},
	}, got)
}

func TestStockAlerts(t *testing.T) {
	m, s, _, _ := newManager(t)
	seed(s, "a", 50, 5)
	seed(s, "b", 3, 5)
	seed(s, "c", 0, 5)

	got, err := m.StockAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}
