package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/ariefcatur/go-fresh-market/internal/inventory"
	"github.com/ariefcatur/go-fresh-market/internal/memstore"
	"github.com/ariefcatur/go-fresh-market/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	buyer  = domain.Caller{ID: "buyer-1", Role: domain.RoleConsumer}
	other  = domain.Caller{ID: "buyer-2", Role: domain.RoleConsumer}
	farmer = domain.Caller{ID: "farmer-1", Role: domain.RoleFarmer}
	vendor = domain.Caller{ID: "vendor-9", Role: domain.RoleVendor}
	admin  = domain.Caller{ID: "admin-1", Role: domain.RoleAdmin}
)

var fixedNow = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

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

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	store    *memstore.Store
	rec      *recorder
	pipeline *orders.Pipeline
	machine  *orders.StateMachine
	manager  *inventory.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New()
	rec := &recorder{}
	now := func() time.Time { return fixedNow }
	return &fixture{
		store:    s,
		rec:      rec,
		pipeline: &orders.Pipeline{Store: s, Notifier: rec, Now: now},
		machine:  &orders.StateMachine{Store: s, Notifier: rec, Now: now},
		manager:  &inventory.Manager{Store: s, Notifier: rec, Now: now},
	}
}

func (f *fixture) product(id, price string, total, threshold int, seller domain.Caller) {
	f.store.PutProduct(domain.Product{
		ID:                id,
		Name:              "Fresh " + id,
		Price:             decimal.RequireFromString(price),
		Unit:              "kg",
		SellerID:          seller.ID,
		SellerType:        seller.Role,
		TotalQuantity:     total,
		LowStockThreshold: threshold,
		StockStatus:       inventory.DeriveStockStatus(total, threshold),
	})
}

func (f *fixture) stock(t *testing.T, id string) *domain.Product {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

// place creates an order for buyer through the pipeline.
func (f *fixture) place(t *testing.T, method domain.PaymentMethod, items ...domain.ItemQty) *domain.Order {
	t.Helper()
	o, err := f.pipeline.CreateOrder(context.Background(), orders.CreateOrderInput{
		BuyerID:         buyer.ID,
		Items:           items,
		DeliveryAddress: domain.Address{Recipient: "Rina", Phone: "0812", Street: "Jl. Mawar 3", City: "Bandung"},
		PaymentMethod:   method,
	})
	require.NoError(t, err)
	return o
}

// walk drives o through the given statuses as admin.
func (f *fixture) walk(t *testing.T, o *domain.Order, statuses ...domain.OrderStatus) *domain.Order {
	t.Helper()
	for _, s := range statuses {
		var err error
		o, err = f.machine.Transition(context.Background(), admin, o.ID, s, "")
		require.NoError(t, err, "to %s", s)
	}
	return o
}

// insertOrder stores an order in an arbitrary status, bypassing the pipeline.
func (f *fixture) insertOrder(t *testing.T, id string, status domain.OrderStatus, method domain.PaymentMethod) {
	t.Helper()
	o := &domain.Order{
		ID:            id,
		BuyerID:       buyer.ID,
		PaymentMethod: method,
		Status:        status,
		PaymentStatus: domain.PaymentPending,
		Items: []domain.OrderItem{{
			ProductID: "apple", Name: "Fresh apple", Quantity: 1, UnitPrice: decimal.NewFromInt(10),
			LineTotal: decimal.NewFromInt(10), SellerID: farmer.ID, SellerType: domain.RoleFarmer,
		}},
		StatusHistory: []domain.StatusEntry{{Status: status, ActorID: buyer.ID, At: fixedNow}},
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.InsertOrder(ctx, o)
	}))
}
