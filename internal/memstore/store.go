// Package memstore is an in-process domain.Store used by tests and local
// runs without Postgres. Transactions are serialized and applied
// copy-on-commit, so a failed transaction leaves no trace.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
)

type state struct {
	products     map[string]domain.Product
	reservations []domain.Reservation
	orders       map[string]domain.Order
}

func (s *state) clone() *state {
	out := &state{
		products:     make(map[string]domain.Product, len(s.products)),
		reservations: append([]domain.Reservation(nil), s.reservations...),
		orders:       make(map[string]domain.Order, len(s.orders)),
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = cloneOrder(v)
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state

	// FailOrderInsert, when set, is returned by every InsertOrder.
	FailOrderInsert error
}

func New() *Store {
	return &Store{st: &state{
		products: map[string]domain.Product{},
		orders:   map[string]domain.Order{},
	}}
}

// PutProduct seeds or replaces a catalog record. Reservations on p are ignored.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Reservations = nil
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.st.products[p.ID] = p
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, failInsert: s.FailOrderInsert}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.product(id)
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) ListStockAlerts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Product
	for id, p := range s.st.products {
		if p.StockStatus == domain.StockLowStock || p.StockStatus == domain.StockOutOfStock {
			full, _ := s.st.product(id)
			out = append(out, *full)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalQuantity != out[j].TotalQuantity {
			return out[i].TotalQuantity < out[j].TotalQuantity
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (s *state) product(id string) (*domain.Product, bool) {
	p, ok := s.products[id]
	if !ok {
		return nil, false
	}
	p.Reservations = nil
	for _, r := range s.reservations {
		if r.ProductID == id {
			p.Reservations = append(p.Reservations, r)
		}
	}
	return &p, true
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	o.StatusHistory = append([]domain.StatusEntry(nil), o.StatusHistory...)
	return o
}
