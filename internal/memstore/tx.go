package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
)

type tx struct {
	st         *state
	failInsert error
}

func (t *tx) LockProducts(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.product(id); ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *tx) UpdateStock(_ context.Context, productID string, total int, status domain.StockStatus) error {
	p, ok := t.st.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if total < 0 {
		return fmt.Errorf("update stock %s: total quantity would be negative", productID)
	}
	p.TotalQuantity = total
	p.StockStatus = status
	p.UpdatedAt = time.Now().UTC()
	t.st.products[productID] = p
	return nil
}

func (t *tx) InsertReservation(_ context.Context, r domain.Reservation) error {
	if _, ok := t.st.products[r.ProductID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, r.ProductID)
	}
	for _, e := range t.st.reservations {
		if e.ReservationID == r.ReservationID && e.ProductID == r.ProductID {
			return fmt.Errorf("reservation %s already holds %s", r.ReservationID, r.ProductID)
		}
	}
	t.st.reservations = append(t.st.reservations, r)
	return nil
}

func (t *tx) ReservationsByID(_ context.Context, reservationID string) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range t.st.reservations {
		if r.ReservationID == reservationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) DeleteReservations(_ context.Context, reservationID string) (int, error) {
	return t.filter(func(r domain.Reservation) bool { return r.ReservationID == reservationID }), nil
}

func (t *tx) DeleteExpiredReservations(_ context.Context, now time.Time) (int, error) {
	return t.filter(func(r domain.Reservation) bool { return r.ExpiredAt(now) }), nil
}

func (t *tx) filter(drop func(domain.Reservation) bool) int {
	kept := t.st.reservations[:0:0]
	removed := 0
	for _, r := range t.st.reservations {
		if drop(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	t.st.reservations = kept
	return removed
}

func (t *tx) InsertOrder(_ context.Context, o *domain.Order) error {
	if t.failInsert != nil {
		return t.failInsert
	}
	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateOrderID, o.ID)
	}
	t.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *tx) LockOrder(_ context.Context, id string) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	cp := cloneOrder(o)
	return &cp, nil
}

// UpdateOrder writes the mutable fields; history is only changed through
// AppendHistory.
func (t *tx) UpdateOrder(_ context.Context, o *domain.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, o.ID)
	}
	cur.Status = o.Status
	cur.PaymentStatus = o.PaymentStatus
	cur.COD = o.COD
	cur.ActualDelivery = o.ActualDelivery
	cur.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = cur
	return nil
}

func (t *tx) AppendHistory(_ context.Context, orderID string, e domain.StatusEntry) error {
	cur, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	cur.StatusHistory = append(cur.StatusHistory, e)
	t.st.orders[orderID] = cur
	return nil
}

func (t *tx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.st.orders[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	delete(t.st.orders, id)
	return nil
}
