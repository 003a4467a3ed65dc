package domain

import (
	"context"
	"time"
)

// Store is the backing store shared by every worker. Multi-record mutations
// go through InTx; the plain reads may be served outside a transaction and
// are only suitable for reporting.
type Store interface {
	// InTx runs fn in one atomic transaction. fn may be invoked more than
	// once when the store retries a transient write conflict, so it must not
	// have side effects outside tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetProduct(ctx context.Context, id string) (*Product, error)
	ListStockAlerts(ctx context.Context) ([]Product, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
}

// Tx is the set of operations available inside a store transaction.
type Tx interface {
	// LockProducts loads and locks the given products with their
	// reservations. Products that do not exist are absent from the map.
	LockProducts(ctx context.Context, ids []string) (map[string]*Product, error)
	UpdateStock(ctx context.Context, productID string, total int, status StockStatus) error
	InsertReservation(ctx context.Context, r Reservation) error
	// ReservationsByID returns every entry of a logical reservation.
	ReservationsByID(ctx context.Context, reservationID string) ([]Reservation, error)
	DeleteReservations(ctx context.Context, reservationID string) (int, error)
	DeleteExpiredReservations(ctx context.Context, now time.Time) (int, error)

	InsertOrder(ctx context.Context, o *Order) error
	LockOrder(ctx context.Context, id string) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error
	AppendHistory(ctx context.Context, orderID string, e StatusEntry) error
	DeleteOrder(ctx context.Context, id string) error
}

// Event is a fire-and-forget notification for the notification service.
type Event struct {
	Type      EventType         `json:"type"`
	Recipient string            `json:"recipient"`
	OrderID   string            `json:"order_id,omitempty"`
	ProductID string            `json:"product_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Notifier delivers events best-effort. Callers log a returned error and
// carry on.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
