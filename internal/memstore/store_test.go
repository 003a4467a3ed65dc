package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutProduct(domain.Product{ID: "p1", TotalQuantity: 5, StockStatus: domain.StockInStock})

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.UpdateStock(ctx, "p1", 1, domain.StockLowStock))
		require.NoError(t, tx.InsertReservation(ctx, domain.Reservation{ReservationID: "r", ProductID: "p1", Quantity: 1, ExpiresAt: time.Now().Add(time.Hour)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.TotalQuantity)
	assert.Equal(t, domain.StockInStock, p.StockStatus)
	assert.Empty(t, p.Reservations)
}

func TestTxGuards(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutProduct(domain.Product{ID: "p1", TotalQuantity: 5})

	err := s.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.UpdateStock(ctx, "p1", -1, domain.StockOutOfStock)
	})
	assert.Error(t, err)

	err = s.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.UpdateStock(ctx, "nope", 1, domain.StockLowStock)
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	order := &domain.Order{ID: "ORD-1", Status: domain.StatusPending}
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx domain.Tx) error { return tx.InsertOrder(ctx, order) }))
	err = s.InTx(ctx, func(ctx context.Context, tx domain.Tx) error { return tx.InsertOrder(ctx, order) })
	assert.ErrorIs(t, err, domain.ErrDuplicateOrderID)

	s.FailOrderInsert = errors.New("disk full")
	err = s.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.InsertOrder(ctx, &domain.Order{ID: "ORD-2"})
	})
	assert.EqualError(t, err, "disk full")

	_, err = s.GetOrder(ctx, "ORD-2")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestReturnedOrdersAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.InsertOrder(ctx, &domain.Order{
			ID:            "ORD-1",
			Status:        domain.StatusPending,
			StatusHistory: []domain.StatusEntry{{Status: domain.StatusPending}},
		})
	}))

	o, err := s.GetOrder(ctx, "ORD-1")
	require.NoError(t, err)
	o.Status = domain.StatusCancelled
	o.StatusHistory[0].Note = "tampered"

	again, err := s.GetOrder(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
	assert.Empty(t, again.StatusHistory[0].Note)
}

func TestDeleteExpiredReservations(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New()
	s.PutProduct(domain.Product{ID: "p1", TotalQuantity: 5})

	var removed int
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		for i, exp := range []time.Time{now.Add(-time.Minute), now, now.Add(time.Minute)} {
			r := domain.Reservation{ReservationID: string(rune('a' + i)), ProductID: "p1", Quantity: 1, ExpiresAt: exp}
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
		}
		n, err := tx.DeleteExpiredReservations(ctx, now)
		removed = n
		return err
	}))
	assert.Equal(t, 2, removed)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, p.Reservations, 1)
	assert.Equal(t, "c", p.Reservations[0].ReservationID)
}
