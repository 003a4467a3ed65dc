package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/ariefcatur/go-fresh-market/internal/inventory"
	"go.uber.org/zap"
)

const (
	createAttempts   = 3
	deliveryLeadTime = 72 * time.Hour
)

type CreateOrderInput struct {
	BuyerID         string
	Items           []domain.ItemQty
	DeliveryAddress domain.Address
	PaymentMethod   domain.PaymentMethod
	// ReservationID, when set, is converted into the order: its holds stop
	// counting against availability and are removed with the decrement.
	ReservationID string
}

// Pipeline creates orders: stock check, item snapshot, inventory decrement
// and order insert happen in one store transaction.
type Pipeline struct {
	Store    domain.Store
	Notifier domain.Notifier
	Log      *zap.Logger
	Now      func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Log != nil {
		return p.Log
	}
	return zap.NewNop()
}

func (p *Pipeline) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if in.BuyerID == "" {
		return nil, fmt.Errorf("%w: buyer is required", domain.ErrInvalidInput)
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: payment method %q", domain.ErrInvalidInput, in.PaymentMethod)
	}
	items, err := inventory.MergeItems(in.Items)
	if err != nil {
		return nil, err
	}

	var (
		order  *domain.Order
		events []domain.Event
	)
	for attempt := 1; ; attempt++ {
		order, events, err = p.create(ctx, in, items)
		if errors.Is(err, domain.ErrDuplicateOrderID) && attempt < createAttempts {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	p.logger().Info("order created",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", order.BuyerID),
		zap.String("status", string(order.Status)),
		zap.String("total", order.Summary.Total.StringFixed(2)),
	)
	if order.Status == domain.StatusConfirmed {
		events = append(events, orderEvent(domain.EventOrderConfirmed, order, nil))
	}
	inventory.Emit(ctx, p.Notifier, p.logger(), events...)
	return order, nil
}

func (p *Pipeline) create(ctx context.Context, in CreateOrderInput, items []domain.ItemQty) (*domain.Order, []domain.Event, error) {
	var (
		order  *domain.Order
		events []domain.Event
	)
	err := p.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		events = events[:0]
		now := p.now()

		if in.ReservationID != "" {
			held, err := tx.ReservationsByID(ctx, in.ReservationID)
			if err != nil {
				return err
			}
			for _, r := range held {
				if r.Holder != in.BuyerID {
					return fmt.Errorf("%w: reservation %s belongs to another buyer", domain.ErrUnauthorized, in.ReservationID)
				}
			}
		}

		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ProductID)
		}
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		if short := inventory.Shortages(products, items, now, in.ReservationID); len(short) > 0 {
			return &domain.InsufficientStockError{Items: short}
		}

		lines := make([]domain.OrderItem, 0, len(items))
		for _, it := range items {
			prod := products[it.ProductID]
			lines = append(lines, snapshotItem(prod, it.Qty))

			total := prod.TotalQuantity - it.Qty
			status := inventory.DeriveStockStatus(total, prod.LowStockThreshold)
			if err := tx.UpdateStock(ctx, prod.ID, total, status); err != nil {
				return err
			}
			if status != prod.StockStatus && status != domain.StockInStock {
				events = append(events, inventory.LowInventoryEvent(prod, total, status))
			}
		}
		if in.ReservationID != "" {
			if _, err := tx.DeleteReservations(ctx, in.ReservationID); err != nil {
				return err
			}
		}

		status := domain.StatusPending
		if in.PaymentMethod == domain.PaymentCOD {
			status = domain.StatusConfirmed
		}
		o := &domain.Order{
			ID:                NewOrderID(now),
			BuyerID:           in.BuyerID,
			Items:             lines,
			DeliveryAddress:   in.DeliveryAddress,
			PaymentMethod:     in.PaymentMethod,
			Summary:           ComputeSummary(lines),
			Status:            status,
			PaymentStatus:     domain.PaymentPending,
			EstimatedDelivery: now.Add(deliveryLeadTime),
			CreatedAt:         now,
			UpdatedAt:         now,
			StatusHistory: []domain.StatusEntry{{
				Status:  status,
				Note:    "order placed",
				ActorID: in.BuyerID,
				At:      now,
			}},
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, events, err
}

func orderEvent(t domain.EventType, o *domain.Order, extra map[string]string) domain.Event {
	md := map[string]string{
		"status": string(o.Status),
		"total":  o.Summary.Total.StringFixed(2),
	}
	for k, v := range extra {
		md[k] = v
	}
	return domain.Event{Type: t, Recipient: o.BuyerID, OrderID: o.ID, Metadata: md}
}
