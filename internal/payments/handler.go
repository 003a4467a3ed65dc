// Package payments consumes settlement events from the payment service and
// records them on orders. Only status bookkeeping happens here.
package payments

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	kafkax "github.com/ariefcatur/go-fresh-market/internal/kafka"
	"github.com/ariefcatur/go-fresh-market/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Confirmer interface {
	ConfirmOnlinePayment(ctx context.Context, orderID, paymentRef string) (*domain.Order, error)
}

type Deduper interface {
	MarkProcessed(ctx context.Context, service, eventID string) (bool, error)
	Forget(ctx context.Context, service, eventID string) error
}

// StatusInvalidator drops a cached order status once the order changes.
type StatusInvalidator interface {
	InvalidateOrderStatus(ctx context.Context, orderID string) error
}

type Handler struct {
	Orders      Confirmer
	Dedup       Deduper           // optional
	Cache       StatusInvalidator // optional
	ServiceName string
	Log         *zap.Logger
}

func (h *Handler) logger() *zap.Logger {
	if h.Log != nil {
		return h.Log
	}
	return zap.NewNop()
}

// HandlePaymentCompleted is installed as the consumer handler for
// orders.TopicPaymentCompleted.
func (h *Handler) HandlePaymentCompleted(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		h.logger().Warn("dropping undecodable payment event", zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventPaymentCompleted {
		return nil
	}

	if h.Dedup != nil && env.EventID != "" {
		fresh, err := h.Dedup.MarkProcessed(ctx, h.ServiceName, env.EventID)
		if err != nil {
			h.logger().Warn("dedup check failed", zap.String("event_id", env.EventID), zap.Error(err))
		} else if !fresh {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentCompletedPayload](env.Payload)
	if err != nil {
		h.logger().Warn("dropping payment event", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	_, err = h.Orders.ConfirmOnlinePayment(ctx, p.OrderID, p.PaymentRef)
	switch {
	case err == nil:
		if h.Cache != nil {
			if err := h.Cache.InvalidateOrderStatus(ctx, p.OrderID); err != nil {
				h.logger().Warn("invalidate order status", zap.String("order_id", p.OrderID), zap.Error(err))
			}
		}
		return nil
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidInput):
		// not retryable; commit the offset
		h.logger().Warn("payment event rejected",
			zap.String("order_id", p.OrderID),
			zap.String("payment_ref", p.PaymentRef),
			zap.Error(err),
		)
		return nil
	default:
		if h.Dedup != nil && env.EventID != "" {
			_ = h.Dedup.Forget(ctx, h.ServiceName, env.EventID)
		}
		return err
	}
}
