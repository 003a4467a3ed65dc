package orders

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
)

const EventPaymentCompleted = "PaymentCompleted"

// Envelope wraps every message this service writes to or reads from Kafka.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order or product id
	Payload       json.RawMessage `json:"payload"`
}

// NotificationPayload is the body of every notification topic.
type NotificationPayload = domain.Event

// PaymentCompletedPayload is published by the payment service once an online
// payment settles.
type PaymentCompletedPayload struct {
	OrderID     string `json:"order_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int    `json:"amount_cents"`
}
