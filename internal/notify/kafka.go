package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	kafkax "github.com/ariefcatur/go-fresh-market/internal/kafka"
	"github.com/ariefcatur/go-fresh-market/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is the part of kafkax.Producer the sink needs.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

var _ Publisher = (*kafkax.Producer)(nil)

// KafkaSink publishes each event, wrapped in an orders.Envelope, to the
// topic of its type.
type KafkaSink struct {
	Producer Publisher
	Service  string
	Now      func() time.Time
}

func (s *KafkaSink) Notify(_ context.Context, ev domain.Event) error {
	topic, ok := orders.TopicFor(ev.Type)
	if !ok {
		return fmt.Errorf("no topic for event type %q", ev.Type)
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	correlation := ev.OrderID
	if correlation == "" {
		correlation = ev.ProductID
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     string(ev.Type),
		EventVersion:  1,
		OccurredAt:    now,
		Producer:      s.Service,
		CorrelationID: correlation,
		Payload:       kafkax.MustMarshal(orders.NotificationPayload(ev)),
	}
	return s.Producer.Publish(topic, orders.PartitionKey(ev), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.Type)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
