package orders

import "github.com/ariefcatur/go-fresh-market/internal/domain"

const (
	TopicOrderConfirmed      = "market.order.confirmed"
	TopicOrderShipped        = "market.order.shipped"
	TopicOrderDelivered      = "market.order.delivered"
	TopicOrderCancelled      = "market.order.cancelled"
	TopicProductBackInStock  = "market.product.back_in_stock"
	TopicLowInventoryWarning = "market.product.low_inventory"
	TopicPaymentCompleted    = "market.payment.completed"
)

var notificationTopics = map[domain.EventType]string{
	domain.EventOrderConfirmed:      TopicOrderConfirmed,
	domain.EventOrderShipped:        TopicOrderShipped,
	domain.EventOrderDelivered:      TopicOrderDelivered,
	domain.EventOrderCancelled:      TopicOrderCancelled,
	domain.EventProductBackInStock:  TopicProductBackInStock,
	domain.EventLowInventoryWarning: TopicLowInventoryWarning,
}

// TopicFor maps a notification type to its topic.
func TopicFor(t domain.EventType) (string, bool) {
	topic, ok := notificationTopics[t]
	return topic, ok
}

// PartitionKey keeps all events of one order (or product) in order.
func PartitionKey(ev domain.Event) []byte {
	if ev.OrderID != "" {
		return []byte(ev.OrderID)
	}
	return []byte(ev.ProductID)
}
