package orders

import "github.com/ariefcatur/go-fresh-market/internal/domain"

var validNext = map[domain.OrderStatus]map[domain.OrderStatus]bool{
	domain.StatusPending:        {domain.StatusConfirmed: true, domain.StatusCancelled: true},
	domain.StatusConfirmed:      {domain.StatusPreparing: true, domain.StatusCancelled: true},
	domain.StatusPreparing:      {domain.StatusPacked: true, domain.StatusCancelled: true},
	domain.StatusPacked:         {domain.StatusOutForDelivery: true, domain.StatusCancelled: true},
	domain.StatusOutForDelivery: {domain.StatusDelivered: true, domain.StatusReturned: true},
	domain.StatusDelivered:      {domain.StatusReturned: true},
	domain.StatusCancelled:      {},
	domain.StatusReturned:       {},
}

func CanTransition(from, to domain.OrderStatus) bool {
	return validNext[from][to]
}

// NextStatuses returns the statuses reachable from s in lifecycle order.
func NextStatuses(s domain.OrderStatus) []domain.OrderStatus {
	var out []domain.OrderStatus
	for _, to := range domain.AllOrderStatuses {
		if validNext[s][to] {
			out = append(out, to)
		}
	}
	return out
}

// buyerCancellable are the statuses in which a consumer may still cancel.
var buyerCancellable = map[domain.OrderStatus]bool{
	domain.StatusPending:   true,
	domain.StatusConfirmed: true,
}

func eventFor(to domain.OrderStatus) (domain.EventType, bool) {
	switch to {
	case domain.StatusConfirmed:
		return domain.EventOrderConfirmed, true
	case domain.StatusOutForDelivery:
		return domain.EventOrderShipped, true
	case domain.StatusDelivered:
		return domain.EventOrderDelivered, true
	case domain.StatusCancelled:
		return domain.EventOrderCancelled, true
	}
	return "", false
}
