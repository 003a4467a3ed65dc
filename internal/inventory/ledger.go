package inventory

import (
	"sort"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
)

// AvailableStock is total quantity minus every hold still live at now.
func AvailableStock(p *domain.Product, now time.Time) int {
	return AvailableExcluding(p, now, "")
}

// AvailableExcluding is AvailableStock ignoring the holds of reservationID,
// so a buyer can convert their own hold into an order.
func AvailableExcluding(p *domain.Product, now time.Time, reservationID string) int {
	held := 0
	for _, r := range p.Reservations {
		if r.ExpiredAt(now) {
			continue
		}
		if reservationID != "" && r.ReservationID == reservationID {
			continue
		}
		held += r.Quantity
	}
	if avail := p.TotalQuantity - held; avail > 0 {
		return avail
	}
	return 0
}

// DeriveStockStatus must be called after every change of total quantity.
func DeriveStockStatus(total, threshold int) domain.StockStatus {
	switch {
	case total <= 0:
		return domain.StockOutOfStock
	case total <= threshold:
		return domain.StockLowStock
	default:
		return domain.StockInStock
	}
}

// Shortages lists every item that cannot be served from products at now.
func Shortages(products map[string]*domain.Product, items []domain.ItemQty, now time.Time, reservationID string) []domain.StockShortage {
	var out []domain.StockShortage
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			out = append(out, domain.StockShortage{ProductID: it.ProductID, Required: it.Qty, Missing: true})
			continue
		}
		if avail := AvailableExcluding(p, now, reservationID); avail < it.Qty {
			out = append(out, domain.StockShortage{ProductID: it.ProductID, Required: it.Qty, Available: avail})
		}
	}
	return out
}

// MergeItems validates quantities and folds repeated products into one line.
// The result is sorted by product id so rows are always locked in the same
// order.
func MergeItems(items []domain.ItemQty) ([]domain.ItemQty, error) {
	if len(items) == 0 {
		return nil, domain.ErrInvalidInput
	}
	byID := make(map[string]int, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return nil, domain.ErrInvalidInput
		}
		if it.Qty <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		byID[it.ProductID] += it.Qty
	}
	out := make([]domain.ItemQty, 0, len(byID))
	for id, qty := range byID {
		out = append(out, domain.ItemQty{ProductID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func productIDs(items []domain.ItemQty) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// withoutReservation returns a copy of p whose holds exclude reservationID.
func withoutReservation(p *domain.Product, reservationID string) *domain.Product {
	cp := *p
	cp.Reservations = make([]domain.Reservation, 0, len(p.Reservations))
	for _, r := range p.Reservations {
		if r.ReservationID != reservationID {
			cp.Reservations = append(cp.Reservations, r)
		}
	}
	return &cp
}
