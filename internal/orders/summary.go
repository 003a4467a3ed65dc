package orders

import (
	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/shopspring/decimal"
)

// Pricing policy. Tax has no per-jurisdiction configuration.
var (
	FreeDeliveryOver = decimal.NewFromInt(1000)
	FlatDeliveryFee  = decimal.NewFromInt(50)
	TaxRate          = decimal.NewFromFloat(0.10)
)

// ComputeSummary totals item snapshots. It runs once at creation; the result
// is never recomputed from live prices.
func ComputeSummary(items []domain.OrderItem) domain.Summary {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal)
	}
	fee := FlatDeliveryFee
	if subtotal.GreaterThan(FreeDeliveryOver) {
		fee = decimal.Zero
	}
	tax := subtotal.Mul(TaxRate).Round(2)
	discount := decimal.Zero
	return domain.Summary{
		Subtotal:    subtotal.Round(2),
		DeliveryFee: fee,
		Tax:         tax,
		Discount:    discount,
		Total:       subtotal.Add(fee).Add(tax).Sub(discount).Round(2),
	}
}

func snapshotItem(p *domain.Product, qty int) domain.OrderItem {
	return domain.OrderItem{
		ProductID:  p.ID,
		Name:       p.Name,
		Quantity:   qty,
		Unit:       p.Unit,
		UnitPrice:  p.Price,
		LineTotal:  p.Price.Mul(decimal.NewFromInt(int64(qty))).Round(2),
		SellerID:   p.SellerID,
		SellerType: p.SellerType,
	}
}
