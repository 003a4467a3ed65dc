package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                string
	Name              string
	Price             decimal.Decimal
	Unit              string
	Category          string
	SellerID          string
	SellerType        Role
	TotalQuantity     int
	LowStockThreshold int
	StockStatus       StockStatus
	Reservations      []Reservation
	UpdatedAt         time.Time
}

// Reservation is a time-bounded hold on part of a product's stock. One
// ReservationID may span several products.
type Reservation struct {
	ReservationID string
	ProductID     string
	Quantity      int
	Holder        string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// ExpiredAt reports whether the hold no longer counts against stock at now.
func (r Reservation) ExpiredAt(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Address struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postal_code"`
}

type OrderItem struct {
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Unit       string          `json:"unit"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	SellerID   string          `json:"seller_id"`
	SellerType Role            `json:"seller_type"`
}

type Summary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

type StatusEntry struct {
	Status  OrderStatus `json:"status"`
	Note    string      `json:"note,omitempty"`
	ActorID string      `json:"actor_id"`
	At      time.Time   `json:"at"`
}

type CODApproval struct {
	VendorApproved   bool       `json:"vendor_approved"`
	VendorApprovedBy string     `json:"vendor_approved_by,omitempty"`
	VendorApprovedAt *time.Time `json:"vendor_approved_at,omitempty"`
	AdminApproved    bool       `json:"admin_approved"`
	AdminApprovedBy  string     `json:"admin_approved_by,omitempty"`
	AdminApprovedAt  *time.Time `json:"admin_approved_at,omitempty"`
}

type Order struct {
	ID                string        `json:"order_id"`
	BuyerID           string        `json:"buyer_id"`
	Items             []OrderItem   `json:"items"`
	DeliveryAddress   Address       `json:"delivery_address"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	Summary           Summary       `json:"order_summary"`
	Status            OrderStatus   `json:"status"`
	StatusHistory     []StatusEntry `json:"status_history"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	COD               CODApproval   `json:"cod_approval"`
	EstimatedDelivery time.Time     `json:"estimated_delivery"`
	ActualDelivery    *time.Time    `json:"actual_delivery,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// SoldBy reports whether sellerID owns at least one line of the order.
func (o *Order) SoldBy(sellerID string) bool {
	for _, it := range o.Items {
		if it.SellerID == sellerID {
			return true
		}
	}
	return false
}

// Caller is the authenticated identity supplied by the auth layer.
type Caller struct {
	ID   string
	Role Role
}
