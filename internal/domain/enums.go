package domain

type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

func (s StockStatus) Valid() bool {
	switch s {
	case StockInStock, StockLowStock, StockOutOfStock:
		return true
	}
	return false
}

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusPacked         OrderStatus = "packed"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
	StatusReturned       OrderStatus = "returned"
)

// AllOrderStatuses lists every status in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusPacked,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
	StatusReturned,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusPacked,
		StatusOutForDelivery, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD           PaymentMethod = "cash_on_delivery"
	PaymentMobileBanking PaymentMethod = "mobile_banking"
	PaymentCard          PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentMobileBanking, PaymentCard:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

type Role string

const (
	RoleConsumer Role = "consumer"
	RoleFarmer   Role = "farmer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleConsumer, RoleFarmer, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

// IsSeller reports whether the role lists goods on the marketplace.
func (r Role) IsSeller() bool {
	return r == RoleFarmer || r == RoleVendor
}

type EventType string

const (
	EventOrderConfirmed      EventType = "order_confirmed"
	EventOrderShipped        EventType = "order_shipped"
	EventOrderDelivered      EventType = "order_delivered"
	EventOrderCancelled      EventType = "order_cancelled"
	EventProductBackInStock  EventType = "product_back_in_stock"
	EventLowInventoryWarning EventType = "low_inventory_warning"
)
