package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrProductNotFound        = errors.New("product not found")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrReservationExpired     = errors.New("reservation expired")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrVendorApprovalRequired = errors.New("vendor approval required before admin approval")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrTransientStoreConflict = errors.New("transient store conflict")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrInvalidInput           = errors.New("invalid input")
	ErrAlreadyApproved        = errors.New("already approved")
	ErrNotCashOnDelivery      = errors.New("order is not cash on delivery")
	ErrPaymentNotDue          = errors.New("order has not been delivered")
	ErrOrderNotDeletable      = errors.New("order can only be deleted while pending or cancelled")
	ErrDuplicateOrderID       = errors.New("duplicate order id")
)

// StockShortage describes one item that cannot be served.
type StockShortage struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
	Missing   bool   `json:"missing,omitempty"`
}

// InsufficientStockError is returned when at least one requested item cannot
// be served. It matches ErrInsufficientStock, and ErrProductNotFound when a
// requested product does not exist.
type InsufficientStockError struct {
	Items []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		if it.Missing {
			parts = append(parts, fmt.Sprintf("%s: not found", it.ProductID))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: required=%d available=%d", it.ProductID, it.Required, it.Available))
	}
	return "insufficient stock (" + strings.Join(parts, "; ") + ")"
}

func (e *InsufficientStockError) Is(target error) bool {
	if target == ErrInsufficientStock {
		return true
	}
	if target == ErrProductNotFound {
		for _, it := range e.Items {
			if it.Missing {
				return true
			}
		}
	}
	return false
}

type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
