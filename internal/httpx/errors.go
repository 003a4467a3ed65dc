package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"go.uber.org/zap"
)

type errorBody struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Items   []domain.StockShortage `json:"items,omitempty"`
	From    domain.OrderStatus     `json:"from,omitempty"`
	To      domain.OrderStatus     `json:"to,omitempty"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domain.ErrReservationExpired, http.StatusGone, "reservation_expired"},
	{domain.ErrReservationNotFound, http.StatusNotFound, "reservation_not_found"},
	{domain.ErrVendorApprovalRequired, http.StatusConflict, "vendor_approval_required"},
	{domain.ErrAlreadyApproved, http.StatusConflict, "already_approved"},
	{domain.ErrNotCashOnDelivery, http.StatusConflict, "not_cash_on_delivery"},
	{domain.ErrPaymentNotDue, http.StatusConflict, "payment_not_due"},
	{domain.ErrOrderNotDeletable, http.StatusConflict, "order_not_deletable"},
	{domain.ErrTransientStoreConflict, http.StatusServiceUnavailable, "transient_store_conflict"},
}

// writeError maps core errors onto HTTP responses. Anything unrecognised is
// a 500 and is logged.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var short *domain.InsufficientStockError
	if errors.As(err, &short) {
		writeJSON(w, http.StatusConflict, errorBody{Error: "insufficient_stock", Message: err.Error(), Items: short.Items})
		return
	}
	var tr *domain.TransitionError
	if errors.As(err, &tr) {
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid_transition", Message: err.Error(), From: tr.From, To: tr.To})
		return
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			writeJSON(w, c.status, errorBody{Error: c.code, Message: err.Error()})
			return
		}
	}
	log.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
}
