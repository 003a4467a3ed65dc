package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/ariefcatur/go-fresh-market/internal/orders"
	"github.com/ariefcatur/go-fresh-market/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// StatusCache is the Redis fast path in front of the order store. Every
// method is best-effort; failures only cost a store round trip.
type StatusCache interface {
	GetOrderStatus(ctx context.Context, orderID string) (*redisx.OrderStatus, bool)
	SetOrderStatus(ctx context.Context, orderID string, st redisx.OrderStatus) error
	InvalidateOrderStatus(ctx context.Context, orderID string) error
	ClaimIdempotent(ctx context.Context, buyerID, key string) (bool, string, error)
	CompleteIdempotent(ctx context.Context, buyerID, key, orderID string) error
	ReleaseIdempotent(ctx context.Context, buyerID, key string) error
}

type OrdersHandler struct {
	Pipeline *orders.Pipeline
	Orders   *orders.StateMachine
	Cache    StatusCache
	Log      *zap.Logger
}

type CreateOrderReq struct {
	Items           []domain.ItemQty     `json:"items"`
	DeliveryAddress domain.Address       `json:"delivery_address"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	ReservationID   string               `json:"reservation_id,omitempty"`
}

type CreateOrderResp struct {
	Order      *domain.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type TransitionReq struct {
	Status domain.OrderStatus `json:"status"`
	Note   string             `json:"note,omitempty"`
}

type StatusResp struct {
	OrderID       string               `json:"order_id"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	Cached        bool                 `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Identity)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getOrderStatus)
		r.Patch("/orders/{id}/status", h.transition)
		r.Post("/orders/{id}/cod/vendor-approval", h.vendorApprove)
		r.Post("/orders/{id}/cod/admin-approval", h.adminApprove)
		r.Delete("/orders/{id}", h.deleteOrder)
	})
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Log != nil {
		return h.Log
	}
	return zap.NewNop()
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	var req CreateOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// The key is claimed before the order exists; a concurrent duplicate
	// sees the claim and never reaches the pipeline.
	idemKey := r.Header.Get(HeaderIdempotencyKey)
	claimed := false
	if idemKey != "" && h.Cache != nil {
		ok, existing, err := h.Cache.ClaimIdempotent(ctx, caller.ID, idemKey)
		switch {
		case err != nil:
			h.log().Warn("idempotency claim failed", zap.String("buyer_id", caller.ID), zap.Error(err))
		case ok:
			claimed = true
		case existing == redisx.IdemPending:
			writeJSON(w, http.StatusConflict, errorBody{
				Error:   "idempotency_in_progress",
				Message: "a request with this idempotency key is still being processed",
			})
			return
		default:
			o, err := h.Orders.Get(ctx, existing)
			if err != nil {
				writeError(w, h.log(), err)
				return
			}
			writeJSON(w, http.StatusOK, CreateOrderResp{Order: o, Idempotent: true})
			return
		}
	}

	o, err := h.Pipeline.CreateOrder(ctx, orders.CreateOrderInput{
		BuyerID:         caller.ID,
		Items:           req.Items,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		ReservationID:   req.ReservationID,
	})
	if err != nil {
		if claimed {
			if err := h.Cache.ReleaseIdempotent(ctx, caller.ID, idemKey); err != nil {
				h.log().Warn("release idempotency key", zap.String("buyer_id", caller.ID), zap.Error(err))
			}
		}
		writeError(w, h.log(), err)
		return
	}

	if h.Cache != nil {
		if claimed {
			if err := h.Cache.CompleteIdempotent(ctx, caller.ID, idemKey, o.ID); err != nil {
				h.log().Warn("complete idempotency key", zap.String("order_id", o.ID), zap.Error(err))
			}
		}
		h.cacheStatus(ctx, o)
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{Order: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.readable(ctx, callerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves status polling from the cache. Authorization is
// checked against the store on a miss only; the cache holds no buyer data.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	caller := callerFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil && caller.Role == domain.RoleAdmin {
		if st, ok := h.Cache.GetOrderStatus(ctx, orderID); ok {
			writeJSON(w, http.StatusOK, StatusResp{
				OrderID:       orderID,
				Status:        domain.OrderStatus(st.Status),
				PaymentStatus: domain.PaymentStatus(st.PaymentStatus),
				Cached:        true,
			})
			return
		}
	}

	o, err := h.readable(ctx, caller, orderID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, StatusResp{OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus})
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.Transition(ctx, callerFrom(r.Context()), chi.URLParam(r, "id"), req.Status, req.Note)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) vendorApprove(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.Orders.VendorApprove)
}

func (h *OrdersHandler) adminApprove(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.Orders.AdminApprove)
}

func (h *OrdersHandler) approve(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Caller, string) (*domain.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := fn(ctx, callerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Orders.Delete(ctx, callerFrom(r.Context()), orderID); err != nil {
		writeError(w, h.log(), err)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.InvalidateOrderStatus(ctx, orderID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// readable loads an order the caller is allowed to see: its buyer, a seller
// with a line on it, or an admin.
func (h *OrdersHandler) readable(ctx context.Context, caller domain.Caller, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing order id", domain.ErrInvalidInput)
	}
	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case caller.Role == domain.RoleAdmin:
	case o.BuyerID == caller.ID:
	case caller.Role.IsSeller() && o.SoldBy(caller.ID):
	default:
		return nil, fmt.Errorf("%w: order %s", domain.ErrUnauthorized, orderID)
	}
	return o, nil
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *domain.Order) {
	if h.Cache == nil || o == nil {
		return
	}
	err := h.Cache.SetOrderStatus(ctx, o.ID, redisx.OrderStatus{
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log().Debug("cache order status", zap.String("order_id", o.ID), zap.Error(err))
	}
}
