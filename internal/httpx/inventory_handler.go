package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/ariefcatur/go-fresh-market/internal/inventory"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	Manager *inventory.Manager
	Log     *zap.Logger
}

type ItemsReq struct {
	Items []domain.ItemQty `json:"items"`
}

type ReserveReq struct {
	Items         []domain.ItemQty `json:"items"`
	ReservationID string           `json:"reservation_id,omitempty"`
}

type StockResp struct {
	ProductID         string             `json:"product_id"`
	Name              string             `json:"name"`
	TotalQuantity     int                `json:"total_quantity"`
	Available         int                `json:"available"`
	LowStockThreshold int                `json:"low_stock_threshold"`
	StockStatus       domain.StockStatus `json:"stock_status"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Identity)
		r.Post("/inventory/availability", h.checkAvailability)
		r.Get("/inventory/alerts", h.stockAlerts)
		r.Get("/products/{id}/stock", h.productStock)
		r.Post("/reservations", h.reserve)
		r.Post("/reservations/{id}/confirm", h.confirm)
		r.Delete("/reservations/{id}", h.release)
	})
}

func (h *InventoryHandler) log() *zap.Logger {
	if h.Log != nil {
		return h.Log
	}
	return zap.NewNop()
}

func (h *InventoryHandler) now() time.Time {
	if h.Manager.Now != nil {
		return h.Manager.Now()
	}
	return time.Now().UTC()
}

func (h *InventoryHandler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var req ItemsReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.Manager.CheckAvailability(ctx, req.Items)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	hold, err := h.Manager.Reserve(ctx, req.Items, callerFrom(r.Context()).ID, req.ReservationID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

func (h *InventoryHandler) confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Manager.Confirm(ctx, callerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Manager.Release(ctx, callerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) productStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Manager.Store.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, stockResp(p, inventory.AvailableStock(p, h.now())))
}

func (h *InventoryHandler) stockAlerts(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if caller.Role != domain.RoleAdmin && !caller.Role.IsSeller() {
		writeError(w, h.log(), domain.ErrUnauthorized)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Manager.StockAlerts(ctx)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	now := h.now()
	out := make([]StockResp, 0, len(ps))
	for i := range ps {
		p := &ps[i]
		// sellers only see their own listings
		if caller.Role != domain.RoleAdmin && p.SellerID != caller.ID {
			continue
		}
		out = append(out, stockResp(p, inventory.AvailableStock(p, now)))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func stockResp(p *domain.Product, available int) StockResp {
	return StockResp{
		ProductID:         p.ID,
		Name:              p.Name,
		TotalQuantity:     p.TotalQuantity,
		Available:         available,
		LowStockThreshold: p.LowStockThreshold,
		StockStatus:       p.StockStatus,
	}
}
