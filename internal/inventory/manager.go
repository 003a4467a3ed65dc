package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultReservationTTL = 15 * time.Minute

// Hold is the result of a successful Reserve.
type Hold struct {
	ReservationID string           `json:"reservation_id"`
	Holder        string           `json:"holder"`
	Items         []domain.ItemQty `json:"items"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// Availability is one line of a CheckAvailability report.
type Availability struct {
	ProductID  string `json:"product_id"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
	Sufficient bool   `json:"sufficient"`
	Found      bool   `json:"found"`
}

// Manager creates, confirms, releases and sweeps reservations. Every
// mutation runs in a single store transaction.
type Manager struct {
	Store    domain.Store
	Notifier domain.Notifier
	Log      *zap.Logger
	TTL      time.Duration
	Now      func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Manager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultReservationTTL
}

func (m *Manager) logger() *zap.Logger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop()
}

// CheckAvailability is a read-only pre-flight. Missing products are reported
// in the result rather than failing the call.
func (m *Manager) CheckAvailability(ctx context.Context, items []domain.ItemQty) ([]Availability, error) {
	now := m.now()
	out := make([]Availability, 0, len(items))
	for _, it := range items {
		a := Availability{ProductID: it.ProductID, Requested: it.Qty}
		p, err := m.Store.GetProduct(ctx, it.ProductID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
		case err != nil:
			return nil, fmt.Errorf("check availability %s: %w", it.ProductID, err)
		default:
			a.Found = true
			a.Available = AvailableStock(p, now)
			a.Sufficient = it.Qty > 0 && a.Available >= it.Qty
		}
		out = append(out, a)
	}
	return out, nil
}

// Reserve holds every item for holder or nothing at all. An empty
// reservationID gets a generated one.
func (m *Manager) Reserve(ctx context.Context, items []domain.ItemQty, holder, reservationID string) (*Hold, error) {
	merged, err := MergeItems(items)
	if err != nil {
		return nil, err
	}
	if holder == "" {
		return nil, fmt.Errorf("%w: holder is required", domain.ErrInvalidInput)
	}
	if reservationID == "" {
		reservationID = uuid.NewString()
	}

	var hold *Hold
	err = m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := m.now()
		existing, err := tx.ReservationsByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: reservation %s already exists", domain.ErrInvalidInput, reservationID)
		}

		products, err := tx.LockProducts(ctx, productIDs(merged))
		if err != nil {
			return err
		}
		if short := Shortages(products, merged, now, ""); len(short) > 0 {
			return &domain.InsufficientStockError{Items: short}
		}

		expiresAt := now.Add(m.ttl())
		for _, it := range merged {
			r := domain.Reservation{
				ReservationID: reservationID,
				ProductID:     it.ProductID,
				Quantity:      it.Qty,
				Holder:        holder,
				ExpiresAt:     expiresAt,
				CreatedAt:     now,
			}
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
		}
		hold = &Hold{ReservationID: reservationID, Holder: holder, Items: merged, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger().Info("reservation created",
		zap.String("reservation_id", hold.ReservationID),
		zap.String("holder", holder),
		zap.Int("items", len(merged)),
		zap.Time("expires_at", hold.ExpiresAt),
	)
	return hold, nil
}

// Confirm consumes a live reservation. Total quantity is untouched: stock is
// committed when the order is created. If any entry has expired nothing is
// removed and ErrReservationExpired is returned so the caller re-validates.
// A reservation that is gone was either never made or already reclaimed by
// the sweep, so the error matches both ErrReservationExpired and
// ErrReservationNotFound.
func (m *Manager) Confirm(ctx context.Context, caller domain.Caller, reservationID string) error {
	err := m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := m.now()
		entries, err := tx.ReservationsByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: %w: %s", domain.ErrReservationExpired, domain.ErrReservationNotFound, reservationID)
		}
		if err := canManage(caller, entries); err != nil {
			return err
		}
		for _, e := range entries {
			if e.ExpiredAt(now) {
				return fmt.Errorf("%w: %s (product %s)", domain.ErrReservationExpired, reservationID, e.ProductID)
			}
		}
		_, err = tx.DeleteReservations(ctx, reservationID)
		return err
	})
	if err != nil {
		return err
	}
	m.logger().Info("reservation confirmed", zap.String("reservation_id", reservationID), zap.String("by", caller.ID))
	return nil
}

// Release drops a reservation on explicit cancellation and announces
// products that become available again.
func (m *Manager) Release(ctx context.Context, caller domain.Caller, reservationID string) error {
	var events []domain.Event
	err := m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		events = events[:0]
		now := m.now()
		entries, err := tx.ReservationsByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservationID)
		}
		if err := canManage(caller, entries); err != nil {
			return err
		}
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ProductID)
		}
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteReservations(ctx, reservationID); err != nil {
			return err
		}
		for _, id := range ids {
			p, ok := products[id]
			if !ok {
				continue
			}
			before := AvailableStock(p, now)
			after := AvailableStock(withoutReservation(p, reservationID), now)
			if before == 0 && after > 0 {
				events = append(events, BackInStockEvent(p, after))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger().Info("reservation released", zap.String("reservation_id", reservationID), zap.String("by", caller.ID))
	Emit(ctx, m.Notifier, m.logger(), events...)
	return nil
}

// canManage allows the holder and admins to confirm or release a hold.
func canManage(caller domain.Caller, entries []domain.Reservation) error {
	if caller.Role == domain.RoleAdmin {
		return nil
	}
	for _, e := range entries {
		if e.Holder != caller.ID {
			return fmt.Errorf("%w: reservation %s belongs to another buyer", domain.ErrUnauthorized, e.ReservationID)
		}
	}
	return nil
}

// SweepExpired garbage-collects holds whose expiry has passed. Quantities are
// not restored because holds never removed them.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	var removed int
	err := m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		n, err := tx.DeleteExpiredReservations(ctx, m.now())
		removed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.logger().Info("expired reservations swept", zap.Int("removed", removed))
	}
	return removed, nil
}

// StockAlerts lists products at or below their low-stock threshold.
func (m *Manager) StockAlerts(ctx context.Context) ([]domain.Product, error) {
	return m.Store.ListStockAlerts(ctx)
}

func BackInStockEvent(p *domain.Product, available int) domain.Event {
	return domain.Event{
		Type:      domain.EventProductBackInStock,
		Recipient: p.SellerID,
		ProductID: p.ID,
		Metadata: map[string]string{
			"product_name": p.Name,
			"available":    strconv.Itoa(available),
		},
	}
}

func LowInventoryEvent(p *domain.Product, total int, status domain.StockStatus) domain.Event {
	return domain.Event{
		Type:      domain.EventLowInventoryWarning,
		Recipient: p.SellerID,
		ProductID: p.ID,
		Metadata: map[string]string{
			"product_name":   p.Name,
			"total_quantity": strconv.Itoa(total),
			"threshold":      strconv.Itoa(p.LowStockThreshold),
			"stock_status":   string(status),
		},
	}
}

// Emit delivers events best-effort; failures are only logged.
func Emit(ctx context.Context, n domain.Notifier, log *zap.Logger, events ...domain.Event) {
	if n == nil {
		return
	}
	for _, ev := range events {
		if err := n.Notify(ctx, ev); err != nil {
			log.Warn("notification failed",
				zap.String("type", string(ev.Type)),
				zap.String("recipient", ev.Recipient),
				zap.Error(err),
			)
		}
	}
}
