package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/ariefcatur/go-fresh-market/internal/inventory"
	"go.uber.org/zap"
)

// SystemActor is recorded in history for changes driven by internal events.
const SystemActor = "system"

// StateMachine applies order status transitions and the COD approval
// protocol. Every change and its history entry commit together.
type StateMachine struct {
	Store    domain.Store
	Notifier domain.Notifier
	Log      *zap.Logger
	Now      func() time.Time
}

func (m *StateMachine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *StateMachine) logger() *zap.Logger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop()
}

func (m *StateMachine) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return m.Store.GetOrder(ctx, orderID)
}

// Transition moves the order to `to` on behalf of caller.
func (m *StateMachine) Transition(ctx context.Context, caller domain.Caller, orderID string, to domain.OrderStatus, note string) (*domain.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, to)
	}

	var (
		order  *domain.Order
		events []domain.Event
	)
	err := m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		events = events[:0]
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeTransition(caller, o, to); err != nil {
			return err
		}
		if !CanTransition(o.Status, to) {
			return &domain.TransitionError{From: o.Status, To: to}
		}

		now := m.now()
		if to == domain.StatusCancelled {
			restored, err := restoreStock(ctx, tx, o, now)
			if err != nil {
				return err
			}
			events = append(events, restored...)
		}
		if err := m.apply(ctx, tx, o, to, caller.ID, note, now); err != nil {
			return err
		}
		if t, ok := eventFor(to); ok {
			events = append(events, orderEvent(t, o, map[string]string{"note": note}))
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger().Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.String("actor_id", caller.ID),
	)
	inventory.Emit(ctx, m.Notifier, m.logger(), events...)
	return order, nil
}

// apply sets the new status and appends its history entry.
func (m *StateMachine) apply(ctx context.Context, tx domain.Tx, o *domain.Order, to domain.OrderStatus, actor, note string, now time.Time) error {
	o.Status = to
	o.UpdatedAt = now
	if to == domain.StatusDelivered && o.ActualDelivery == nil {
		t := now
		o.ActualDelivery = &t
	}
	entry := domain.StatusEntry{Status: to, Note: note, ActorID: actor, At: now}
	if err := tx.AppendHistory(ctx, o.ID, entry); err != nil {
		return err
	}
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return err
	}
	o.StatusHistory = append(o.StatusHistory, entry)
	return nil
}

func authorizeTransition(caller domain.Caller, o *domain.Order, to domain.OrderStatus) error {
	switch caller.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleFarmer, domain.RoleVendor:
		if o.SoldBy(caller.ID) {
			return nil
		}
		return fmt.Errorf("%w: %s does not sell on order %s", domain.ErrUnauthorized, caller.ID, o.ID)
	case domain.RoleConsumer:
		if caller.ID != o.BuyerID {
			return fmt.Errorf("%w: order %s belongs to another buyer", domain.ErrUnauthorized, o.ID)
		}
		if to != domain.StatusCancelled {
			return fmt.Errorf("%w: buyers may only cancel", domain.ErrUnauthorized)
		}
		if !buyerCancellable[o.Status] {
			return fmt.Errorf("%w: buyers cannot cancel a %s order", domain.ErrUnauthorized, o.Status)
		}
		return nil
	}
	return fmt.Errorf("%w: role %q", domain.ErrUnauthorized, caller.Role)
}

// restoreStock gives every line's quantity back to its product, undoing the
// decrement made when the order was created.
func restoreStock(ctx context.Context, tx domain.Tx, o *domain.Order, now time.Time) ([]domain.Event, error) {
	qty := make(map[string]int, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if _, ok := qty[it.ProductID]; !ok {
			ids = append(ids, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	var events []domain.Event
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			// delisted from the catalog; nothing to restore into
			continue
		}
		before := inventory.AvailableStock(p, now)
		total := p.TotalQuantity + qty[id]
		if err := tx.UpdateStock(ctx, id, total, inventory.DeriveStockStatus(total, p.LowStockThreshold)); err != nil {
			return nil, err
		}
		p.TotalQuantity = total
		if after := inventory.AvailableStock(p, now); before == 0 && after > 0 {
			events = append(events, inventory.BackInStockEvent(p, after))
		}
	}
	return events, nil
}

// VendorApprove records the seller's confirmation that COD cash was
// collected. Only a seller on the order may set it, once, after delivery.
func (m *StateMachine) VendorApprove(ctx context.Context, caller domain.Caller, orderID string) (*domain.Order, error) {
	if !caller.Role.IsSeller() {
		return nil, fmt.Errorf("%w: only the seller may give the first approval", domain.ErrUnauthorized)
	}
	var order *domain.Order
	err := m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.SoldBy(caller.ID) {
			return fmt.Errorf("%w: %s does not sell on order %s", domain.ErrUnauthorized, caller.ID, o.ID)
		}
		if err := codApprovable(o); err != nil {
			return err
		}
		if o.COD.VendorApproved {
			return fmt.Errorf("%w: vendor approval on %s", domain.ErrAlreadyApproved, o.ID)
		}
		now := m.now()
		o.COD.VendorApproved = true
		o.COD.VendorApprovedBy = caller.ID
		o.COD.VendorApprovedAt = &now
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger().Info("cod vendor approval", zap.String("order_id", orderID), zap.String("actor_id", caller.ID))
	return order, nil
}

// AdminApprove completes COD payment. It requires the vendor approval first
// and leaves the delivery status unchanged.
func (m *StateMachine) AdminApprove(ctx context.Context, caller domain.Caller, orderID string) (*domain.Order, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only an admin may give the second approval", domain.ErrUnauthorized)
	}
	var order *domain.Order
	err := m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := codApprovable(o); err != nil {
			return err
		}
		if !o.COD.VendorApproved {
			return fmt.Errorf("%w: order %s", domain.ErrVendorApprovalRequired, o.ID)
		}
		if o.COD.AdminApproved {
			return fmt.Errorf("%w: admin approval on %s", domain.ErrAlreadyApproved, o.ID)
		}
		now := m.now()
		o.COD.AdminApproved = true
		o.COD.AdminApprovedBy = caller.ID
		o.COD.AdminApprovedAt = &now
		o.PaymentStatus = domain.PaymentCompleted
		o.UpdatedAt = now
		entry := domain.StatusEntry{Status: o.Status, Note: "cash on delivery payment approved", ActorID: caller.ID, At: now}
		if err := tx.AppendHistory(ctx, o.ID, entry); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		o.StatusHistory = append(o.StatusHistory, entry)
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger().Info("cod payment completed", zap.String("order_id", orderID), zap.String("actor_id", caller.ID))
	return order, nil
}

func codApprovable(o *domain.Order) error {
	if o.PaymentMethod != domain.PaymentCOD {
		return fmt.Errorf("%w: %s", domain.ErrNotCashOnDelivery, o.ID)
	}
	if o.Status != domain.StatusDelivered {
		return fmt.Errorf("%w: %s is %s", domain.ErrPaymentNotDue, o.ID, o.Status)
	}
	return nil
}

// ConfirmOnlinePayment records a completed online payment and moves a
// pending order to confirmed. Repeated deliveries of the same payment are a
// no-op.
func (m *StateMachine) ConfirmOnlinePayment(ctx context.Context, orderID, paymentRef string) (*domain.Order, error) {
	var (
		order   *domain.Order
		changed bool
	)
	err := m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		changed = false
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		if o.PaymentMethod == domain.PaymentCOD {
			return fmt.Errorf("%w: %s is cash on delivery", domain.ErrInvalidInput, o.ID)
		}
		if o.PaymentStatus == domain.PaymentCompleted {
			return nil
		}
		if !CanTransition(o.Status, domain.StatusConfirmed) {
			return &domain.TransitionError{From: o.Status, To: domain.StatusConfirmed}
		}
		o.PaymentStatus = domain.PaymentCompleted
		note := "online payment received"
		if paymentRef != "" {
			note += " (" + paymentRef + ")"
		}
		changed = true
		return m.apply(ctx, tx, o, domain.StatusConfirmed, SystemActor, note, m.now())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		m.logger().Info("online payment confirmed", zap.String("order_id", orderID), zap.String("payment_ref", paymentRef))
		inventory.Emit(ctx, m.Notifier, m.logger(), orderEvent(domain.EventOrderConfirmed, order, nil))
	}
	return order, nil
}

// Delete removes an order for good. Only admins may do so and only while it
// is pending or cancelled; a pending order still holds its stock decrement,
// which is given back first.
func (m *StateMachine) Delete(ctx context.Context, caller domain.Caller, orderID string) error {
	if caller.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: only an admin may delete orders", domain.ErrUnauthorized)
	}
	var events []domain.Event
	err := m.Store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		events = events[:0]
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case domain.StatusPending:
			restored, err := restoreStock(ctx, tx, o, m.now())
			if err != nil {
				return err
			}
			events = append(events, restored...)
		case domain.StatusCancelled:
		default:
			return fmt.Errorf("%w: %s is %s", domain.ErrOrderNotDeletable, o.ID, o.Status)
		}
		return tx.DeleteOrder(ctx, o.ID)
	})
	if err != nil {
		return err
	}
	m.logger().Info("order deleted", zap.String("order_id", orderID), zap.String("actor_id", caller.ID))
	inventory.Emit(ctx, m.Notifier, m.logger(), events...)
	return nil
}
