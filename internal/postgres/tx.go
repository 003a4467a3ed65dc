package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, price::text, unit, category, seller_id, seller_type,
	total_quantity, low_stock_threshold, stock_status, updated_at`

type pgTx struct{ q querier }

var _ domain.Tx = (*pgTx)(nil)

func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	return loadProducts(ctx, t.q, ids, true)
}

func (t *pgTx) UpdateStock(ctx context.Context, productID string, total int, status domain.StockStatus) error {
	ct, err := t.q.Exec(ctx, `UPDATE products
		SET total_quantity = $2, stock_status = $3, updated_at = now()
		WHERE id = $1`, productID, total, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return nil
}

func (t *pgTx) InsertReservation(ctx context.Context, r domain.Reservation) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO reservations(reservation_id, product_id, quantity, holder_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ReservationID, r.ProductID, r.Quantity, r.Holder, r.ExpiresAt, r.CreatedAt)
	if isUniqueViolation(err, "reservations_pkey") {
		return fmt.Errorf("%w: reservation %s already exists", domain.ErrInvalidInput, r.ReservationID)
	}
	return err
}

func (t *pgTx) ReservationsByID(ctx context.Context, reservationID string) ([]domain.Reservation, error) {
	rows, err := t.q.Query(ctx, `
		SELECT reservation_id, product_id, quantity, holder_id, expires_at, created_at
		FROM reservations WHERE reservation_id = $1
		ORDER BY product_id FOR UPDATE`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) DeleteReservations(ctx context.Context, reservationID string) (int, error) {
	ct, err := t.q.Exec(ctx, `DELETE FROM reservations WHERE reservation_id = $1`, reservationID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (t *pgTx) DeleteExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	ct, err := t.q.Exec(ctx, `DELETE FROM reservations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	addr, err := json.Marshal(o.DeliveryAddress)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, delivery_address, payment_method,
			subtotal, delivery_fee, tax, discount, total,
			status, payment_status, estimated_delivery, created_at, updated_at)
		VALUES ($1, $2, $3, $4,
			$5::text::numeric, $6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric,
			$10, $11, $12, $13, $14)`,
		o.ID, o.BuyerID, addr, string(o.PaymentMethod),
		money(o.Summary.Subtotal), money(o.Summary.DeliveryFee), money(o.Summary.Tax),
		money(o.Summary.Discount), money(o.Summary.Total),
		string(o.Status), string(o.PaymentStatus), o.EstimatedDelivery, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err, "orders_pkey") {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateOrderID, o.ID)
	}
	if err != nil {
		return err
	}

	for i, it := range o.Items {
		if _, err := t.q.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, name, quantity, unit,
				unit_price, line_total, seller_id, seller_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9, $10)`,
			o.ID, i+1, it.ProductID, it.Name, it.Quantity, it.Unit,
			money(it.UnitPrice), money(it.LineTotal), it.SellerID, string(it.SellerType),
		); err != nil {
			return err
		}
	}
	for _, e := range o.StatusHistory {
		if err := t.AppendHistory(ctx, o.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	return loadOrder(ctx, t.q, id, true)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE orders SET status = $2, payment_status = $3,
			vendor_approved = $4, vendor_approved_by = $5, vendor_approved_at = $6,
			admin_approved = $7, admin_approved_by = $8, admin_approved_at = $9,
			actual_delivery = $10, updated_at = $11
		WHERE id = $1`,
		o.ID, string(o.Status), string(o.PaymentStatus),
		o.COD.VendorApproved, o.COD.VendorApprovedBy, o.COD.VendorApprovedAt,
		o.COD.AdminApproved, o.COD.AdminApprovedBy, o.COD.AdminApprovedAt,
		o.ActualDelivery, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, o.ID)
	}
	return nil
}

func (t *pgTx) AppendHistory(ctx context.Context, orderID string, e domain.StatusEntry) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_status_history(order_id, status, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		orderID, string(e.Status), e.Note, e.ActorID, e.At)
	return err
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	ct, err := t.q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return nil
}

// loadProducts reads products with their reservations. With lock set the
// product rows are locked in id order so concurrent transactions queue
// instead of deadlocking.
func loadProducts(ctx context.Context, q querier, ids []string, lock bool) (map[string]*domain.Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	held, err := loadReservations(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for id, p := range out {
		p.Reservations = held[id]
	}
	return out, nil
}

func loadReservations(ctx context.Context, q querier, productIDs []string) (map[string][]domain.Reservation, error) {
	rows, err := q.Query(ctx, `
		SELECT reservation_id, product_id, quantity, holder_id, expires_at, created_at
		FROM reservations WHERE product_id = ANY($1)
		ORDER BY created_at, reservation_id`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]domain.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out[r.ProductID] = append(out[r.ProductID], r)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p                 domain.Product
		price             string
		sellerType, stock string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Unit, &p.Category, &p.SellerID, &sellerType,
		&p.TotalQuantity, &p.LowStockThreshold, &stock, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	p.SellerType = domain.Role(sellerType)
	p.StockStatus = domain.StockStatus(stock)
	return &p, nil
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ReservationID, &r.ProductID, &r.Quantity, &r.Holder, &r.ExpiresAt, &r.CreatedAt)
	return r, err
}

func loadOrder(ctx context.Context, q querier, id string, lock bool) (*domain.Order, error) {
	sql := `SELECT id, buyer_id, delivery_address, payment_method,
			subtotal::text, delivery_fee::text, tax::text, discount::text, total::text,
			status, payment_status,
			vendor_approved, vendor_approved_by, vendor_approved_at,
			admin_approved, admin_approved_by, admin_approved_at,
			estimated_delivery, actual_delivery, created_at, updated_at
		FROM orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}

	var (
		o                                   domain.Order
		addr                                []byte
		method, status, payStatus           string
		subtotal, fee, tax, discount, total string
	)
	err := q.QueryRow(ctx, sql, id).Scan(&o.ID, &o.BuyerID, &addr, &method,
		&subtotal, &fee, &tax, &discount, &total,
		&status, &payStatus,
		&o.COD.VendorApproved, &o.COD.VendorApprovedBy, &o.COD.VendorApprovedAt,
		&o.COD.AdminApproved, &o.COD.AdminApprovedBy, &o.COD.AdminApprovedAt,
		&o.EstimatedDelivery, &o.ActualDelivery, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addr, &o.DeliveryAddress); err != nil {
		return nil, fmt.Errorf("order %s address: %w", id, err)
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(payStatus)
	if o.Summary, err = parseSummary(subtotal, fee, tax, discount, total); err != nil {
		return nil, fmt.Errorf("order %s summary: %w", id, err)
	}

	if o.Items, err = loadItems(ctx, q, id); err != nil {
		return nil, err
	}
	if o.StatusHistory, err = loadHistory(ctx, q, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, name, quantity, unit, unit_price::text, line_total::text, seller_id, seller_type
		FROM order_items WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var (
			it               domain.OrderItem
			price, lineTotal string
			sellerType       string
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.Unit, &price, &lineTotal, &it.SellerID, &sellerType); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if it.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return nil, err
		}
		it.SellerType = domain.Role(sellerType)
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadHistory(ctx context.Context, q querier, orderID string) ([]domain.StatusEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT status, note, actor_id, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StatusEntry
	for rows.Next() {
		var (
			e      domain.StatusEntry
			status string
		)
		if err := rows.Scan(&status, &e.Note, &e.ActorID, &e.At); err != nil {
			return nil, err
		}
		e.Status = domain.OrderStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func parseSummary(subtotal, fee, tax, discount, total string) (domain.Summary, error) {
	var (
		s   domain.Summary
		err error
	)
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&s.Subtotal, subtotal}, {&s.DeliveryFee, fee}, {&s.Tax, tax}, {&s.Discount, discount}, {&s.Total, total},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return s, err
		}
	}
	return s, nil
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
