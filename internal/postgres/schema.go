package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent. The products table is owned by the catalog; only the
// stock columns are written here.
const schema = `
CREATE TABLE IF NOT EXISTS products (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	price               NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	unit                TEXT NOT NULL DEFAULT 'kg',
	category            TEXT NOT NULL DEFAULT '',
	seller_id           TEXT NOT NULL,
	seller_type         TEXT NOT NULL,
	total_quantity      INTEGER NOT NULL DEFAULT 0 CHECK (total_quantity >= 0),
	low_stock_threshold INTEGER NOT NULL DEFAULT 10,
	stock_status        TEXT NOT NULL DEFAULT 'out_of_stock',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS products_stock_status_idx ON products (stock_status);

CREATE TABLE IF NOT EXISTS reservations (
	reservation_id TEXT NOT NULL,
	product_id     TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	quantity       INTEGER NOT NULL CHECK (quantity > 0),
	holder_id      TEXT NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (reservation_id, product_id)
);
CREATE INDEX IF NOT EXISTS reservations_product_idx ON reservations (product_id);
CREATE INDEX IF NOT EXISTS reservations_expires_at_idx ON reservations (expires_at);

CREATE TABLE IF NOT EXISTS orders (
	id                 TEXT PRIMARY KEY,
	buyer_id           TEXT NOT NULL,
	delivery_address   JSONB NOT NULL,
	payment_method     TEXT NOT NULL,
	subtotal           NUMERIC(12,2) NOT NULL,
	delivery_fee       NUMERIC(12,2) NOT NULL,
	tax                NUMERIC(12,2) NOT NULL,
	discount           NUMERIC(12,2) NOT NULL,
	total              NUMERIC(12,2) NOT NULL,
	status             TEXT NOT NULL,
	payment_status     TEXT NOT NULL,
	vendor_approved    BOOLEAN NOT NULL DEFAULT false,
	vendor_approved_by TEXT NOT NULL DEFAULT '',
	vendor_approved_at TIMESTAMPTZ,
	admin_approved     BOOLEAN NOT NULL DEFAULT false,
	admin_approved_by  TEXT NOT NULL DEFAULT '',
	admin_approved_at  TIMESTAMPTZ,
	estimated_delivery TIMESTAMPTZ NOT NULL,
	actual_delivery    TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS orders_buyer_idx ON orders (buyer_id);

CREATE TABLE IF NOT EXISTS order_items (
	order_id    TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	line_no     INTEGER NOT NULL,
	product_id  TEXT NOT NULL,
	name        TEXT NOT NULL,
	quantity    INTEGER NOT NULL CHECK (quantity > 0),
	unit        TEXT NOT NULL,
	unit_price  NUMERIC(12,2) NOT NULL,
	line_total  NUMERIC(12,2) NOT NULL,
	seller_id   TEXT NOT NULL,
	seller_type TEXT NOT NULL,
	PRIMARY KEY (order_id, line_no)
);
CREATE INDEX IF NOT EXISTS order_items_seller_idx ON order_items (seller_id);

CREATE TABLE IF NOT EXISTS order_status_history (
	id         BIGSERIAL PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	status     TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	actor_id   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS order_status_history_order_idx ON order_status_history (order_id, id);
`

// Migrate creates the tables when missing.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}
