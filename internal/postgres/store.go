package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	defaultBackoff     = 25 * time.Millisecond
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on Postgres. Transactions run at
// SERIALIZABLE and are retried on serialization failures and deadlocks.
type Store struct {
	DB          *pgxpool.Pool
	MaxAttempts int
	Backoff     time.Duration
	Log         *zap.Logger
}

var _ domain.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if s.Log != nil {
			s.Log.Debug("retrying transaction", zap.Int("attempt", attempt), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << (attempt - 1)):
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", domain.ErrTransientStoreConflict, attempts, err)
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isRetryable reports serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	ps, err := loadProducts(ctx, s.DB, []string{id}, false)
	if err != nil {
		return nil, err
	}
	p, ok := ps[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) ListStockAlerts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE stock_status IN ('low_stock', 'out_of_stock')
		ORDER BY total_quantity, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []domain.Product
		ids []string
	)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	held, err := loadReservations(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Reservations = held[out[i].ID]
	}
	return out, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return loadOrder(ctx, s.DB, id, false)
}
