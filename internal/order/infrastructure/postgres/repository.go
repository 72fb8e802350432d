package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/shopeasy/internal/order/application"
	"github.com/dmehra2102/shopeasy/internal/order/domain"
	platform "github.com/dmehra2102/shopeasy/internal/platform/postgres"
)

const orderColumns = `o.id, o.user_id, o.total, o.shipping, o.payment_method, o.shipping_address, o.status, o.created_at, o.updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ application.Repository = (*Repository)(nil)

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// WithinTx runs fn in a read-committed transaction. Row locks taken with
// FOR UPDATE are held until fn returns.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]domain.Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`, COUNT(oi.id), COALESCE(SUM(oi.quantity), 0)
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = $1
		GROUP BY o.id
		ORDER BY o.created_at DESC, o.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		var s domain.Summary
		var total, shipping pgtype.Numeric
		if err := rows.Scan(&s.ID, &s.UserID, &total, &shipping, &s.PaymentMethod, &s.ShippingAddress, &s.Status,
			&s.CreatedAt, &s.UpdatedAt, &s.ItemCount, &s.TotalUnits); err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		if s.Total, err = platform.Decimal(total); err != nil {
			return nil, err
		}
		if s.Shipping, err = platform.Decimal(shipping); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	if o.Items, err = listItems(ctx, r.pool, orderID); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q querier, orderID int64) ([]domain.Item, error) {
	rows, err := q.Query(ctx, `
		SELECT oi.order_id, oi.product_id, p.name, oi.quantity, oi.price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list items of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		var price pgtype.Numeric
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("list items of order %d: %w", orderID, err)
		}
		if it.Price, err = platform.Decimal(price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var total, shipping pgtype.Numeric
	if err := row.Scan(&o.ID, &o.UserID, &total, &shipping, &o.PaymentMethod, &o.ShippingAddress, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	var err error
	if o.Total, err = platform.Decimal(total); err != nil {
		return domain.Order{}, err
	}
	if o.Shipping, err = platform.Decimal(shipping); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}
