package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	catalogdom "github.com/dmehra2102/shopeasy/internal/catalog/domain"
	"github.com/dmehra2102/shopeasy/internal/order/domain"
	platform "github.com/dmehra2102/shopeasy/internal/platform/postgres"
	"github.com/dmehra2102/shopeasy/pkg/outbox"
)

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) GetProductForUpdate(ctx context.Context, productID int64) (catalogdom.Product, error) {
	var (
		p     catalogdom.Product
		price pgtype.Numeric
	)
	err := s.tx.QueryRow(ctx, `
		SELECT id, name, description, price, stock, image, created_at
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Image, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalogdom.Product{}, catalogdom.ErrProductNotFound
	}
	if err != nil {
		return catalogdom.Product{}, fmt.Errorf("lock product %d: %w", productID, err)
	}
	if p.Price, err = platform.Decimal(price); err != nil {
		return catalogdom.Product{}, err
	}
	return p, nil
}

func (s *txStore) DecrementStock(ctx context.Context, productID int64, qty int) error {
	ct, err := s.tx.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock of %d: %w", productID, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrStockConflict
	}
	return nil
}

// IncrementStock is a no-op for products deleted since the order was
// placed; their order items are gone with them.
func (s *txStore) IncrementStock(ctx context.Context, productID int64, qty int) error {
	if _, err := s.tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, productID, qty); err != nil {
		return fmt.Errorf("increment stock of %d: %w", productID, err)
	}
	return nil
}

func (s *txStore) CreateOrder(ctx context.Context, o domain.Order) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, total, shipping, payment_method, shipping_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, o.UserID, platform.Numeric(o.Total), platform.Numeric(o.Shipping), o.PaymentMethod, o.ShippingAddress, o.Status, o.CreatedAt, o.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

func (s *txStore) CreateOrderItems(ctx context.Context, orderID int64, items []domain.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4)`,
			orderID, it.ProductID, it.Quantity, platform.Numeric(it.Price))
	}
	if err := s.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (s *txStore) GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error) {
	o, err := scanOrder(s.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	return o, nil
}

func (s *txStore) ListOrderItems(ctx context.Context, orderID int64) ([]domain.Item, error) {
	return listItems(ctx, s.tx, orderID)
}

func (s *txStore) SetOrderStatus(ctx context.Context, orderID int64, status domain.Status) error {
	ct, err := s.tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("set status of order %d: %w", orderID, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *txStore) AppendEvent(ctx context.Context, e outbox.Event) error {
	_, err := s.tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.AggregateType, e.AggregateID, e.Type, e.Payload, e.Headers, e.Traceparent, outbox.StatusPending)
	if err != nil {
		return fmt.Errorf("append outbox event %s: %w", e.Type, err)
	}
	return nil
}
