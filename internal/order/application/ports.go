package application

import (
	"context"

	catalogdom "github.com/dmehra2102/shopeasy/internal/catalog/domain"
	"github.com/dmehra2102/shopeasy/internal/order/domain"
	"github.com/dmehra2102/shopeasy/pkg/outbox"
)

// Tx exposes the persistence primitives available inside one storage
// transaction. Implementations must not be used after the enclosing
// WithinTx callback returns.
type Tx interface {
	// GetProductForUpdate locks the product row until the transaction ends.
	// A missing product yields catalogdom.ErrProductNotFound.
	GetProductForUpdate(ctx context.Context, productID int64) (catalogdom.Product, error)
	// DecrementStock lowers stock only if at least qty is available and
	// returns domain.ErrStockConflict otherwise.
	DecrementStock(ctx context.Context, productID int64, qty int) error
	IncrementStock(ctx context.Context, productID int64, qty int) error
	CreateOrder(ctx context.Context, o domain.Order) (int64, error)
	CreateOrderItems(ctx context.Context, orderID int64, items []domain.Item) error
	// GetOrderForUpdate locks the order row; a missing order yields
	// domain.ErrNotFound.
	GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]domain.Item, error)
	SetOrderStatus(ctx context.Context, orderID int64, status domain.Status) error
	AppendEvent(ctx context.Context, e outbox.Event) error
}

// UnitOfWork runs fn in a transaction that commits if fn returns nil and
// rolls back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type OrderReader interface {
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID int64) ([]domain.Summary, error)
	// Get returns the order with its items and product names.
	Get(ctx context.Context, orderID int64) (domain.Order, error)
}

type Repository interface {
	UnitOfWork
	OrderReader
}
