package application

import (
	"context"
	"io"

	"github.com/dmehra2102/shopeasy/internal/catalog/domain"
)

type Repository interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (domain.Product, error)
	Create(ctx context.Context, p domain.NewProduct) (domain.Product, error)
	Delete(ctx context.Context, id int64) (domain.Product, error)
}

// Cache is a read-through cache of catalog reads. A miss is reported with
// ok == false and a nil error.
type Cache interface {
	Products(ctx context.Context) (products []domain.Product, ok bool, err error)
	SetProducts(ctx context.Context, products []domain.Product) error
	Product(ctx context.Context, id int64) (p domain.Product, ok bool, err error)
	SetProduct(ctx context.Context, p domain.Product) error
	Invalidate(ctx context.Context, ids ...int64) error
}

type ImageStore interface {
	// Save stores the image and returns the name it was stored under.
	Save(ctx context.Context, filename string, body io.Reader) (string, error)
	Remove(ctx context.Context, name string) error
}

// Upload is an image attached to a product create request.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}
