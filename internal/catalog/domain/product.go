package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxImageSize is the largest product image accepted on upload.
const MaxImageSize = 2 << 20

var (
	ErrProductNotFound = errors.New("catalog: product not found")
	ErrInvalidImage    = errors.New("catalog: image must be jpg, jpeg, png or gif and at most 2 MiB")
)

// maxPrice is the first value that no longer fits NUMERIC(10,2).
var maxPrice = decimal.New(1, 8)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p Product) InStock() bool { return p.Stock > 0 }

// NewProduct is the admin input for a catalog entry.
type NewProduct struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Image       string
}

type InvalidProductError struct {
	Fields []string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("catalog: invalid product fields: %s", strings.Join(e.Fields, ", "))
}

func (p NewProduct) Validate() error {
	var fields []string
	if strings.TrimSpace(p.Name) == "" || len(p.Name) > 100 {
		fields = append(fields, "name")
	}
	if p.Price.IsNegative() || p.Price.GreaterThanOrEqual(maxPrice) || !p.Price.Equal(p.Price.Round(2)) {
		fields = append(fields, "price")
	}
	if p.Stock < 0 {
		fields = append(fields, "stock")
	}
	if len(fields) > 0 {
		return &InvalidProductError{Fields: fields}
	}
	return nil
}

// ValidateImage checks an uploaded file name and size and returns the
// lower-cased extension.
func ValidateImage(filename string, size int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !imageExtensions[ext] || size <= 0 || size > MaxImageSize {
		return "", ErrInvalidImage
	}
	return ext, nil
}
