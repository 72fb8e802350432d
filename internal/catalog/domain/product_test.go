package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductValidate(t *testing.T) {
	ok := NewProduct{Name: "Laptop", Price: decimal.RequireFromString("82999.00"), Stock: 10}
	require.NoError(t, ok.Validate())

	bad := NewProduct{Name: "  ", Price: decimal.RequireFromString("-1"), Stock: -2}
	err := bad.Validate()
	var target *InvalidProductError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, []string{"name", "price", "stock"}, target.Fields)

	fractional := NewProduct{Name: "Pen", Price: decimal.RequireFromString("1.005")}
	require.ErrorAs(t, fractional.Validate(), &target)
	assert.Equal(t, []string{"price"}, target.Fields)
}

func TestValidateImage(t *testing.T) {
	ext, err := ValidateImage("Photo.JPG", 1024)
	require.NoError(t, err)
	assert.Equal(t, ".jpg", ext)

	for _, tc := range []struct {
		name string
		size int64
	}{
		{"doc.pdf", 10},
		{"big.png", MaxImageSize + 1},
		{"empty.gif", 0},
		{"noext", 10},
	} {
		_, err := ValidateImage(tc.name, tc.size)
		assert.ErrorIs(t, err, ErrInvalidImage, tc.name)
	}
}
