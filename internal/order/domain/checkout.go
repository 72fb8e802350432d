package domain

import (
	"sort"
	"strings"

	cartdom "github.com/dmehra2102/shopeasy/internal/cart/domain"
)

type CheckoutRequest struct {
	UserID          int64
	PaymentMethod   string
	ShippingAddress string
}

// ValidatedCheckout is a checkout request that passed Validate. Lines are
// sorted by product id so row locks are always taken in the same order.
type ValidatedCheckout struct {
	UserID          int64
	PaymentMethod   string
	ShippingAddress string
	Lines           []cartdom.Line
}

func Validate(req CheckoutRequest, lines []cartdom.Line) (ValidatedCheckout, error) {
	vc := ValidatedCheckout{
		UserID:          req.UserID,
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
	}

	var fields []string
	if vc.UserID <= 0 {
		fields = append(fields, "user_id")
	}
	if vc.PaymentMethod == "" || len(vc.PaymentMethod) > 50 {
		fields = append(fields, "payment_method")
	}
	if vc.ShippingAddress == "" {
		fields = append(fields, "shipping_address")
	}
	if !validLines(lines) {
		fields = append(fields, "cart")
	}
	if len(fields) > 0 {
		return ValidatedCheckout{}, &ValidationError{Fields: fields}
	}

	vc.Lines = append([]cartdom.Line(nil), lines...)
	sort.Slice(vc.Lines, func(i, j int) bool { return vc.Lines[i].ProductID < vc.Lines[j].ProductID })
	return vc, nil
}

func validLines(lines []cartdom.Line) bool {
	if len(lines) == 0 {
		return false
	}
	seen := make(map[int64]bool, len(lines))
	for _, l := range lines {
		if l.ProductID <= 0 || l.Quantity <= 0 || seen[l.ProductID] {
			return false
		}
		seen[l.ProductID] = true
	}
	return true
}
