// Package domain holds the shopping cart: an ordered map of product id to
// a positive quantity. It performs no stock checks; checkout does.
package domain

import (
	"encoding/json"
	"errors"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	// ErrConflict means concurrent writers kept changing the stored cart.
	ErrConflict = errors.New("cart: concurrent update conflict")
)

type Line struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Cart is not safe for concurrent use. The zero value is an empty cart.
type Cart struct {
	lines []Line
}

func New() *Cart { return &Cart{} }

// Add increases the quantity of productID by delta, creating the line at
// delta if it is absent.
func (c *Cart) Add(productID int64, delta int) error {
	if delta <= 0 {
		return ErrInvalidQuantity
	}
	if i := c.index(productID); i >= 0 {
		c.lines[i].Quantity += delta
		return nil
	}
	c.lines = append(c.lines, Line{ProductID: productID, Quantity: delta})
	return nil
}

// SetQuantity overwrites the quantity of productID. qty <= 0 removes the
// line; setting a product not in the cart appends it.
func (c *Cart) SetQuantity(productID int64, qty int) {
	if qty <= 0 {
		c.Remove(productID)
		return
	}
	if i := c.index(productID); i >= 0 {
		c.lines[i].Quantity = qty
		return
	}
	c.lines = append(c.lines, Line{ProductID: productID, Quantity: qty})
}

func (c *Cart) Remove(productID int64) {
	if i := c.index(productID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

func (c *Cart) Clear() { c.lines = nil }

// Snapshot returns a copy of the lines in insertion order.
func (c *Cart) Snapshot() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

func (c *Cart) Quantity(productID int64) int {
	if i := c.index(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

// Units is the sum of all quantities.
func (c *Cart) Units() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) index(productID int64) int {
	for i, l := range c.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// UnmarshalJSON restores a cart, dropping non-positive lines and merging
// duplicates so a tampered payload cannot break the invariants.
func (c *Cart) UnmarshalJSON(b []byte) error {
	var lines []Line
	if err := json.Unmarshal(b, &lines); err != nil {
		return err
	}
	c.lines = nil
	for _, l := range lines {
		if l.Quantity > 0 {
			_ = c.Add(l.ProductID, l.Quantity)
		}
	}
	return nil
}
