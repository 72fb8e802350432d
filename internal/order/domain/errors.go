package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound covers both missing orders and orders owned by someone
	// else, so callers cannot probe for other users' order ids.
	ErrNotFound = errors.New("order: not found")

	// ErrStockConflict is returned by a conditional stock decrement that
	// matched no row.
	ErrStockConflict = errors.New("order: stock changed concurrently")
)

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "order: missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("order: product %d not found", e.ProductID)
}

type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("order: insufficient stock for %q (id %d): available %d, requested %d",
		e.Name, e.ProductID, e.Available, e.Requested)
}

type InvalidStateError struct {
	OrderID int64
	From    Status
	To      Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order: %d cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// PersistenceError wraps a storage failure (connection loss, timeout,
// constraint violation) that aborted an operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("order: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AsPersistence returns err unchanged when it is one of the domain errors
// above and wraps it in a PersistenceError otherwise.
func AsPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		validation *ValidationError
		missing    *ProductNotFoundError
		stock      *InsufficientStockError
		state      *InvalidStateError
		persist    *PersistenceError
	)
	switch {
	case errors.Is(err, ErrNotFound),
		errors.As(err, &validation),
		errors.As(err, &missing),
		errors.As(err, &stock),
		errors.As(err, &state),
		errors.As(err, &persist):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
