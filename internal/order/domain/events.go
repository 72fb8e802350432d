package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const AggregateType = "order"

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCancelled = "OrderCancelled"
	EventOrderShipped   = "OrderShipped"
	EventOrderCompleted = "OrderCompleted"
)

type EventItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlaced struct {
	OrderID  int64           `json:"order_id"`
	UserID   int64           `json:"user_id"`
	Total    decimal.Decimal `json:"total"`
	Items    []EventItem     `json:"items"`
	PlacedAt time.Time       `json:"placed_at"`
}

// OrderCancelled lists the quantities returned to stock.
type OrderCancelled struct {
	OrderID     int64       `json:"order_id"`
	UserID      int64       `json:"user_id"`
	Items       []EventItem `json:"items"`
	CancelledAt time.Time   `json:"cancelled_at"`
}

// OrderStatusChanged is the payload of OrderShipped and OrderCompleted.
type OrderStatusChanged struct {
	OrderID   int64     `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// ProductIDs returns the products an event touches, if any.
func ProductIDs(items []EventItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func NewOrderPlaced(o Order, items []Item) OrderPlaced {
	return OrderPlaced{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Total:    o.Total,
		Items:    eventItems(items),
		PlacedAt: o.CreatedAt,
	}
}

func NewOrderCancelled(o Order, items []Item, at time.Time) OrderCancelled {
	return OrderCancelled{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Items:       eventItems(items),
		CancelledAt: at,
	}
}

func eventItems(items []Item) []EventItem {
	out := make([]EventItem, 0, len(items))
	for _, it := range items {
		out = append(out, EventItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return out
}
