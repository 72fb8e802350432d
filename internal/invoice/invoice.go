// Package invoice renders a read-only invoice view of a persisted order.
package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	orderdom "github.com/dmehra2102/shopeasy/internal/order/domain"
)

const notSpecified = "Not specified"

// Delivery is estimated between these many weekdays after the order date.
const (
	MinDeliveryDays = 3
	MaxDeliveryDays = 7
)

type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Invoice struct {
	Number          string          `json:"number"`
	TrackingNumber  string          `json:"tracking_number"`
	OrderID         int64           `json:"order_id"`
	OrderDate       time.Time       `json:"order_date"`
	IssuedAt        time.Time       `json:"issued_at"`
	Status          orderdom.Status `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingAddress string          `json:"shipping_address"`
	Lines           []Line          `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	// StoredTotal is the total persisted at checkout. Consistent reports
	// whether it matches GrandTotal recomputed from the stored item prices.
	StoredTotal      decimal.Decimal `json:"stored_total"`
	Consistent       bool            `json:"consistent"`
	DeliveryEarliest time.Time       `json:"delivery_earliest"`
	DeliveryLatest   time.Time       `json:"delivery_latest"`
}

// Render builds the invoice from the prices and shipping fee stored with
// the order.
func Render(o orderdom.Order, now time.Time) Invoice {
	lines := make([]Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, Line{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
			LineTotal: it.LineTotal(),
		})
	}
	subtotal := orderdom.Subtotal(o.Items)
	grand := subtotal.Add(o.Shipping)

	return Invoice{
		Number:           Number(o.ID),
		TrackingNumber:   TrackingNumber(o.ID),
		OrderID:          o.ID,
		OrderDate:        o.CreatedAt,
		IssuedAt:         now,
		Status:           o.Status,
		PaymentMethod:    orDefault(o.PaymentMethod),
		ShippingAddress:  orDefault(o.ShippingAddress),
		Lines:            lines,
		Subtotal:         subtotal,
		Shipping:         o.Shipping,
		GrandTotal:       grand,
		StoredTotal:      o.Total,
		Consistent:       grand.Equal(o.Total),
		DeliveryEarliest: AddWeekdays(o.CreatedAt, MinDeliveryDays),
		DeliveryLatest:   AddWeekdays(o.CreatedAt, MaxDeliveryDays),
	}
}

// Number formats an order id as a zero-padded invoice number, e.g. #000123.
func Number(orderID int64) string { return fmt.Sprintf("#%06d", orderID) }

func TrackingNumber(orderID int64) string { return fmt.Sprintf("TRK%08dESE", orderID) }

// AddWeekdays returns t moved forward by n weekdays, skipping Saturdays
// and Sundays.
func AddWeekdays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}

func orDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSpecified
	}
	return s
}
