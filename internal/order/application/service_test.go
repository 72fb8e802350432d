package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdom "github.com/dmehra2102/shopeasy/internal/cart/domain"
	catalogdom "github.com/dmehra2102/shopeasy/internal/catalog/domain"
	"github.com/dmehra2102/shopeasy/internal/order/application"
	"github.com/dmehra2102/shopeasy/internal/order/domain"
	"github.com/dmehra2102/shopeasy/internal/order/infrastructure/memory"
)

var fee = decimal.RequireFromString("10.00")

func setup(t *testing.T, products ...catalogdom.Product) (*application.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	for _, p := range products {
		store.PutProduct(p)
	}
	return application.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store, fee), store
}

func product(id int64, name, price string, stock int) catalogdom.Product {
	return catalogdom.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

func cartWith(t *testing.T, lines ...cartdom.Line) *cartdom.Cart {
	t.Helper()
	c := cartdom.New()
	for _, l := range lines {
		require.NoError(t, c.Add(l.ProductID, l.Quantity))
	}
	return c
}

func request(userID int64) domain.CheckoutRequest {
	return domain.CheckoutRequest{UserID: userID, PaymentMethod: "credit_card", ShippingAddress: "221B Baker Street"}
}

func stock(t *testing.T, s *memory.Store, id int64) int {
	t.Helper()
	p, ok := s.Product(id)
	require.True(t, ok)
	return p.Stock
}

func TestCheckoutPlacesOrder(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "100.00", 5), product(2, "Pad", "50.50", 3))
	c := cartWith(t, cartdom.Line{ProductID: 2, Quantity: 1}, cartdom.Line{ProductID: 1, Quantity: 2})

	id, err := svc.Checkout(context.Background(), c, request(7))
	require.NoError(t, err)

	o, ok := store.Order(id)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, int64(7), o.UserID)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("260.50")), o.Total.String())

	items := store.Items(id)
	require.Len(t, items, 2)
	assert.True(t, domain.Subtotal(items).Add(fee).Equal(o.Total))

	assert.Equal(t, 3, stock(t, store, 1))
	assert.Equal(t, 2, stock(t, store, 2))
	assert.True(t, c.IsEmpty())

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderPlaced, events[0].Type)
	var placed domain.OrderPlaced
	require.NoError(t, json.Unmarshal(events[0].Payload, &placed))
	assert.Equal(t, id, placed.OrderID)
	assert.ElementsMatch(t, []int64{1, 2}, domain.ProductIDs(placed.Items))
}

func TestCheckoutSameProductTwiceMerges(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	c := cartdom.New()
	require.NoError(t, c.Add(1, 1))
	require.NoError(t, c.Add(1, 1))

	id, err := svc.Checkout(context.Background(), c, request(1))
	require.NoError(t, err)

	items := store.Items(id)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 3, stock(t, store, 1))
}

func TestCheckoutValidation(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))

	_, err := svc.Checkout(context.Background(), cartdom.New(), request(1))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"cart"}, verr.Fields)

	c := cartWith(t, cartdom.Line{ProductID: 1, Quantity: 1})
	_, err = svc.Checkout(context.Background(), c, domain.CheckoutRequest{UserID: 1})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"payment_method", "shipping_address"}, verr.Fields)

	assert.Equal(t, 1, c.Len(), "cart untouched")
	assert.Zero(t, store.OrderCount())
}

func TestCheckoutInsufficientStock(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5), product(2, "Laptop", "999.00", 1))
	c := cartWith(t, cartdom.Line{ProductID: 1, Quantity: 2}, cartdom.Line{ProductID: 2, Quantity: 3})

	_, err := svc.Checkout(context.Background(), c, request(1))
	var serr *domain.InsufficientStockError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, domain.InsufficientStockError{ProductID: 2, Name: "Laptop", Available: 1, Requested: 3}, *serr)

	assert.Zero(t, store.OrderCount())
	assert.Equal(t, 5, stock(t, store, 1))
	assert.Equal(t, 1, stock(t, store, 2))
	assert.Equal(t, 2, c.Len())
	assert.Empty(t, store.Events())
}

func TestCheckoutExactStockSucceeds(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 2))
	_, err := svc.Checkout(context.Background(), cartWith(t, cartdom.Line{ProductID: 1, Quantity: 2}), request(1))
	require.NoError(t, err)
	assert.Zero(t, stock(t, store, 1))
}

func TestCheckoutMissingProduct(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	c := cartWith(t, cartdom.Line{ProductID: 1, Quantity: 1}, cartdom.Line{ProductID: 404, Quantity: 1})

	_, err := svc.Checkout(context.Background(), c, request(1))
	var perr *domain.ProductNotFoundError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, int64(404), perr.ProductID)
	assert.Equal(t, 5, stock(t, store, 1))
}

func TestCheckoutRollsBackOnStorageFailure(t *testing.T) {
	for _, op := range []memory.Op{memory.OpCreateOrder, memory.OpCreateItems, memory.OpDecrement, memory.OpAppendEvent} {
		t.Run(string(op), func(t *testing.T) {
			svc, store := setup(t, product(1, "Pen", "10.00", 5), product(2, "Pad", "5.00", 5))
			cause := errors.New("connection reset by peer")
			store.FailOn(op, cause)
			c := cartWith(t, cartdom.Line{ProductID: 1, Quantity: 2}, cartdom.Line{ProductID: 2, Quantity: 1})

			_, err := svc.Checkout(context.Background(), c, request(1))
			var perr *domain.PersistenceError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "checkout", perr.Op)
			assert.ErrorIs(t, err, cause)

			assert.Zero(t, store.OrderCount())
			assert.Equal(t, 5, stock(t, store, 1))
			assert.Equal(t, 5, stock(t, store, 2))
			assert.Empty(t, store.Events())
			assert.Equal(t, 2, c.Len(), "cart kept for retry")
		})
	}
}

func TestCheckoutStockConflictIsInsufficientStock(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	store.FailOn(memory.OpStockConflict, nil)

	_, err := svc.Checkout(context.Background(), cartWith(t, cartdom.Line{ProductID: 1, Quantity: 1}), request(1))
	var serr *domain.InsufficientStockError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 5, serr.Available)
	assert.Zero(t, store.OrderCount())
}

func TestCheckoutCancelledContext(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Checkout(ctx, cartWith(t, cartdom.Line{ProductID: 1, Quantity: 1}), request(1))
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.OrderCount())
}

func TestCheckoutPriceIsFrozen(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	id, err := svc.Checkout(context.Background(), cartWith(t, cartdom.Line{ProductID: 1, Quantity: 1}), request(1))
	require.NoError(t, err)

	store.PutProduct(product(1, "Pen", "99.00", 4))

	o, err := svc.GetForUser(context.Background(), id, 1)
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].Price.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, "Pen", o.Items[0].ProductName)
}

func TestConcurrentCheckoutOfLastUnit(t *testing.T) {
	svc, store := setup(t, product(1, "Laptop", "999.00", 1))

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			c := cartdom.New()
			_ = c.Add(1, 1)
			_, err := svc.Checkout(context.Background(), c, request(user))

			mu.Lock()
			defer mu.Unlock()
			var serr *domain.InsufficientStockError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &serr):
				shortages++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, buyers-1, shortages)
	assert.Zero(t, stock(t, store, 1))
	assert.Equal(t, 1, store.OrderCount())
}

func placeOrder(t *testing.T, svc *application.Service, userID int64, lines ...cartdom.Line) int64 {
	t.Helper()
	id, err := svc.Checkout(context.Background(), cartWith(t, lines...), request(userID))
	require.NoError(t, err)
	return id
}

func TestCancelRestoresStock(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5), product(2, "Pad", "5.00", 5))
	id := placeOrder(t, svc, 1, cartdom.Line{ProductID: 1, Quantity: 2}, cartdom.Line{ProductID: 2, Quantity: 3})

	require.NoError(t, svc.Cancel(context.Background(), id, 1))

	o, _ := store.Order(id)
	assert.Equal(t, domain.StatusCancelled, o.Status)
	assert.Equal(t, 5, stock(t, store, 1))
	assert.Equal(t, 5, stock(t, store, 2))

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventOrderCancelled, events[1].Type)
}

func TestCancelTwiceFailsWithoutDoubleRestore(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	id := placeOrder(t, svc, 1, cartdom.Line{ProductID: 1, Quantity: 2})
	require.NoError(t, svc.Cancel(context.Background(), id, 1))

	err := svc.Cancel(context.Background(), id, 1)
	var serr *domain.InvalidStateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, domain.StatusCancelled, serr.From)
	assert.Equal(t, 5, stock(t, store, 1))
}

func TestCancelOwnership(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	id := placeOrder(t, svc, 1, cartdom.Line{ProductID: 1, Quantity: 1})

	assert.ErrorIs(t, svc.Cancel(context.Background(), id, 2), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Cancel(context.Background(), 999, 1), domain.ErrNotFound)

	o, _ := store.Order(id)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, 4, stock(t, store, 1))
}

func TestCancelRollsBackOnStorageFailure(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	id := placeOrder(t, svc, 1, cartdom.Line{ProductID: 1, Quantity: 2})
	store.FailOn(memory.OpSetStatus, errors.New("deadlock detected"))

	err := svc.Cancel(context.Background(), id, 1)
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)

	o, _ := store.Order(id)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, 3, stock(t, store, 1))
}

func TestCancelFailingMidRestorationChangesNothing(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5), product(2, "Pad", "4.00", 5))
	id := placeOrder(t, svc, 1, cartdom.Line{ProductID: 1, Quantity: 2}, cartdom.Line{ProductID: 2, Quantity: 3})
	eventsBefore := len(store.Events())
	store.FailOnCall(memory.OpIncrement, 2, errors.New("connection reset"))

	err := svc.Cancel(context.Background(), id, 1)
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)

	o, _ := store.Order(id)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, 3, stock(t, store, 1), "first restoration is rolled back")
	assert.Equal(t, 2, stock(t, store, 2))
	assert.Len(t, store.Events(), eventsBefore)

	require.NoError(t, svc.Cancel(context.Background(), id, 1))
	assert.Equal(t, 5, stock(t, store, 1))
	assert.Equal(t, 5, stock(t, store, 2))
}

func TestInvoiceKeepsShippingChargedAtCheckout(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	id := placeOrder(t, svc, 1, cartdom.Line{ProductID: 1, Quantity: 1})

	repriced := application.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store, decimal.RequireFromString("4.99"))
	inv, err := repriced.Invoice(context.Background(), id, 1)
	require.NoError(t, err)
	assert.True(t, inv.Shipping.Equal(fee))
	assert.True(t, inv.GrandTotal.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, inv.Consistent)
}

func TestShipAndComplete(t *testing.T) {
	svc, store := setup(t, product(1, "Pen", "10.00", 5))
	id := placeOrder(t, svc, 1, cartdom.Line{ProductID: 1, Quantity: 1})

	var serr *domain.InvalidStateError
	require.ErrorAs(t, svc.Complete(context.Background(), id), &serr)

	require.NoError(t, svc.Ship(context.Background(), id))
	require.ErrorAs(t, svc.Cancel(context.Background(), id, 1), &serr)
	assert.Equal(t, domain.StatusShipped, serr.From)

	require.NoError(t, svc.Complete(context.Background(), id))
	o, _ := store.Order(id)
	assert.Equal(t, domain.StatusCompleted, o.Status)
	assert.Equal(t, 4, stock(t, store, 1), "stock is not restored by lifecycle moves")

	require.ErrorAs(t, svc.Ship(context.Background(), id), &serr)
	assert.ErrorIs(t, svc.Ship(context.Background(), 999), domain.ErrNotFound)

	types := []string{}
	for _, e := range store.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{domain.EventOrderPlaced, domain.EventOrderShipped, domain.EventOrderCompleted}, types)
}

func TestQueries(t *testing.T) {
	svc, _ := setup(t, product(1, "Pen", "10.00", 50), product(2, "Pad", "5.00", 50))
	first := placeOrder(t, svc, 1, cartdom.Line{ProductID: 1, Quantity: 2}, cartdom.Line{ProductID: 2, Quantity: 3})
	second := placeOrder(t, svc, 1, cartdom.Line{ProductID: 2, Quantity: 1})
	placeOrder(t, svc, 2, cartdom.Line{ProductID: 1, Quantity: 1})

	list, err := svc.ListForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
	assert.Equal(t, 2, list[1].ItemCount)
	assert.Equal(t, 5, list[1].TotalUnits)

	_, err = svc.GetForUser(context.Background(), first, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	inv, err := svc.Invoice(context.Background(), first, 1)
	require.NoError(t, err)
	assert.True(t, inv.Consistent)
	assert.True(t, inv.GrandTotal.Equal(decimal.RequireFromString("45.00")))
	assert.Len(t, inv.Lines, 2)

	_, err = svc.Invoice(context.Background(), first, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
