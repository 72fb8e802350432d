package application

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cartdom "github.com/dmehra2102/shopeasy/internal/cart/domain"
	catalogdom "github.com/dmehra2102/shopeasy/internal/catalog/domain"
	"github.com/dmehra2102/shopeasy/internal/invoice"
	"github.com/dmehra2102/shopeasy/internal/order/domain"
	"github.com/dmehra2102/shopeasy/pkg/outbox"
)

type Service struct {
	log         *slog.Logger
	repo        Repository
	shippingFee decimal.Decimal
	now         func() time.Time
	tracer      trace.Tracer
}

func NewService(log *slog.Logger, repo Repository, shippingFee decimal.Decimal) *Service {
	return &Service{
		log:         log,
		repo:        repo,
		shippingFee: shippingFee,
		now:         func() time.Time { return time.Now().UTC() },
		tracer:      otel.Tracer("order-service"),
	}
}

func (s *Service) ShippingFee() decimal.Decimal { return s.shippingFee }

// Checkout turns the cart into a pending order. Product rows are locked,
// stock is checked and decremented, the order and its items are written
// and an OrderPlaced event is queued, all in one transaction. The cart is
// cleared only after a successful commit.
func (s *Service) Checkout(ctx context.Context, c *cartdom.Cart, req domain.CheckoutRequest) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout", trace.WithAttributes(attribute.Int64("user.id", req.UserID)))
	defer span.End()

	vc, err := domain.Validate(req, c.Snapshot())
	if err != nil {
		return 0, err
	}

	var orderID int64
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		items := make([]domain.Item, 0, len(vc.Lines))
		available := make(map[int64]int, len(vc.Lines))
		for _, line := range vc.Lines {
			p, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if errors.Is(err, catalogdom.ErrProductNotFound) {
				return &domain.ProductNotFoundError{ProductID: line.ProductID}
			}
			if err != nil {
				return err
			}
			if line.Quantity > p.Stock {
				return &domain.InsufficientStockError{
					ProductID: p.ID,
					Name:      p.Name,
					Available: p.Stock,
					Requested: line.Quantity,
				}
			}
			available[p.ID] = p.Stock
			items = append(items, domain.Item{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				Price:       p.Price,
			})
		}

		o := domain.NewOrder(vc.UserID, domain.Subtotal(items), s.shippingFee, vc.PaymentMethod, vc.ShippingAddress)
		id, err := tx.CreateOrder(ctx, o)
		if err != nil {
			return err
		}
		o.ID = id
		for i := range items {
			items[i].OrderID = id
		}
		if err := tx.CreateOrderItems(ctx, id, items); err != nil {
			return err
		}

		for _, it := range items {
			err := tx.DecrementStock(ctx, it.ProductID, it.Quantity)
			if errors.Is(err, domain.ErrStockConflict) {
				return &domain.InsufficientStockError{
					ProductID: it.ProductID,
					Name:      it.ProductName,
					Available: available[it.ProductID],
					Requested: it.Quantity,
				}
			}
			if err != nil {
				return err
			}
		}

		ev, err := outbox.NewEvent(ctx, domain.AggregateType, strconv.FormatInt(id, 10), domain.EventOrderPlaced, domain.NewOrderPlaced(o, items))
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		orderID = id
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, domain.AsPersistence("checkout", err)
	}

	c.Clear()
	span.SetAttributes(attribute.Int64("order.id", orderID))
	s.log.InfoContext(ctx, "order placed", "order_id", orderID, "user_id", vc.UserID, "lines", len(vc.Lines))
	return orderID, nil
}

// Cancel moves a pending order owned by userID to cancelled and returns
// every item's quantity to stock.
func (s *Service) Cancel(ctx context.Context, orderID, userID int64) error {
	ctx, span := s.tracer.Start(ctx, "order.Cancel", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return domain.ErrNotFound
		}
		if !o.Status.CanTransitionTo(domain.StatusCancelled) {
			return &domain.InvalidStateError{OrderID: orderID, From: o.Status, To: domain.StatusCancelled}
		}

		items, err := tx.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if err := tx.SetOrderStatus(ctx, orderID, domain.StatusCancelled); err != nil {
			return err
		}

		ev, err := outbox.NewEvent(ctx, domain.AggregateType, strconv.FormatInt(orderID, 10), domain.EventOrderCancelled, domain.NewOrderCancelled(o, items, s.now()))
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.AsPersistence("cancel", err)
	}
	s.log.InfoContext(ctx, "order cancelled", "order_id", orderID, "user_id", userID)
	return nil
}

// Ship marks a pending order as shipped.
func (s *Service) Ship(ctx context.Context, orderID int64) error {
	return s.transition(ctx, orderID, domain.StatusShipped, domain.EventOrderShipped)
}

// Complete marks a shipped order as completed.
func (s *Service) Complete(ctx context.Context, orderID int64) error {
	return s.transition(ctx, orderID, domain.StatusCompleted, domain.EventOrderCompleted)
}

func (s *Service) transition(ctx context.Context, orderID int64, to domain.Status, eventType string) error {
	ctx, span := s.tracer.Start(ctx, "order.Transition", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.status", string(to)),
	))
	defer span.End()

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(to) {
			return &domain.InvalidStateError{OrderID: orderID, From: o.Status, To: to}
		}
		if err := tx.SetOrderStatus(ctx, orderID, to); err != nil {
			return err
		}
		ev, err := outbox.NewEvent(ctx, domain.AggregateType, strconv.FormatInt(orderID, 10), eventType, domain.OrderStatusChanged{
			OrderID:   orderID,
			From:      o.Status,
			To:        to,
			ChangedAt: s.now(),
		})
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.AsPersistence(string(to), err)
	}
	s.log.InfoContext(ctx, "order status changed", "order_id", orderID, "status", to)
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]domain.Summary, error) {
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.AsPersistence("list orders", err)
	}
	return orders, nil
}

// GetForUser returns the order with its items if userID owns it.
func (s *Service) GetForUser(ctx context.Context, orderID, userID int64) (domain.Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, domain.AsPersistence("get order", err)
	}
	if o.UserID != userID {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *Service) Invoice(ctx context.Context, orderID, userID int64) (invoice.Invoice, error) {
	o, err := s.GetForUser(ctx, orderID, userID)
	if err != nil {
		return invoice.Invoice{}, err
	}
	return invoice.Render(o, s.now()), nil
}
