package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	cartdom "github.com/dmehra2102/shopeasy/internal/cart/domain"
	"github.com/dmehra2102/shopeasy/internal/order/application"
	"github.com/dmehra2102/shopeasy/internal/order/domain"
	"github.com/dmehra2102/shopeasy/internal/platform/httpx"
	"github.com/dmehra2102/shopeasy/internal/session"
)

const IdempotencyHeader = "Idempotency-Key"

// CartStore hands a session's cart to exactly one checkout at a time.
type CartStore interface {
	Take(ctx context.Context, sessionID string) (*cartdom.Cart, error)
	Restore(ctx context.Context, sessionID string, c *cartdom.Cart) error
}

type Idempotency interface {
	RequestKey(scope, key string) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Handler struct {
	log     *slog.Logger
	service *application.Service
	carts   CartStore
	idem    Idempotency
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, carts CartStore, idem Idempotency) *Handler {
	return &Handler{
		log:     log,
		service: service,
		carts:   carts,
		idem:    idem,
		tracer:  otel.Tracer("order-http"),
	}
}

// Routes serves the customer's orders. It expects session.RequireUser in
// front of it.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.listOrders)
	r.Get("/{id}", h.getOrder)
	r.Post("/{id}/cancel", h.cancelOrder)
	r.Get("/{id}/invoice", h.getInvoice)
	return r
}

// AdminRoutes serves fulfilment transitions. Callers must enforce the
// admin role.
func (h *Handler) AdminRoutes() http.Handler {
	r := chi.NewRouter()
	r.Post("/{id}/ship", h.shipOrder)
	r.Post("/{id}/complete", h.completeOrder)
	return r
}

type checkoutReq struct {
	PaymentMethod   string `json:"payment_method"`
	ShippingAddress string `json:"shipping_address"`
}

// Checkout places an order from the session's cart. A repeated
// Idempotency-Key within the key's ttl is rejected with 409 instead of
// placing a second order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Checkout")
	defer span.End()

	sess, _ := session.FromContext(ctx)
	var req checkoutReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	var idemKey string
	if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" {
		idemKey = h.idem.RequestKey(sess.ID, key)
		seen, err := h.idem.Seen(ctx, idemKey)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if seen {
			httpx.WriteError(w, http.StatusConflict, "duplicate_request", "this checkout was already submitted", nil)
			return
		}
	}

	orderID, err := h.checkout(ctx, sess, req)
	if err != nil {
		if idemKey != "" {
			// Let the client retry a failed attempt with the same key.
			if ferr := h.idem.Forget(context.WithoutCancel(ctx), idemKey); ferr != nil {
				h.log.WarnContext(ctx, "idempotency key release failed", "err", ferr)
			}
		}
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/orders/"+strconv.FormatInt(orderID, 10))
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"order_id": orderID, "status": domain.StatusPending})
}

func (h *Handler) checkout(ctx context.Context, sess session.Session, req checkoutReq) (int64, error) {
	c, err := h.carts.Take(ctx, sess.ID)
	if err != nil {
		return 0, err
	}
	orderID, err := h.service.Checkout(ctx, c, domain.CheckoutRequest{
		UserID:          sess.UserID,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		// The cart is untouched when checkout fails; hand it back.
		if rerr := h.carts.Restore(context.WithoutCancel(ctx), sess.ID, c); rerr != nil {
			h.log.ErrorContext(ctx, "restoring cart after failed checkout", "err", rerr)
		}
		return 0, err
	}
	return orderID, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	sess, _ := session.FromContext(ctx)
	orders, err := h.service.ListForUser(ctx, sess.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Summary{}
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	sess, _ := session.FromContext(ctx)
	o, err := h.service.GetForUser(ctx, id, sess.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	sess, _ := session.FromContext(ctx)
	if err := h.service.Cancel(ctx, id, sess.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": domain.StatusCancelled})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetInvoice")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	sess, _ := session.FromContext(ctx)
	inv, err := h.service.Invoice(ctx, id, sess.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !inv.Consistent {
		h.log.WarnContext(ctx, "invoice total mismatch", "order_id", id, "stored", inv.StoredTotal, "recomputed", inv.GrandTotal)
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) shipOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.StatusShipped, h.service.Ship)
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.StatusCompleted, h.service.Complete)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to domain.Status, fn func(context.Context, int64) error) {
	ctx, span := h.tracer.Start(r.Context(), "TransitionOrder")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := fn(ctx, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": to})
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_id", "order id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

type stockDetails struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		missing    *domain.ProductNotFoundError
		stock      *domain.InsufficientStockError
		state      *domain.InvalidStateError
	)
	switch {
	case errors.As(err, &validation):
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"fields": validation.Fields})
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "order not found", nil)
	case errors.As(err, &missing):
		httpx.WriteError(w, http.StatusNotFound, "product_not_found", err.Error(), map[string]any{"product_id": missing.ProductID})
	case errors.As(err, &stock):
		httpx.WriteError(w, http.StatusConflict, "insufficient_stock", err.Error(), stockDetails{
			ProductID: stock.ProductID,
			Name:      stock.Name,
			Available: stock.Available,
			Requested: stock.Requested,
		})
	case errors.Is(err, cartdom.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "cart_busy", "cart is being changed, try again", nil)
	case errors.As(err, &state):
		httpx.WriteError(w, http.StatusConflict, "invalid_state", err.Error(), map[string]any{"from": state.From, "to": state.To})
	default:
		h.log.ErrorContext(r.Context(), "order request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "something went wrong", nil)
	}
}
