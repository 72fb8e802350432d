package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/shopeasy/internal/cart/domain"
	catalogdom "github.com/dmehra2102/shopeasy/internal/catalog/domain"
	"github.com/dmehra2102/shopeasy/internal/platform/httpx"
	"github.com/dmehra2102/shopeasy/internal/session"
)

type Store interface {
	Load(ctx context.Context, sessionID string) (*domain.Cart, error)
	Update(ctx context.Context, sessionID string, fn func(c *domain.Cart) error) (*domain.Cart, error)
	Delete(ctx context.Context, sessionID string) error
}

type Products interface {
	Get(ctx context.Context, id int64) (catalogdom.Product, error)
}

type Handler struct {
	log         *slog.Logger
	store       Store
	products    Products
	shippingFee decimal.Decimal
	tracer      trace.Tracer
}

func NewHandler(log *slog.Logger, store Store, products Products, shippingFee decimal.Decimal) *Handler {
	return &Handler{
		log:         log,
		store:       store,
		products:    products,
		shippingFee: shippingFee,
		tracer:      otel.Tracer("cart-http"),
	}
}

// Routes expects session.RequireUser in front of it.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.view)
	r.Delete("/", h.clear)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.setQuantity)
	r.Delete("/items/{productID}", h.removeItem)
	return r
}

type lineView struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Image     string          `json:"image,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	Stock     int             `json:"stock"`
	// Available is false when the product left the catalog after it was
	// added; checkout will reject such a cart.
	Available bool `json:"available"`
}

type cartView struct {
	Lines    []lineView      `json:"lines"`
	Units    int             `json:"units"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

func (h *Handler) render(ctx context.Context, c *domain.Cart) (cartView, error) {
	v := cartView{Lines: []lineView{}, Units: c.Units(), Subtotal: decimal.Zero}
	for _, l := range c.Snapshot() {
		lv := lineView{ProductID: l.ProductID, Quantity: l.Quantity}
		p, err := h.products.Get(ctx, l.ProductID)
		switch {
		case errors.Is(err, catalogdom.ErrProductNotFound):
			// left in the cart, flagged unavailable
		case err != nil:
			return cartView{}, err
		default:
			lv.Name, lv.Image, lv.Stock, lv.Available = p.Name, p.Image, p.Stock, true
			lv.UnitPrice = p.Price
			lv.LineTotal = p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			v.Subtotal = v.Subtotal.Add(lv.LineTotal)
		}
		v.Lines = append(v.Lines, lv)
	}
	if !c.IsEmpty() {
		v.Shipping = h.shippingFee
	}
	v.Total = v.Subtotal.Add(v.Shipping)
	return v, nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, c *domain.Cart) {
	v, err := h.render(r.Context(), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ViewCart")
	defer span.End()

	sess, _ := session.FromContext(ctx)
	c, err := h.store.Load(ctx, sess.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r.WithContext(ctx), c)
}

type addItemReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddToCart")
	defer span.End()

	var req addItemReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if _, err := h.products.Get(ctx, req.ProductID); err != nil {
		h.writeError(w, r, err)
		return
	}

	sess, _ := session.FromContext(ctx)
	c, err := h.store.Update(ctx, sess.ID, func(c *domain.Cart) error { return c.Add(req.ProductID, qty) })
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r.WithContext(ctx), c)
}

type setQuantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetCartQuantity")
	defer span.End()

	id, ok := productID(w, r)
	if !ok {
		return
	}
	var req setQuantityReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	sess, _ := session.FromContext(ctx)
	c, err := h.store.Update(ctx, sess.ID, func(c *domain.Cart) error {
		c.SetQuantity(id, req.Quantity)
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r.WithContext(ctx), c)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveFromCart")
	defer span.End()

	id, ok := productID(w, r)
	if !ok {
		return
	}
	sess, _ := session.FromContext(ctx)
	c, err := h.store.Update(ctx, sess.ID, func(c *domain.Cart) error {
		c.Remove(id)
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r.WithContext(ctx), c)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ClearCart")
	defer span.End()

	sess, _ := session.FromContext(ctx)
	if err := h.store.Delete(ctx, sess.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_id", "product id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_quantity", err.Error(), nil)
	case errors.Is(err, catalogdom.ErrProductNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "product not found", nil)
	case errors.Is(err, domain.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", "cart changed concurrently, retry", nil)
	default:
		h.log.ErrorContext(r.Context(), "cart request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "something went wrong", nil)
	}
}
