package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/shopeasy/internal/catalog/application"
	"github.com/dmehra2102/shopeasy/internal/catalog/domain"
	"github.com/dmehra2102/shopeasy/internal/platform/httpx"
)

// maxFormBytes bounds a multipart create request: the image plus text fields.
const maxFormBytes = domain.MaxImageSize + 64<<10

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("catalog-http"),
	}
}

// Routes serves the public catalog.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.listProducts)
	r.Get("/{id}", h.getProduct)
	return r
}

// AdminRoutes serves catalog management. Callers must enforce the admin role.
func (h *Handler) AdminRoutes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.createProduct)
	r.Delete("/{id}", h.deleteProduct)
	return r
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListProducts")
	defer span.End()

	products, err := h.service.List(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	httpx.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetProduct")
	defer span.End()

	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateProduct")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_form", "expected multipart form data", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	np := domain.NewProduct{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	var invalid []string
	price, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("price")))
	if err != nil {
		invalid = append(invalid, "price")
	}
	np.Price = price
	if s := strings.TrimSpace(r.FormValue("stock")); s != "" {
		if np.Stock, err = strconv.Atoi(s); err != nil {
			invalid = append(invalid, "stock")
		}
	}
	if len(invalid) > 0 {
		h.writeError(w, r, &domain.InvalidProductError{Fields: invalid})
		return
	}

	var upload *application.Upload
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		upload = &application.Upload{Filename: header.Filename, Size: header.Size, Body: file}
	case !errors.Is(err, http.ErrMissingFile):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_form", "unreadable image", nil)
		return
	}

	p, err := h.service.Create(ctx, np, upload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteProduct")
	defer span.End()

	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_id", "product id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *domain.InvalidProductError
	switch {
	case errors.As(err, &invalid):
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"fields": invalid.Fields})
	case errors.Is(err, domain.ErrInvalidImage):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_image", err.Error(), nil)
	case errors.Is(err, domain.ErrProductNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "product not found", nil)
	default:
		h.log.ErrorContext(r.Context(), "catalog request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "something went wrong", nil)
	}
}
