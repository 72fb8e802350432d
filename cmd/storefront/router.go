package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	carthttp "github.com/dmehra2102/shopeasy/internal/cart/infrastructure/http"
	cataloghttp "github.com/dmehra2102/shopeasy/internal/catalog/infrastructure/http"
	identityhttp "github.com/dmehra2102/shopeasy/internal/identity/infrastructure/http"
	orderhttp "github.com/dmehra2102/shopeasy/internal/order/infrastructure/http"
	"github.com/dmehra2102/shopeasy/internal/platform/httpx"
	"github.com/dmehra2102/shopeasy/internal/session"
)

type handlers struct {
	sessions *session.Manager
	identity *identityhttp.Handler
	catalog  *cataloghttp.Handler
	cart     *carthttp.Handler
	orders   *orderhttp.Handler
	health   http.Handler
	// uploadDir is served under /uploads/ when set.
	uploadDir string
}

func newRouter(log *slog.Logger, h handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.AccessLog(log))

	r.Method(http.MethodGet, "/healthz", h.health)
	if h.uploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.uploadDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.sessions.Load)

		r.Post("/signup", h.identity.Signup)
		r.Post("/login", h.identity.Login)
		r.Post("/logout", h.identity.Logout)
		r.Mount("/products", h.catalog.Routes())

		r.Group(func(r chi.Router) {
			r.Use(session.RequireUser)
			r.Mount("/cart", h.cart.Routes())
			r.Post("/checkout", h.orders.Checkout)
			r.Mount("/orders", h.orders.Routes())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(session.RequireAdmin)
			r.Mount("/products", h.catalog.AdminRoutes())
			r.Mount("/orders", h.orders.AdminRoutes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "no such route", nil)
	})
	return r
}
