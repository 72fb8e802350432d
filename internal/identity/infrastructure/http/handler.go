package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/shopeasy/internal/identity/application"
	"github.com/dmehra2102/shopeasy/internal/identity/domain"
	"github.com/dmehra2102/shopeasy/internal/platform/httpx"
	"github.com/dmehra2102/shopeasy/internal/session"
)

// CartDropper discards the cart tied to a session.
type CartDropper interface {
	Delete(ctx context.Context, sessionID string) error
}

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	sessions *session.Manager
	carts    CartDropper
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, sessions *session.Manager, carts CartDropper) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		sessions: sessions,
		carts:    carts,
		tracer:   otel.Tracer("identity-http"),
	}
}

type userResp struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Signup")
	defer span.End()

	var req domain.SignupRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	u, err := h.service.Signup(ctx, req)
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"fields": verr.Fields})
		return
	case errors.Is(err, domain.ErrUserExists):
		httpx.WriteError(w, http.StatusConflict, "user_exists", "username or email already taken", nil)
		return
	case err != nil:
		h.internal(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userResp{ID: u.ID, Username: u.Username, Role: string(u.Role)})
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates and starts a fresh session. Any session presented
// with the request is ended first.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Login")
	defer span.End()

	var req loginReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	u, err := h.service.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, domain.ErrInvalidCredentials) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password", nil)
		return
	}
	if err != nil {
		h.internal(w, r, err)
		return
	}

	if old, ok := session.FromContext(ctx); ok {
		h.end(ctx, w, old.ID)
	}
	if _, err := h.sessions.Start(ctx, w, session.Session{UserID: u.ID, Username: u.Username, Role: string(u.Role)}); err != nil {
		h.internal(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResp{ID: u.ID, Username: u.Username, Role: string(u.Role)})
}

// Logout ends the session and discards its cart.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Logout")
	defer span.End()

	if sess, ok := session.FromContext(ctx); ok {
		h.end(ctx, w, sess.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) end(ctx context.Context, w http.ResponseWriter, sessionID string) {
	if err := h.carts.Delete(ctx, sessionID); err != nil {
		h.log.WarnContext(ctx, "cart cleanup failed", "err", err)
	}
	if err := h.sessions.End(ctx, w, sessionID); err != nil {
		h.log.WarnContext(ctx, "session cleanup failed", "err", err)
	}
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.log.ErrorContext(r.Context(), "identity request failed", "path", r.URL.Path, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "something went wrong", nil)
}
