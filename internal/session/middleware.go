package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/shopeasy/internal/platform/httpx"
)

const CookieName = "shopeasy_sid"

type Manager struct {
	log    *slog.Logger
	store  *Store
	secure bool
}

func NewManager(log *slog.Logger, store *Store, secure bool) *Manager {
	return &Manager{log: log, store: store, secure: secure}
}

// Load attaches the session named by the request cookie, if any, to the
// request context. Unknown or expired ids are ignored and the cookie is
// cleared.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := m.store.Get(r.Context(), c.Value)
		switch {
		case errors.Is(err, ErrNotFound):
			m.clearCookie(w)
		case err != nil:
			m.log.ErrorContext(r.Context(), "session lookup failed", "err", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, "session_unavailable", "try again later", nil)
			return
		default:
			r = r.WithContext(NewContext(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

// Start creates a session and sets its cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, sess Session) (Session, error) {
	sess, err := m.store.Create(ctx, sess)
	if err != nil {
		return Session{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(m.store.TTL().Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// End destroys the session and clears its cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, id string) error {
	m.clearCookie(w)
	return m.store.Destroy(ctx, id)
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "login required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "login required", nil)
			return
		}
		if !sess.IsAdmin() {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
