package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmehra2102/shopeasy/internal/identity/application"
	"github.com/dmehra2102/shopeasy/internal/identity/domain"
	"github.com/dmehra2102/shopeasy/internal/session"
)

type memRepo struct {
	mu    sync.Mutex
	users []domain.User
}

func (m *memRepo) Create(_ context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.Username == u.Username || e.Email == u.Email {
			return domain.User{}, domain.ErrUserExists
		}
	}
	u.ID = int64(len(m.users) + 1)
	m.users = append(m.users, u)
	return u, nil
}

func (m *memRepo) ByUsername(_ context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *memRepo) SetRole(context.Context, int64, domain.Role) error { return nil }

type droppedCarts struct{ ids []string }

func (d *droppedCarts) Delete(_ context.Context, id string) error {
	d.ids = append(d.ids, id)
	return nil
}

func newHandler(t *testing.T) (http.Handler, *droppedCarts) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewManager(log, session.NewStore(rdb, time.Hour), false)
	svc := application.NewService(log, &memRepo{}, application.WithCost(bcrypt.MinCost))
	carts := &droppedCarts{}
	h := NewHandler(log, svc, sessions, carts)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /signup", h.Signup)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.Handle("GET /me", session.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := session.FromContext(r.Context())
		_, _ = w.Write([]byte(s.Username))
	})))
	return sessions.Load(mux), carts
}

func post(h http.Handler, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	var last *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			last = c
		}
	}
	require.NotNil(t, last)
	return last
}

func TestSignupLoginLogout(t *testing.T) {
	h, carts := newHandler(t)

	rec := post(h, "/signup", `{"username":"alice","email":"alice@example.com","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = post(h, "/signup", `{"username":"alice","email":"alice@example.com","password":"s3cret-pass"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(h, "/login", `{"username":"alice","password":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h, "/login", `{"username":"alice","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	me := httptest.NewRequest(http.MethodGet, "/me", nil)
	me.AddCookie(cookie)
	meRec := httptest.NewRecorder()
	h.ServeHTTP(meRec, me)
	assert.Equal(t, "alice", meRec.Body.String())

	rec = post(h, "/logout", "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{cookie.Value}, carts.ids)

	meRec = httptest.NewRecorder()
	h.ServeHTTP(meRec, me)
	assert.Equal(t, http.StatusUnauthorized, meRec.Code)
}

func TestSignupValidation(t *testing.T) {
	h, _ := newHandler(t)
	rec := post(h, "/signup", `{"username":"a","email":"nope","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_failed")
}
