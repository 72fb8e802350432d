package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Hour), mr
}

func TestStoreLifecycle(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, Session{UserID: 7, Username: "alice", Role: "customer"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	mr.FastForward(30 * time.Minute)
	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, time.Hour, mr.TTL(key(created.ID)), "ttl slides on access")

	require.NoError(t, s.Destroy(ctx, created.ID))
	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreExpiry(t *testing.T) {
	s, mr := newStore(t)
	created, err := s.Create(context.Background(), Session{UserID: 1})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = s.Get(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func whoami(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_, _ = w.Write([]byte(sess.Username))
}

func TestManagerStartLoadEnd(t *testing.T) {
	s, _ := newStore(t)
	m := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)), s, false)

	rec := httptest.NewRecorder()
	sess, err := m.Start(context.Background(), rec, Session{UserID: 3, Username: "bob"})
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	h := m.Load(http.HandlerFunc(whoami))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "bob", rec.Body.String())

	require.NoError(t, m.End(context.Background(), httptest.NewRecorder(), sess.ID))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestRequireUserAndAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	serve := func(h http.Handler, sess *Session) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if sess != nil {
			req = req.WithContext(NewContext(req.Context(), *sess))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	customer := &Session{UserID: 1, Role: "customer"}
	admin := &Session{UserID: 2, Role: RoleAdmin}

	assert.Equal(t, http.StatusUnauthorized, serve(RequireUser(ok), nil))
	assert.Equal(t, http.StatusOK, serve(RequireUser(ok), customer))
	assert.Equal(t, http.StatusUnauthorized, serve(RequireAdmin(ok), nil))
	assert.Equal(t, http.StatusForbidden, serve(RequireAdmin(ok), customer))
	assert.Equal(t, http.StatusOK, serve(RequireAdmin(ok), admin))
}
