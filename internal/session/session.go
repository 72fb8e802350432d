// Package session keeps authenticated browser sessions in Redis, keyed by
// a random id carried in a cookie.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const RoleAdmin = "admin"

var ErrNotFound = errors.New("session: not found")

type Session struct {
	ID        string    `json:"-"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

// Store persists sessions with a sliding ttl: every successful Get extends
// the expiry.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) TTL() time.Duration { return s.ttl }

func key(id string) string { return "session:" + id }

// Create stores sess under a fresh id and returns it with ID set.
func (s *Store) Create(ctx context.Context, sess Session) (Session, error) {
	sess.ID = uuid.NewString()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return Session{}, err
	}
	ok, err := s.rdb.SetNX(ctx, key(sess.ID), b, s.ttl).Result()
	if err != nil {
		return Session{}, fmt.Errorf("session: create: %w", err)
	}
	if !ok {
		return Session{}, errors.New("session: id collision")
	}
	return sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrNotFound
	}
	b, err := s.rdb.GetEx(ctx, key(id), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return Session{}, ErrNotFound
	}
	sess.ID = id
	return sess, nil
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, key(id)).Err()
}

type ctxKey struct{}

func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
