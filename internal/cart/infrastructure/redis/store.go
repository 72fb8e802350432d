package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmehra2102/shopeasy/internal/cart/domain"
)

const maxUpdateAttempts = 5

// Store keeps one cart per session.
type Store struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewStore(rdb *goredis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(sessionID string) string { return "cart:" + sessionID }

// Load returns the session's cart, or an empty one.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	return load(ctx, s.rdb, sessionID)
}

// Save stores c, deleting the key when the cart is empty.
func (s *Store) Save(ctx context.Context, sessionID string, c *domain.Cart) error {
	if c.IsEmpty() {
		return s.rdb.Del(ctx, key(sessionID)).Err()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(sessionID), b, s.ttl).Err()
}

// Update applies fn to the stored cart under WATCH, retrying when another
// request changed the cart in between. If fn fails nothing is written.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(c *domain.Cart) error) (*domain.Cart, error) {
	k := key(sessionID)
	var result *domain.Cart

	txf := func(tx *goredis.Tx) error {
		c, err := load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		var b []byte
		if !c.IsEmpty() {
			if b, err = json.Marshal(c); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			if c.IsEmpty() {
				p.Del(ctx, k)
			} else {
				p.Set(ctx, k, b, s.ttl)
			}
			return nil
		})
		if err == nil {
			result = c
		}
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, domain.ErrConflict
}

// Take removes the session's cart and returns what it held. Concurrent
// takers are serialized by Update, so only one of them gets the lines.
func (s *Store) Take(ctx context.Context, sessionID string) (*domain.Cart, error) {
	var taken *domain.Cart
	_, err := s.Update(ctx, sessionID, func(c *domain.Cart) error {
		taken = domain.New()
		for _, l := range c.Snapshot() {
			taken.SetQuantity(l.ProductID, l.Quantity)
		}
		c.Clear()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// Restore adds c's lines back to the session's cart, on top of anything
// added since it was taken.
func (s *Store) Restore(ctx context.Context, sessionID string, c *domain.Cart) error {
	if c.IsEmpty() {
		return nil
	}
	_, err := s.Update(ctx, sessionID, func(cur *domain.Cart) error {
		for _, l := range c.Snapshot() {
			if err := cur.Add(l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, key(sessionID)).Err()
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func load(ctx context.Context, g getter, sessionID string) (*domain.Cart, error) {
	b, err := g.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	c := domain.New()
	if err := json.Unmarshal(b, c); err != nil {
		// An unreadable cart is discarded rather than locking the user out.
		return domain.New(), nil
	}
	return c, nil
}
