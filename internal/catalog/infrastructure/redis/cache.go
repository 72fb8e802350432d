package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmehra2102/shopeasy/internal/catalog/domain"
)

const listKey = "catalog:products"

func productKey(id int64) string { return "catalog:product:" + strconv.FormatInt(id, 10) }

// Cache stores JSON-encoded catalog reads with a fixed ttl.
type Cache struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewCache(rdb *goredis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) Products(ctx context.Context) ([]domain.Product, bool, error) {
	var products []domain.Product
	ok, err := c.get(ctx, listKey, &products)
	return products, ok, err
}

func (c *Cache) SetProducts(ctx context.Context, products []domain.Product) error {
	if products == nil {
		products = []domain.Product{}
	}
	return c.set(ctx, listKey, products)
}

func (c *Cache) Product(ctx context.Context, id int64) (domain.Product, bool, error) {
	var p domain.Product
	ok, err := c.get(ctx, productKey(id), &p)
	return p, ok, err
}

func (c *Cache) SetProduct(ctx context.Context, p domain.Product) error {
	return c.set(ctx, productKey(p.ID), p)
}

// Invalidate drops the list and the given products in one round trip.
func (c *Cache) Invalidate(ctx context.Context, ids ...int64) error {
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, listKey)
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Cache) get(ctx context.Context, key string, v any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		_ = c.rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
