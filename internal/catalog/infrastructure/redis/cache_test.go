package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/shopeasy/internal/catalog/domain"
)

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb, time.Minute), mr
}

func TestCacheRoundTrip(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	_, ok, err := c.Product(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	p := domain.Product{ID: 1, Name: "Laptop", Price: decimal.RequireFromString("82999.00"), Stock: 10}
	require.NoError(t, c.SetProduct(ctx, p))
	require.NoError(t, c.SetProducts(ctx, []domain.Product{p}))

	got, ok, err := c.Product(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Laptop", got.Name)
	assert.True(t, got.Price.Equal(p.Price))

	list, ok, err := c.Products(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, list, 1)

	assert.Equal(t, time.Minute, mr.TTL(productKey(1)))
}

func TestCacheEmptyListIsAHit(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetProducts(ctx, nil))
	list, ok, err := c.Products(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, list)
}

func TestCacheInvalidate(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetProduct(ctx, domain.Product{ID: 1}))
	require.NoError(t, c.SetProduct(ctx, domain.Product{ID: 2}))
	require.NoError(t, c.SetProducts(ctx, []domain.Product{{ID: 1}, {ID: 2}}))

	require.NoError(t, c.Invalidate(ctx, 1))

	assert.False(t, mr.Exists(listKey))
	assert.False(t, mr.Exists(productKey(1)))
	assert.True(t, mr.Exists(productKey(2)))
}

func TestCacheCorruptEntryIsAMiss(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set(productKey(7), "{not json"))

	_, ok, err := c.Product(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(productKey(7)))
}
