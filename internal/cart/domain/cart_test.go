package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(2, 1))
	require.NoError(t, c.Add(1, 3))
	require.NoError(t, c.Add(2, 2))

	assert.Equal(t, []Line{{ProductID: 2, Quantity: 3}, {ProductID: 1, Quantity: 3}}, c.Snapshot())
	assert.Equal(t, 6, c.Units())

	assert.ErrorIs(t, c.Add(1, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(1, -4), ErrInvalidQuantity)
	assert.Equal(t, 3, c.Quantity(1))
}

func TestSetQuantity(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(1, 1))
	require.NoError(t, c.Add(2, 1))

	c.SetQuantity(1, 5)
	assert.Equal(t, 5, c.Quantity(1))

	c.SetQuantity(3, 2)
	assert.Equal(t, []Line{{1, 5}, {2, 1}, {3, 2}}, c.Snapshot())

	c.SetQuantity(2, 0)
	c.SetQuantity(3, -1)
	assert.Equal(t, []Line{{1, 5}}, c.Snapshot())
}

func TestRemoveAndClear(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(1, 1))
	require.NoError(t, c.Add(2, 1))

	c.Remove(9)
	assert.Equal(t, 2, c.Len())

	c.Remove(1)
	assert.Equal(t, []Line{{2, 1}}, c.Snapshot())
	assert.Zero(t, c.Quantity(1))

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.Empty(t, c.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(1, 1))

	snap := c.Snapshot()
	snap[0].Quantity = 99
	assert.Equal(t, 1, c.Quantity(1))
}

func TestZeroValueCart(t *testing.T) {
	var c Cart
	assert.True(t, c.IsEmpty())
	require.NoError(t, c.Add(4, 2))
	assert.Equal(t, 2, c.Quantity(4))
}

func TestJSON(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(3, 2))
	require.NoError(t, c.Add(1, 1))

	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"product_id":3,"quantity":2},{"product_id":1,"quantity":1}]`, string(b))

	var restored Cart
	require.NoError(t, json.Unmarshal(b, &restored))
	assert.Equal(t, c.Snapshot(), restored.Snapshot())

	var tampered Cart
	require.NoError(t, json.Unmarshal([]byte(`[{"product_id":1,"quantity":2},{"product_id":2,"quantity":0},{"product_id":1,"quantity":1}]`), &tampered))
	assert.Equal(t, []Line{{1, 3}}, tampered.Snapshot())
}
