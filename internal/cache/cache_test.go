package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

type functionCache interface {
	Get(ctx context.Context, key string) ([]model.FunctionItem, bool, error)
	Set(ctx context.Context, key string, functions []model.FunctionItem) error
	Len() int
}

func items(names ...string) []model.FunctionItem {
	out := make([]model.FunctionItem, len(names))
	for i, n := range names {
		out[i] = model.FunctionItem{Name: n}
	}
	return out
}

func TestCaches(t *testing.T) {
	lru, err := NewLRUCache(8, 0)
	require.NoError(t, err)

	for name, c := range map[string]functionCache{"map": NewMapCache(), "lru": lru} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := c.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "k", items("a", "b")))
			got, ok, err := c.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Len(t, got, 2)

			got[0].Name = "mutated"
			again, _, _ := c.Get(ctx, "k")
			assert.Equal(t, "a", again[0].Name)

			require.NoError(t, c.Set(ctx, "k", items("c")))
			again, _, _ = c.Get(ctx, "k")
			assert.Equal(t, "c", again[0].Name)
			assert.Equal(t, 1, c.Len())

			require.NoError(t, c.Set(ctx, "empty", nil))
			empty, ok, err := c.Get(ctx, "empty")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, empty)
		})
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	c, err := NewLRUCache(2, 0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", items("a")))
	require.NoError(t, c.Set(ctx, "b", items("b")))
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", items("c")))

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	c, err := NewLRUCache(4, 20*time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", items("a")))
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNewLRUCache_Validation(t *testing.T) {
	_, err := NewLRUCache(0, 0)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = NewLRUCache(1, -time.Second)
	assert.ErrorIs(t, err, model.ErrValidation)
}
