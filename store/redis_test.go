package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adam-Behun/optimalbot-portal-sub000/flow"
)

func newTestStateCache(t *testing.T) (*StateCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	cache, err := NewStateCache(StateCacheConfig{Client: client})
	require.NoError(t, err)
	return cache, mr
}

func TestNewStateCache(t *testing.T) {
	t.Run("nil client returns error", func(t *testing.T) {
		_, err := NewStateCache(StateCacheConfig{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "client is required")
	})

	t.Run("default key prefix", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		cache, err := NewStateCache(StateCacheConfig{Client: client})
		require.NoError(t, err)
		assert.Equal(t, "flowstate:", cache.keyPrefix)
	})
}

func TestStateCacheSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestStateCache(t)

	original := flow.NewState()
	original.Set("caller_stated_name", "Jordan")
	original.Set("lookup_attempts", 1)

	require.NoError(t, cache.Save(ctx, "call-123", original))

	restored := flow.NewState()
	found, err := cache.Load(ctx, "call-123", restored)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Jordan", restored.String("caller_stated_name"))
}

func TestStateCacheLoadMissingReturnsNotFound(t *testing.T) {
	cache, _ := newTestStateCache(t)
	state := flow.NewState()
	found, err := cache.Load(context.Background(), "missing-session", state)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStateCacheDelete(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestStateCache(t)

	require.NoError(t, cache.Save(ctx, "call-456", flow.NewState()))
	require.NoError(t, cache.Delete(ctx, "call-456"))

	found, err := cache.Load(ctx, "call-456", flow.NewState())
	require.NoError(t, err)
	assert.False(t, found)
}
