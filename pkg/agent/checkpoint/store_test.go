package checkpoint

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "+549")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "+549", []byte(`{"v":1}`)))
	state, ok, err := store.Get(ctx, "+549")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"v":1}`), state)

	require.NoError(t, store.Delete(ctx, "+549"))
	_, ok, err = store.Get(ctx, "+549")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreCopiesValue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", buf))
	buf[0] = 'z'

	state, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), state)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "+549")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "+549", []byte(`{"v":1}`)))
	state, ok, err := store.Get(ctx, "+549")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"v":1}`), state)

	require.NoError(t, store.Delete(ctx, "+549"))
	_, ok, err = store.Get(ctx, "+549")
	require.NoError(t, err)
	assert.False(t, ok)
}
