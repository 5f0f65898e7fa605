package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "wnotif:lock:NewIncomingTx:w1:tx:a@b.com", Key("wnotif:lock", "NewIncomingTx:w1:tx", "a@b.com"))
	assert.Equal(t, "id:a@b.com", Key("", "id", "a@b.com"))
}

func TestMemoryExclusiveAcrossHolders(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	a, b := NewMemory(store), NewMemory(store)

	ok, err := a.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// b cannot release a's lock
	require.NoError(t, b.Release(ctx, "k"))
	ok, _ = b.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, "k"))
	ok, _ = b.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	a, b := NewMemory(store), NewMemory(store)
	ok, _ := a.Acquire(ctx, "k", 10*time.Second)
	require.True(t, ok)

	now = now.Add(9 * time.Second)
	ok, _ = b.Acquire(ctx, "k", 10*time.Second)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = b.Acquire(ctx, "k", 10*time.Second)
	assert.True(t, ok)
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	a, b := NewRedis(client), NewRedis(client)
	require.NotEqual(t, a.Holder(), b.Holder())

	ok, err := a.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, a.Holder(), mustGet(t, mr, "k"))

	ok, err = b.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Release(ctx, "k"))
	assert.True(t, mr.Exists("k"))

	require.NoError(t, a.Release(ctx, "k"))
	assert.False(t, mr.Exists("k"))

	ok, err = b.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = a.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
