package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisUnlockWithoutLockIsNoop(t *testing.T) {
	// Nothing listens here; Unlock must not reach the network.
	r := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1"})
	defer r.Close()

	assert.NoError(t, r.Unlock(context.Background(), "scheduled_run"))
}

func TestRedisUnlockKeepsAnotherHoldersLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	key := "test:" + uuid.NewString()
	a := NewRedisCache(RedisConfig{Addr: addr})
	b := NewRedisCache(RedisConfig{Addr: addr})
	defer a.Close()
	defer b.Close()

	ok, err := a.TryLock(ctx, key, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(150 * time.Millisecond)
	ok, err = b.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "a's lock expired")

	require.NoError(t, a.Unlock(ctx, key))
	ok, err = a.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "b still holds the lock")

	require.NoError(t, b.Unlock(ctx, key))
	ok, err = a.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, a.Unlock(ctx, key))
}
