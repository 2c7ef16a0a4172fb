package storage

import (
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// redisStore connects to the Redis instance named by VARIANT_REDIS_ADDR, or
// skips the test when the variable is unset.
func redisStore(t *testing.T) *Redis {
	t.Helper()

	addr := os.Getenv("VARIANT_REDIS_ADDR")
	if addr == "" {
		t.Skip("VARIANT_REDIS_ADDR not set; skipping Redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(t.Context()).Err())

	return NewRedis(client, time.Minute)
}

func TestRedis_GetSetDelete(t *testing.T) {
	store := redisStore(t)
	ctx := t.Context()

	key := types.StorageKey("variant_test", types.KeyAssignments)
	t.Cleanup(func() { _ = store.Delete(ctx, key) })

	_, err := store.Get(ctx, key)
	require.ErrorIs(t, err, types.ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, key, []byte(`{"exp-1":{}}`)))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"exp-1":{}}`), got)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, types.ErrKeyNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, key))
}
