package cache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/pkg/redis"
	"marketplace/internal/service/inventory/infrastructure/storetest"
)

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("item", "loc", map[string]string{
		"stocked": "50", "reserved": "5", "version": "7", "updated_at": "1767225600000",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), level.StockedQuantity)
	assert.Equal(t, int64(5), level.ReservedQuantity)
	assert.Equal(t, int64(7), level.Version)
	assert.Equal(t, 2026, level.UpdatedAt.Year())

	_, err = parseLevel("item", "loc", map[string]string{"stocked": "lots"})
	assert.Error(t, err)
}

func TestSplitStockKey(t *testing.T) {
	item, loc, ok := splitStockKey(stockKey("iitem:01", "sloc_a"))
	require.True(t, ok)
	assert.Equal(t, "iitem:01", item)
	assert.Equal(t, "sloc_a", loc)

	_, _, ok = splitStockKey("inventory:ledger:x")
	assert.False(t, ok)
}

func TestRedisStockStoreContract(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis stock store tests")
	}
	client, err := redis.NewClient(context.Background(), redis.Options{Addr: addr})
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStockStore(client)
	require.NoError(t, err)
	storetest.RunStockStoreContract(t, store)
}
