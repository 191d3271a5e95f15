// Package storetest 提供库存与账目存储的通用契约测试，每种存储实现都复用同一套用例。
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/service/inventory/domain"
)

// SeedableStockStore 是带有初始化入口的库存存储。
type SeedableStockStore interface {
	domain.StockLevelStore
	SetLevel(ctx context.Context, level domain.StockLevel) (domain.StockLevel, error)
}

func newItem() string { return "item-" + uuid.NewString()[:8] }

// RunStockStoreContract 校验 ApplyDelta 的比较并交换语义。
func RunStockStoreContract(t *testing.T, store SeedableStockStore) {
	ctx := context.Background()

	t.Run("credit creates missing row", func(t *testing.T) {
		item := newItem()
		level, err := store.ApplyDelta(ctx, item, "loc-b", 20, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(20), level.StockedQuantity)
		assert.Equal(t, int64(1), level.Version)

		levels, err := store.GetLevels(ctx, item, []string{"loc-a", "loc-b"})
		require.NoError(t, err)
		require.Len(t, levels, 1)
		assert.Equal(t, "loc-b", levels[0].LocationID)
	})

	t.Run("list by locations", func(t *testing.T) {
		itemA, itemB := newItem(), newItem()
		loc := "loc-" + uuid.NewString()[:8]
		_, err := store.ApplyDelta(ctx, itemA, loc, 3, 0)
		require.NoError(t, err)
		_, err = store.ApplyDelta(ctx, itemB, loc, 7, 0)
		require.NoError(t, err)
		_, err = store.ApplyDelta(ctx, itemA, "loc-other-"+uuid.NewString()[:8], 1, 0)
		require.NoError(t, err)

		levels, err := store.ListByLocations(ctx, []string{loc})
		require.NoError(t, err)
		require.Len(t, levels, 2)
		byItem := map[string]int64{}
		for _, l := range levels {
			assert.Equal(t, loc, l.LocationID)
			byItem[l.InventoryItemID] = l.StockedQuantity
		}
		assert.Equal(t, map[string]int64{itemA: 3, itemB: 7}, byItem)
	})

	t.Run("zero delta does not create a row", func(t *testing.T) {
		item := newItem()
		_, err := store.ApplyDelta(ctx, item, "loc-a", 0, 0)
		assert.ErrorIs(t, err, domain.ErrZeroDelta)

		levels, err := store.GetLevels(ctx, item, []string{"loc-a"})
		require.NoError(t, err)
		assert.Empty(t, levels)
	})

	t.Run("debit missing row is insufficient", func(t *testing.T) {
		_, err := store.ApplyDelta(ctx, newItem(), "loc-a", -1, 0)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	})

	t.Run("compare and swap", func(t *testing.T) {
		item := newItem()
		seeded, err := store.SetLevel(ctx, domain.StockLevel{InventoryItemID: item, LocationID: "loc-a", StockedQuantity: 50, ReservedQuantity: 5})
		require.NoError(t, err)

		_, err = store.ApplyDelta(ctx, item, "loc-a", -20, 49)
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

		_, err = store.ApplyDelta(ctx, item, "loc-a", -46, 50)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		level, err := store.ApplyDelta(ctx, item, "loc-a", -20, 50)
		require.NoError(t, err)
		assert.Equal(t, int64(30), level.StockedQuantity)
		assert.Equal(t, int64(5), level.ReservedQuantity)
		assert.Equal(t, seeded.Version+1, level.Version)

		levels, err := store.GetLevels(ctx, item, []string{"loc-a"})
		require.NoError(t, err)
		require.Len(t, levels, 1)
		assert.Equal(t, level.StockedQuantity, levels[0].StockedQuantity)
		assert.Equal(t, level.Version, levels[0].Version)
	})

	t.Run("concurrent debits never go negative", func(t *testing.T) {
		item := newItem()
		_, err := store.SetLevel(ctx, domain.StockLevel{InventoryItemID: item, LocationID: "loc-a", StockedQuantity: 10})
		require.NoError(t, err)

		var succeeded atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for attempt := 0; attempt < 100; attempt++ {
					levels, err := store.GetLevels(ctx, item, []string{"loc-a"})
					if err != nil || len(levels) == 0 {
						return
					}
					_, err = store.ApplyDelta(ctx, item, "loc-a", -1, levels[0].StockedQuantity)
					switch {
					case err == nil:
						succeeded.Add(1)
						return
					case errors.Is(err, domain.ErrConcurrencyConflict):
						continue
					default:
						return
					}
				}
			}()
		}
		wg.Wait()

		levels, err := store.GetLevels(ctx, item, []string{"loc-a"})
		require.NoError(t, err)
		require.Len(t, levels, 1)
		assert.Equal(t, int64(10), succeeded.Load())
		assert.Equal(t, int64(0), levels[0].StockedQuantity)
	})
}

func ledgerEntry(item string, version, before, change int64) domain.LedgerEntry {
	return domain.LedgerEntry{
		InventoryItemID: item,
		LocationID:      "loc-a",
		VendorID:        "vendor-1",
		ChangeType:      domain.ChangeTransfer,
		QuantityChange:  change,
		QuantityBefore:  before,
		QuantityAfter:   before + change,
		StockVersion:    version,
		ReferenceType:   "transfer",
	}
}

// RunLedgerStoreContract 校验账目的只追加与因果链语义。
func RunLedgerStoreContract(t *testing.T, store domain.LedgerStore) {
	ctx := context.Background()

	t.Run("append assigns identity", func(t *testing.T) {
		e, err := store.Append(ctx, ledgerEntry(newItem(), 1, 0, 50))
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	})

	t.Run("rejects bad arithmetic", func(t *testing.T) {
		bad := ledgerEntry(newItem(), 1, 0, 50)
		bad.QuantityAfter = 49
		_, err := store.Append(ctx, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidLedgerEntry)
	})

	t.Run("enforces causal chain", func(t *testing.T) {
		item := newItem()
		_, err := store.Append(ctx, ledgerEntry(item, 1, 0, 50))
		require.NoError(t, err)
		// 版本 3 先于版本 2 写入（并发调拨中允许乱序）
		_, err = store.Append(ctx, ledgerEntry(item, 3, 30, 5))
		require.NoError(t, err)

		_, err = store.Append(ctx, ledgerEntry(item, 2, 40, -10))
		assert.ErrorIs(t, err, domain.ErrLedgerChainBroken, "before must match version 1 after")

		_, err = store.Append(ctx, ledgerEntry(item, 2, 50, -10))
		assert.ErrorIs(t, err, domain.ErrLedgerChainBroken, "after must match version 3 before")

		_, err = store.Append(ctx, ledgerEntry(item, 1, 0, 50))
		assert.ErrorIs(t, err, domain.ErrLedgerChainBroken, "duplicate version")

		_, err = store.Append(ctx, ledgerEntry(item, 2, 50, -20))
		require.NoError(t, err)

		r, err := store.Reconcile(ctx, item, "loc-a", &domain.StockLevel{InventoryItemID: item, LocationID: "loc-a", StockedQuantity: 35, Version: 3})
		require.NoError(t, err)
		assert.True(t, r.Consistent)
		assert.Equal(t, 3, r.Entries)
		assert.Equal(t, int64(35), r.LedgerQuantity)
	})

	t.Run("list filters and paginates newest first", func(t *testing.T) {
		item := newItem()
		base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
		quantity := int64(0)
		for v := int64(1); v <= 5; v++ {
			e := ledgerEntry(item, v, quantity, 10)
			e.CreatedAt = base.Add(time.Duration(v) * time.Minute)
			if v == 5 {
				e.ChangeType = domain.ChangeRestock
			}
			_, err := store.Append(ctx, e)
			require.NoError(t, err)
			quantity += 10
		}

		page, err := store.List(ctx, domain.LedgerFilter{InventoryItemID: item, Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(5), page.Total)
		require.Len(t, page.Entries, 2)
		assert.Equal(t, int64(4), page.Entries[0].StockVersion)
		assert.Equal(t, int64(3), page.Entries[1].StockVersion)

		page, err = store.List(ctx, domain.LedgerFilter{InventoryItemID: item, ChangeType: domain.ChangeRestock})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)

		page, err = store.List(ctx, domain.LedgerFilter{
			InventoryItemID: item,
			From:            base.Add(2 * time.Minute),
			To:              base.Add(3 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		assert.Equal(t, domain.DefaultLedgerLimit, page.Limit)

		page, err = store.List(ctx, domain.LedgerFilter{InventoryItemID: item, Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, page.Entries)
		assert.Equal(t, int64(5), page.Total)
	})
}
