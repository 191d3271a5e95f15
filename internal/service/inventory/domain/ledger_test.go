package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(version, before, change int64) LedgerEntry {
	return LedgerEntry{
		InventoryItemID: "item",
		LocationID:      "loc",
		ChangeType:      ChangeTransfer,
		QuantityChange:  change,
		QuantityBefore:  before,
		QuantityAfter:   before + change,
		StockVersion:    version,
	}
}

func TestLedgerEntry_Validate(t *testing.T) {
	require.NoError(t, entry(1, 0, 20).Validate())

	bad := entry(2, 50, -20)
	bad.QuantityAfter = 31
	assert.ErrorIs(t, bad.Validate(), ErrInvalidLedgerEntry)

	unknown := entry(2, 50, -20)
	unknown.ChangeType = "theft"
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidLedgerEntry)

	noVersion := entry(0, 0, 1)
	assert.ErrorIs(t, noVersion.Validate(), ErrInvalidLedgerEntry)
}

func TestCheckChain(t *testing.T) {
	prev := entry(1, 0, 50)
	next := entry(3, 30, 5)

	assert.NoError(t, CheckChain(entry(2, 50, -20), &prev, &next))
	assert.NoError(t, CheckChain(entry(2, 50, -20), nil, nil))
	assert.ErrorIs(t, CheckChain(entry(2, 40, -10), &prev, nil), ErrLedgerChainBroken)
	assert.ErrorIs(t, CheckChain(entry(2, 50, -10), nil, &next), ErrLedgerChainBroken)
}

func TestReconcile(t *testing.T) {
	t.Run("consistent chain with compensation gap", func(t *testing.T) {
		// v1 入库 50；v2/v3 是一次被补偿的调拨（无账目）；v4 调出 20
		entries := []LedgerEntry{entry(4, 50, -20), entry(1, 0, 50)}
		current := &StockLevel{StockedQuantity: 30, Version: 4}

		r := Reconcile("item", "loc", entries, current)
		assert.True(t, r.Consistent)
		assert.Equal(t, int64(30), r.LedgerQuantity)
		assert.Equal(t, []VersionGap{{FromVersion: 1, ToVersion: 4, QuantityDelta: 0}}, r.Gaps)
		assert.Empty(t, r.Breaks)
	})

	t.Run("unexplained change", func(t *testing.T) {
		entries := []LedgerEntry{entry(1, 0, 50)}
		current := &StockLevel{StockedQuantity: 45, Version: 2}

		r := Reconcile("item", "loc", entries, current)
		assert.False(t, r.Consistent)
		assert.Equal(t, []VersionGap{{FromVersion: 1, ToVersion: 2, QuantityDelta: -5}}, r.Gaps)
	})

	t.Run("broken adjacency", func(t *testing.T) {
		entries := []LedgerEntry{entry(1, 0, 50), entry(2, 40, -10)}
		r := Reconcile("item", "loc", entries, &StockLevel{StockedQuantity: 30, Version: 2})
		assert.False(t, r.Consistent)
		require.Len(t, r.Breaks, 1)
	})

	t.Run("no stock row", func(t *testing.T) {
		r := Reconcile("item", "loc", nil, nil)
		assert.True(t, r.Consistent)
		assert.Zero(t, r.Entries)
	})
}

func TestLedgerFilter(t *testing.T) {
	f := LedgerFilter{Limit: 5000, Offset: -3}.Normalize()
	assert.Equal(t, MaxLedgerLimit, f.Limit)
	assert.Zero(t, f.Offset)
	assert.Equal(t, DefaultLedgerLimit, LedgerFilter{}.Normalize().Limit)

	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	e := entry(1, 0, 5)
	e.VendorID = "v1"
	e.CreatedAt = at

	assert.True(t, LedgerFilter{VendorID: "v1", ChangeType: ChangeTransfer}.Matches(e))
	assert.False(t, LedgerFilter{VendorID: "v2"}.Matches(e))
	assert.False(t, LedgerFilter{From: at.Add(time.Hour)}.Matches(e))
	assert.True(t, LedgerFilter{From: at, To: at}.Matches(e))
}
