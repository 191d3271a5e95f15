package saga

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/inventory/domain"
	"marketplace/internal/service/inventory/infrastructure/memory"
)

const (
	item = "iitem_1"
	from = "sloc_a"
	to   = "sloc_b"
)

// flakyStock 在每次 ApplyDelta 之前调用 hook，用来模拟并发修改。
type flakyStock struct {
	domain.StockLevelStore
	mu    sync.Mutex
	calls int
	hook  func(call int, locationID string) error
}

func (f *flakyStock) ApplyDelta(ctx context.Context, itemID, locationID string, delta, expected int64) (domain.StockLevel, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.hook != nil {
		if err := f.hook(n, locationID); err != nil {
			return domain.StockLevel{}, err
		}
	}
	return f.StockLevelStore.ApplyDelta(ctx, itemID, locationID, delta, expected)
}

type failingLedger struct {
	domain.LedgerStore
	failLocation string
}

func (f *failingLedger) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.LocationID == f.failLocation {
		return domain.LedgerEntry{}, errors.New("ledger table locked")
	}
	return f.LedgerStore.Append(ctx, e)
}

func seed(t *testing.T, store *memory.StockStore, location string, stocked, reserved int64) {
	t.Helper()
	_, err := store.SetLevel(context.Background(), domain.StockLevel{
		InventoryItemID: item, LocationID: location, StockedQuantity: stocked, ReservedQuantity: reserved,
	})
	require.NoError(t, err)
}

func level(t *testing.T, store domain.StockLevelStore, location string) (domain.StockLevel, bool) {
	t.Helper()
	levels, err := store.GetLevels(context.Background(), item, []string{location})
	require.NoError(t, err)
	return domain.FindLevel(levels, location)
}

func newState(qty int64) *TransferState {
	return &TransferState{Input: TransferInput{
		TransferID:      "transfer_1",
		InventoryItemID: item,
		FromLocationID:  from,
		ToLocationID:    to,
		Quantity:        qty,
		VendorID:        "vendor_1",
		UserID:          "user_1",
	}}
}

func run(t *testing.T, stock domain.StockLevelStore, ledger domain.LedgerStore, state *TransferState) (*sagaengine.Instance, error) {
	t.Helper()
	steps := NewTransferSteps(stock, ledger, 3)
	return sagaengine.Run(context.Background(), sagaengine.NewCoordinator(), SagaName, steps.Steps(), state)
}

func TestTransfer_ToNewDestination(t *testing.T) {
	stock, ledger := memory.NewStockStore(), memory.NewLedgerStore()
	seed(t, stock, from, 50, 5)
	state := newState(20)

	inst, err := run(t, stock, ledger, state)
	require.NoError(t, err)
	assert.Equal(t, sagaengine.StatusCompleted, inst.Status)

	src, _ := level(t, stock, from)
	dst, ok := level(t, stock, to)
	require.True(t, ok)
	assert.Equal(t, int64(30), src.StockedQuantity)
	assert.Equal(t, int64(5), src.ReservedQuantity)
	assert.Equal(t, int64(20), dst.StockedQuantity)

	assert.Equal(t, int64(-20), state.SourceEntry.QuantityChange)
	assert.Equal(t, int64(50), state.SourceEntry.QuantityBefore)
	assert.Equal(t, int64(30), state.SourceEntry.QuantityAfter)
	assert.Equal(t, "Transferred 20 units to location sloc_b", state.SourceEntry.Notes)
	assert.Equal(t, int64(20), state.DestinationEntry.QuantityChange)
	assert.Equal(t, int64(0), state.DestinationEntry.QuantityBefore)
	assert.Equal(t, int64(20), state.DestinationEntry.QuantityAfter)
	assert.Equal(t, "Received 20 units from location sloc_a", state.DestinationEntry.Notes)
	require.NotNil(t, state.DestinationEntry.CreatedBy)
	assert.Equal(t, "user_1", *state.DestinationEntry.CreatedBy)
	require.NotNil(t, state.SourceEntry.ReferenceID)
	assert.Equal(t, "transfer_1", *state.SourceEntry.ReferenceID)

	page, err := ledger.List(context.Background(), domain.LedgerFilter{InventoryItemID: item})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Zero(t, page.Entries[0].QuantityChange+page.Entries[1].QuantityChange)
}

func TestTransfer_InsufficientStockChangesNothing(t *testing.T) {
	stock, ledger := memory.NewStockStore(), memory.NewLedgerStore()
	seed(t, stock, from, 50, 35)
	seed(t, stock, to, 7, 0)

	_, err := run(t, stock, ledger, newState(20))

	var failure *sagaengine.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StepSnapshot, failure.FailedStep)
	assert.Equal(t, sagaengine.KindInsufficientStock, failure.Cause())
	assert.Empty(t, failure.Compensated)

	src, _ := level(t, stock, from)
	dst, _ := level(t, stock, to)
	assert.Equal(t, int64(50), src.StockedQuantity)
	assert.Equal(t, int64(7), dst.StockedQuantity)
	page, _ := ledger.List(context.Background(), domain.LedgerFilter{})
	assert.Zero(t, page.Total)
}

func TestTransfer_RetriesAfterConflict(t *testing.T) {
	inner, ledger := memory.NewStockStore(), memory.NewLedgerStore()
	seed(t, inner, from, 50, 5)
	stock := &flakyStock{StockLevelStore: inner}
	stock.hook = func(call int, location string) error {
		if call == 1 {
			// 另一个调拨抢先扣走 5 个
			_, err := inner.ApplyDelta(context.Background(), item, from, -5, 50)
			return err
		}
		return nil
	}
	state := newState(20)

	_, err := run(t, stock, ledger, state)
	require.NoError(t, err)

	src, _ := level(t, inner, from)
	assert.Equal(t, int64(25), src.StockedQuantity)
	assert.Equal(t, int64(45), state.SourceEntry.QuantityBefore)
	assert.Equal(t, int64(25), state.SourceEntry.QuantityAfter)
	assert.Equal(t, src.Version, state.SourceEntry.StockVersion)
}

func TestTransfer_ConflictThenInsufficientStock(t *testing.T) {
	inner, ledger := memory.NewStockStore(), memory.NewLedgerStore()
	seed(t, inner, from, 30, 0)
	stock := &flakyStock{StockLevelStore: inner}
	stock.hook = func(call int, location string) error {
		if call == 1 {
			_, err := inner.ApplyDelta(context.Background(), item, from, -15, 30)
			return err
		}
		return nil
	}

	_, err := run(t, stock, ledger, newState(20))

	var failure *sagaengine.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StepDebitSource, failure.FailedStep)
	assert.Equal(t, sagaengine.KindInsufficientStock, failure.Cause())
	src, _ := level(t, inner, from)
	assert.Equal(t, int64(15), src.StockedQuantity)
}

func TestTransfer_ConflictExhaustsAttempts(t *testing.T) {
	inner, ledger := memory.NewStockStore(), memory.NewLedgerStore()
	seed(t, inner, from, 50, 0)
	stock := &flakyStock{StockLevelStore: inner}
	stock.hook = func(call int, location string) error {
		return domain.ErrConcurrencyConflict
	}

	_, err := run(t, stock, ledger, newState(10))

	var failure *sagaengine.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, sagaengine.KindConcurrencyConflict, failure.Cause())
	assert.Equal(t, 3, stock.calls)
}

func TestTransfer_LedgerFailureCompensatesStock(t *testing.T) {
	stock := memory.NewStockStore()
	ledger := &failingLedger{LedgerStore: memory.NewLedgerStore(), failLocation: to}
	seed(t, stock, from, 50, 5)
	seed(t, stock, to, 10, 0)

	inst, err := run(t, stock, ledger, newState(20))

	var failure *sagaengine.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StepLedgerDestination, failure.FailedStep)
	assert.Equal(t, []string{StepCreditDestination, StepDebitSource}, failure.Compensated)
	assert.Equal(t, sagaengine.StatusCompensated, inst.Status)

	src, _ := level(t, stock, from)
	dst, _ := level(t, stock, to)
	assert.Equal(t, int64(50), src.StockedQuantity)
	assert.Equal(t, int64(10), dst.StockedQuantity)

	// 源仓位的调出账目已写入，对账会把补偿造成的差异暴露出来
	r, err := ledger.Reconcile(context.Background(), item, from, &src)
	require.NoError(t, err)
	assert.False(t, r.Consistent)
}

func TestCompensation_IsIdempotent(t *testing.T) {
	stock, ledger := memory.NewStockStore(), memory.NewLedgerStore()
	seed(t, stock, from, 30, 0)
	steps := NewTransferSteps(stock, ledger, 3)

	comp := steps.compensateDelta(item, from, 20, "RestoreSource")
	require.NoError(t, comp(context.Background()))
	once, _ := level(t, stock, from)
	require.NoError(t, comp(context.Background()))
	twice, _ := level(t, stock, from)

	assert.Equal(t, int64(50), once.StockedQuantity)
	assert.Equal(t, once, twice)
}

func TestCompensation_FailsWhenStockWasMovedAway(t *testing.T) {
	stock, ledger := memory.NewStockStore(), memory.NewLedgerStore()
	seed(t, stock, to, 5, 0)
	steps := NewTransferSteps(stock, ledger, 3)

	err := steps.compensateDelta(item, to, -20, "RevokeDestination")(context.Background())
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	dst, _ := level(t, stock, to)
	assert.Equal(t, int64(5), dst.StockedQuantity)
}
