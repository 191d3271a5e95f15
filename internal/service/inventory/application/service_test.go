package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/pkg/idempotency"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/inventory/application/saga"
	"marketplace/internal/service/inventory/domain"
	"marketplace/internal/service/inventory/infrastructure/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	svc       *InventoryApplicationService
	stock     *memory.StockStore
	ledger    *memory.LedgerStore
	publisher *recordingPublisher
	journal   *sagaengine.MemoryJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stock:     memory.NewStockStore(),
		ledger:    memory.NewLedgerStore(),
		publisher: &recordingPublisher{},
		journal:   sagaengine.NewMemoryJournal(),
	}
	coord := sagaengine.NewCoordinator(sagaengine.WithJournal(f.journal))
	f.svc = NewInventoryApplicationService(coord, f.stock, f.ledger, f.publisher, idempotency.NewMemoryGuard(time.Hour), 3)
	return f
}

func (f *fixture) seed(t *testing.T, location string, stocked, reserved int64) {
	t.Helper()
	_, err := f.stock.SetLevel(context.Background(), domain.StockLevel{
		InventoryItemID: "iitem_1", LocationID: location, StockedQuantity: stocked, ReservedQuantity: reserved,
	})
	require.NoError(t, err)
}

func (f *fixture) stocked(t *testing.T, location string) int64 {
	t.Helper()
	levels, err := f.stock.GetLevels(context.Background(), "iitem_1", []string{location})
	require.NoError(t, err)
	level, _ := domain.FindLevel(levels, location)
	return level.StockedQuantity
}

var actor = Actor{VendorID: "vendor_1", UserID: "user_1", AuthorizedLocationIDs: []string{"sloc_a", "sloc_b", "sloc_c"}}

func request(from, to string, qty int64) TransferRequest {
	return TransferRequest{InventoryItemID: "iitem_1", FromLocationID: from, ToLocationID: to, Quantity: qty, Actor: actor}
}

func TestTransfer_Success(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 50, 5)

	req := request("sloc_a", "sloc_b", 20)
	req.Reference = "rebalance"
	req.ReferenceID = "ref-1"
	result, err := f.svc.Transfer(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, result.TransferID, "transfer_")
	assert.Equal(t, int64(30), result.FromLevel.StockedQuantity)
	assert.Equal(t, int64(20), result.ToLevel.StockedQuantity)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "ref-1", *result.Entries[0].ReferenceID)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0].(domain.TransferCompleted)
	assert.Equal(t, result.TransferID, event.TransferID)
	assert.Equal(t, "vendor_1", event.VendorID)

	saved, ok := f.journal.Get(result.SagaID)
	require.True(t, ok)
	assert.Equal(t, sagaengine.StatusCompleted, saved.Status)
}

func TestTransfer_Validation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 50, 0)

	outsider := request("sloc_a", "sloc_x", 5)
	noItem := request("sloc_a", "sloc_b", 5)
	noItem.InventoryItemID = ""

	tests := []struct {
		name string
		req  TransferRequest
	}{
		{"zero quantity", request("sloc_a", "sloc_b", 0)},
		{"negative quantity", request("sloc_a", "sloc_b", -3)},
		{"same location", request("sloc_a", "sloc_a", 5)},
		{"missing item", noItem},
		{"unauthorized location", outsider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Transfer(context.Background(), tt.req)
			assert.Equal(t, sagaengine.KindValidation, sagaengine.KindOf(err))
		})
	}
	_, err := f.svc.Transfer(context.Background(), outsider)
	assert.ErrorIs(t, err, domain.ErrLocationNotAllowed)
	assert.Equal(t, int64(50), f.stocked(t, "sloc_a"))
	assert.Empty(t, f.publisher.events)
}

func TestTransfer_InsufficientStockIsReportedDirectly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 10, 2)

	_, err := f.svc.Transfer(context.Background(), request("sloc_a", "sloc_b", 9))

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	var failure *sagaengine.Failure
	assert.False(t, errors.As(err, &failure))
	assert.Equal(t, int64(10), f.stocked(t, "sloc_a"))

	page, err := f.ledger.List(context.Background(), domain.LedgerFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestTransfer_DuplicateReferenceRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 50, 0)
	req := request("sloc_a", "sloc_b", 5)
	req.ReferenceID = "ref-dup"

	_, err := f.svc.Transfer(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.Transfer(context.Background(), req)
	assert.Equal(t, sagaengine.KindValidation, sagaengine.KindOf(err))
	assert.Equal(t, int64(45), f.stocked(t, "sloc_a"))
}

func TestTransfer_FailedTransferReleasesReference(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 3, 0)
	req := request("sloc_a", "sloc_b", 5)
	req.ReferenceID = "ref-retry"

	_, err := f.svc.Transfer(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	f.seed(t, "sloc_a", 10, 0)
	_, err = f.svc.Transfer(context.Background(), req)
	require.NoError(t, err)
}

func TestTransfer_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 50, 0)
	f.publisher.err = errors.New("kafka unavailable")

	_, err := f.svc.Transfer(context.Background(), request("sloc_a", "sloc_b", 5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.stocked(t, "sloc_b"))
}

func TestTransfer_RoundTripRestoresLevels(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 50, 5)
	f.seed(t, "sloc_b", 8, 0)

	_, err := f.svc.Transfer(context.Background(), request("sloc_a", "sloc_b", 20))
	require.NoError(t, err)
	_, err = f.svc.Transfer(context.Background(), request("sloc_b", "sloc_a", 20))
	require.NoError(t, err)

	assert.Equal(t, int64(50), f.stocked(t, "sloc_a"))
	assert.Equal(t, int64(8), f.stocked(t, "sloc_b"))
	page, err := f.svc.History(context.Background(), actor, domain.LedgerFilter{InventoryItemID: "iitem_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
}

func TestTransfer_ConcurrentDrainNeverGoesNegative(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 30, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, dest := range []string{"sloc_b", "sloc_c"} {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			_, errs[i] = f.svc.Transfer(context.Background(), request("sloc_a", dest, 20))
		}(i, dest)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		kind := sagaengine.KindOf(err)
		assert.True(t, kind == sagaengine.KindInsufficientStock || kind == sagaengine.KindConcurrencyConflict ||
			errors.Is(err, sagaengine.ErrInsufficientStock), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(10), f.stocked(t, "sloc_a"))
	assert.Equal(t, int64(20), f.stocked(t, "sloc_b")+f.stocked(t, "sloc_c"))
}

func TestHistoryAndReconcile(t *testing.T) {
	f := newFixture(t)
	// 初始库存通过入库账目记录，对账才能从零开始解释
	seeded, err := f.stock.ApplyDelta(context.Background(), "iitem_1", "sloc_a", 50, 0)
	require.NoError(t, err)
	_, err = f.ledger.Append(context.Background(), domain.LedgerEntry{
		InventoryItemID: "iitem_1", LocationID: "sloc_a", VendorID: "vendor_1",
		ChangeType: domain.ChangeRestock, QuantityChange: 50, QuantityAfter: 50, StockVersion: seeded.Version,
	})
	require.NoError(t, err)

	_, err = f.svc.Transfer(context.Background(), request("sloc_a", "sloc_b", 20))
	require.NoError(t, err)

	page, err := f.svc.History(context.Background(), actor, domain.LedgerFilter{ChangeType: domain.ChangeTransfer})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	other, err := f.svc.History(context.Background(), Actor{VendorID: "vendor_2"}, domain.LedgerFilter{})
	require.NoError(t, err)
	assert.Zero(t, other.Total)

	_, err = f.svc.History(context.Background(), actor, domain.LedgerFilter{ChangeType: "theft"})
	assert.Equal(t, sagaengine.KindValidation, sagaengine.KindOf(err))

	for _, loc := range []string{"sloc_a", "sloc_b"} {
		r, err := f.svc.Reconcile(context.Background(), actor, "iitem_1", loc)
		require.NoError(t, err)
		assert.True(t, r.Consistent, loc)
	}

	_, err = f.svc.Reconcile(context.Background(), actor, "iitem_1", "sloc_x")
	assert.ErrorIs(t, err, domain.ErrLocationNotAllowed)

	levels, err := f.svc.Levels(context.Background(), actor, "iitem_1")
	require.NoError(t, err)
	assert.Len(t, levels, 2)
}

// failingLedger 让某个仓位的账目写入失败。
type failingLedger struct {
	*memory.LedgerStore
	failAt string
}

func (l *failingLedger) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.LocationID == l.failAt {
		return domain.LedgerEntry{}, errors.New("ledger table unavailable")
	}
	return l.LedgerStore.Append(ctx, e)
}

func TestTransfer_FailureReportsRevertedStock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 50, 0)
	ledger := &failingLedger{LedgerStore: f.ledger, failAt: "sloc_b"}
	f.svc = NewInventoryApplicationService(sagaengine.NewCoordinator(), f.stock, ledger, f.publisher,
		idempotency.NewMemoryGuard(time.Hour), 3)

	_, err := f.svc.Transfer(context.Background(), request("sloc_a", "sloc_b", 20))

	var failure *sagaengine.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, saga.StepLedgerDestination, failure.FailedStep)
	assert.True(t, failure.FullyCompensated())
	assert.Equal(t, int64(50), f.stocked(t, "sloc_a"))
	assert.Equal(t, int64(0), f.stocked(t, "sloc_b"))

	assert.Equal(t, []saga.StockChange{
		{LocationID: "sloc_a", Delta: -20, StockedAfter: 30, Reverted: true},
		{LocationID: "sloc_b", Delta: 20, StockedAfter: 20, Reverted: true},
	}, failure.Details[DetailStockChanges])

	debit, ok := failure.PartialOutput[saga.StepDebitSource]
	require.True(t, ok)
	assert.Equal(t, sagaengine.StepCompensated, debit.Status)
	var debited domain.StockLevel
	require.NoError(t, json.Unmarshal(debit.Output, &debited))
	assert.Equal(t, int64(30), debited.StockedQuantity)
	var undo saga.DeltaCompensation
	require.NoError(t, json.Unmarshal(debit.CompensationInput, &undo))
	assert.Equal(t, saga.DeltaCompensation{InventoryItemID: "iitem_1", LocationID: "sloc_a", Delta: 20}, undo)

	// 源仓位的账目已经写入且不可撤销，失败结果如实列出
	written, ok := failure.PartialOutput[saga.StepLedgerSource]
	require.True(t, ok)
	assert.Equal(t, sagaengine.StepSucceeded, written.Status)
	var entry domain.LedgerEntry
	require.NoError(t, json.Unmarshal(written.Output, &entry))
	assert.Equal(t, int64(-20), entry.QuantityChange)

	body, err := json.Marshal(sagaengine.Report(err))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"stock_changes"`)
	assert.Contains(t, string(body), `"partial_output"`)
}

func TestRestock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Restock(ctx, RestockRequest{InventoryItemID: "iitem_1", LocationID: "sloc_a", Quantity: 40, Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Level.StockedQuantity)
	assert.Equal(t, domain.ChangeRestock, res.Entry.ChangeType)
	assert.Equal(t, int64(0), res.Entry.QuantityBefore)
	assert.Equal(t, int64(40), res.Entry.QuantityAfter)

	_, err = f.svc.Restock(ctx, RestockRequest{InventoryItemID: "iitem_1", LocationID: "sloc_a", Quantity: 10, Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, int64(50), f.stocked(t, "sloc_a"))

	r, err := f.svc.Reconcile(ctx, actor, "iitem_1", "sloc_a")
	require.NoError(t, err)
	assert.True(t, r.Consistent)

	_, err = f.svc.Restock(ctx, RestockRequest{InventoryItemID: "iitem_1", LocationID: "sloc_a", Quantity: 0, Actor: actor})
	assert.Equal(t, sagaengine.KindValidation, sagaengine.KindOf(err))
	_, err = f.svc.Restock(ctx, RestockRequest{InventoryItemID: "iitem_1", LocationID: "sloc_x", Quantity: 5, Actor: actor})
	assert.ErrorIs(t, err, domain.ErrLocationNotAllowed)
}

func TestRestock_LedgerFailureRevertsStock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sloc_a", 5, 0)
	ledger := &failingLedger{LedgerStore: f.ledger, failAt: "sloc_a"}
	f.svc = NewInventoryApplicationService(sagaengine.NewCoordinator(), f.stock, ledger, f.publisher,
		idempotency.NewMemoryGuard(time.Hour), 3)

	_, err := f.svc.Restock(context.Background(), RestockRequest{InventoryItemID: "iitem_1", LocationID: "sloc_a", Quantity: 10, Actor: actor})

	var failure *sagaengine.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, saga.StepLedgerRestock, failure.FailedStep)
	assert.True(t, failure.FullyCompensated())
	assert.Equal(t, int64(5), f.stocked(t, "sloc_a"))
}

func TestAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := func(item, loc string, stocked, reserved int64) {
		_, err := f.stock.SetLevel(ctx, domain.StockLevel{InventoryItemID: item, LocationID: loc, StockedQuantity: stocked, ReservedQuantity: reserved})
		require.NoError(t, err)
	}
	seed("iitem_1", "sloc_a", 50, 0)
	seed("iitem_2", "sloc_a", 8, 0)
	seed("iitem_3", "sloc_b", 4, 4)
	seed("iitem_4", "sloc_b", 12, 0)
	seed("iitem_5", "sloc_z", 0, 0)

	res, err := f.svc.Alerts(ctx, actor, AlertsQuery{})
	require.NoError(t, err)
	require.Len(t, res.Alerts, 2)
	assert.Equal(t, StockAlert{
		AlertType: AlertOutOfStock, InventoryItemID: "iitem_3", LocationID: "sloc_b",
		StockedQuantity: 4, ReservedQuantity: 4, AvailableQuantity: 0, Threshold: 10,
	}, res.Alerts[0])
	assert.Equal(t, "iitem_2", res.Alerts[1].InventoryItemID)
	assert.Equal(t, AlertLowStock, res.Alerts[1].AlertType)
	assert.Equal(t, AlertSummary{TotalAlerts: 2, OutOfStock: 1, LowStock: 1}, res.Summary)

	res, err = f.svc.Alerts(ctx, actor, AlertsQuery{Threshold: 12, LocationID: "sloc_b"})
	require.NoError(t, err)
	require.Len(t, res.Alerts, 2)
	assert.Equal(t, "iitem_4", res.Alerts[1].InventoryItemID)

	_, err = f.svc.Alerts(ctx, actor, AlertsQuery{LocationID: "sloc_z"})
	assert.ErrorIs(t, err, domain.ErrLocationNotAllowed)
	_, err = f.svc.Alerts(ctx, actor, AlertsQuery{Threshold: -1})
	assert.Equal(t, sagaengine.KindValidation, sagaengine.KindOf(err))

	empty, err := f.svc.Alerts(ctx, Actor{VendorID: "vendor_2"}, AlertsQuery{})
	require.NoError(t, err)
	assert.Empty(t, empty.Alerts)
}
