// Package saga 定义库存调拨 saga 的各个步骤。每个步骤都是一个独立文件，
// 通过 TransferState 在步骤之间传递输出。
package saga

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/inventory/domain"
)

const (
	SagaName = "transfer_inventory"

	StepSnapshot          = "snapshot"
	StepDebitSource       = "debit_source"
	StepCreditDestination = "credit_destination"
	StepLedgerSource      = "ledger_source"
	StepLedgerDestination = "ledger_destination"

	defaultMaxAttempts          = 3
	defaultCompensationAttempts = 5
)

// TransferInput 是已经通过校验的调拨请求。
type TransferInput struct {
	TransferID      string
	InventoryItemID string
	FromLocationID  string
	ToLocationID    string
	Quantity        int64
	VendorID        string
	UserID          string
	ReferenceID     string
}

// TransferState 在步骤之间传递：快照、两次比较并交换的结果以及写入的账目。
type TransferState struct {
	Input TransferInput

	Source            domain.StockLevel
	Destination       domain.StockLevel
	DestinationExists bool

	Debited  domain.StockLevel
	Credited domain.StockLevel

	SourceEntry      domain.LedgerEntry
	DestinationEntry domain.LedgerEntry
}

// SnapshotOutput 是 snapshot 步骤读到的两端库存。
type SnapshotOutput struct {
	Source            domain.StockLevel `json:"source"`
	Destination       domain.StockLevel `json:"destination"`
	DestinationExists bool              `json:"destination_exists"`
}

// DeltaCompensation 是撤销一次库存变更时重新应用的 delta。
type DeltaCompensation struct {
	InventoryItemID string `json:"inventory_item_id"`
	LocationID      string `json:"location_id"`
	Delta           int64  `json:"delta"`
}

// StockChange 描述失败时某个仓位上曾经生效的库存变更，以及它是否已被撤销。
type StockChange struct {
	LocationID   string `json:"location_id"`
	Delta        int64  `json:"delta"`
	StockedAfter int64  `json:"stocked_after"`
	Reverted     bool   `json:"reverted"`
}

// StockChanges 从失败报告中整理出已经生效过的扣减与入库。
func (st *TransferState) StockChanges(failure *sagaengine.Failure) []StockChange {
	var out []StockChange
	applied := []struct {
		step       string
		locationID string
		delta      int64
		level      domain.StockLevel
	}{
		{StepDebitSource, st.Input.FromLocationID, -st.Input.Quantity, st.Debited},
		{StepCreditDestination, st.Input.ToLocationID, st.Input.Quantity, st.Credited},
	}
	for _, a := range applied {
		rec, ok := failure.Step(a.step)
		if !ok || (rec.Status != sagaengine.StepCompensated && rec.Status != sagaengine.StepCompensationFailed) {
			continue
		}
		out = append(out, StockChange{
			LocationID:   a.locationID,
			Delta:        a.delta,
			StockedAfter: a.level.StockedQuantity,
			Reverted:     rec.Status == sagaengine.StepCompensated,
		})
	}
	return out
}

// TransferSteps 持有步骤所需的存储依赖，通过构造函数注入。
type TransferSteps struct {
	Stock                domain.StockLevelStore
	Ledger               domain.LedgerStore
	Tracer               trace.Tracer
	MaxAttempts          int
	CompensationAttempts int
}

func NewTransferSteps(stock domain.StockLevelStore, ledger domain.LedgerStore, maxAttempts int) *TransferSteps {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &TransferSteps{
		Stock:                stock,
		Ledger:               ledger,
		Tracer:               otel.Tracer("marketplace/inventory"),
		MaxAttempts:          maxAttempts,
		CompensationAttempts: max(maxAttempts, defaultCompensationAttempts),
	}
}

// Steps 返回按执行顺序排列的调拨步骤。
func (s *TransferSteps) Steps() []sagaengine.Step[TransferState] {
	return []sagaengine.Step[TransferState]{
		{Name: StepSnapshot, Forward: s.snapshot, Output: snapshotOutput},
		{Name: StepDebitSource, Forward: s.debitSource, Output: debitOutput},
		{Name: StepCreditDestination, Forward: s.creditDestination, Output: creditOutput},
		{Name: StepLedgerSource, Forward: s.ledgerSource, Output: func(st *TransferState) (any, any) {
			return st.SourceEntry, nil
		}},
		{Name: StepLedgerDestination, Forward: s.ledgerDestination, Output: func(st *TransferState) (any, any) {
			return st.DestinationEntry, nil
		}},
	}
}

func snapshotOutput(st *TransferState) (any, any) {
	return SnapshotOutput{Source: st.Source, Destination: st.Destination, DestinationExists: st.DestinationExists}, nil
}

func debitOutput(st *TransferState) (any, any) {
	in := st.Input
	return st.Debited, DeltaCompensation{InventoryItemID: in.InventoryItemID, LocationID: in.FromLocationID, Delta: in.Quantity}
}

func creditOutput(st *TransferState) (any, any) {
	in := st.Input
	return st.Credited, DeltaCompensation{InventoryItemID: in.InventoryItemID, LocationID: in.ToLocationID, Delta: -in.Quantity}
}

// applyWithRetry 执行比较并交换；遇到并发冲突时重新读取，并用 recheck 校验最新值后重试。
func (s *TransferSteps) applyWithRetry(
	ctx context.Context,
	itemID, locationID string,
	delta, expected int64,
	attempts int,
	recheck func(level domain.StockLevel, exists bool) error,
) (domain.StockLevel, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		level, err := s.Stock.ApplyDelta(ctx, itemID, locationID, delta, expected)
		if err == nil {
			return level, nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return domain.StockLevel{}, classify(err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return domain.StockLevel{}, sagaengine.DependencyFailure(err, "retry of %s at %s interrupted", itemID, locationID)
		}

		latest, exists, err := s.read(ctx, itemID, locationID)
		if err != nil {
			return domain.StockLevel{}, err
		}
		if err := recheck(latest, exists); err != nil {
			return domain.StockLevel{}, err
		}
		expected = latest.StockedQuantity
	}
	return domain.StockLevel{}, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func (s *TransferSteps) read(ctx context.Context, itemID, locationID string) (domain.StockLevel, bool, error) {
	levels, err := s.Stock.GetLevels(ctx, itemID, []string{locationID})
	if err != nil {
		return domain.StockLevel{}, false, sagaengine.DependencyFailure(err, "read stock of %s at %s", itemID, locationID)
	}
	level, ok := domain.FindLevel(levels, locationID)
	return level, ok, nil
}

// classify 保留领域错误的分类，其余错误标记为依赖失败。
func classify(err error) error {
	if errors.Is(err, sagaengine.ErrDependencyFailure) {
		return err
	}
	switch sagaengine.KindOf(err) {
	case sagaengine.KindInsufficientStock, sagaengine.KindConcurrencyConflict, sagaengine.KindValidation:
		return err
	default:
		return sagaengine.DependencyFailure(err, "stock store")
	}
}

// requireAvailable 在重试前重新检查源仓位的可用库存。
func requireAvailable(itemID, locationID string, quantity int64) func(domain.StockLevel, bool) error {
	return func(level domain.StockLevel, exists bool) error {
		if !exists {
			return fmt.Errorf("%w: no stock for item %s at location %s", domain.ErrInsufficientStock, itemID, locationID)
		}
		if level.Available() < quantity {
			return fmt.Errorf("%w: available %d < requested %d at location %s",
				domain.ErrInsufficientStock, level.Available(), quantity, locationID)
		}
		return nil
	}
}

// anyLevel 用于入库方向，任何最新值都可以继续重试。
func anyLevel(domain.StockLevel, bool) error { return nil }
