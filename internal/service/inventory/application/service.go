package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"marketplace/internal/pkg/logger"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/inventory/application/saga"
	"marketplace/internal/service/inventory/domain"
	"marketplace/internal/service/inventory/domain/port"
)

// DetailStockChanges 是失败报告中列出已生效库存变更的明细键。
const DetailStockChanges = "stock_changes"

// InventoryApplicationService 是库存调拨的应用服务：校验请求、运行 saga、发布结果事件。
type InventoryApplicationService struct {
	coordinator *sagaengine.Coordinator
	steps       *saga.TransferSteps
	stock       domain.StockLevelStore
	ledger      domain.LedgerStore
	publisher   port.EventPublisher
	guard       port.IdempotencyGuard
	tracer      trace.Tracer
	now         func() time.Time
}

// NewInventoryApplicationService 通过依赖注入创建服务实例。
func NewInventoryApplicationService(
	coordinator *sagaengine.Coordinator,
	stock domain.StockLevelStore,
	ledger domain.LedgerStore,
	publisher port.EventPublisher,
	guard port.IdempotencyGuard,
	maxAttempts int,
) *InventoryApplicationService {
	return &InventoryApplicationService{
		coordinator: coordinator,
		steps:       saga.NewTransferSteps(stock, ledger, maxAttempts),
		stock:       stock,
		ledger:      ledger,
		publisher:   publisher,
		guard:       guard,
		tracer:      otel.Tracer("marketplace/inventory"),
		now:         time.Now,
	}
}

// Transfer 在两个仓位之间调拨库存。
// 校验失败与起始快照中的库存不足直接返回；其他失败在补偿之后以 *sagaengine.Failure 返回。
func (s *InventoryApplicationService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryApplicationService.Transfer", trace.WithAttributes(
		attribute.String("inventory_item_id", req.InventoryItemID),
		attribute.String("from_location_id", req.FromLocationID),
		attribute.String("to_location_id", req.ToLocationID),
		attribute.Int64("quantity", req.Quantity),
	))
	defer span.End()

	if err := validateTransfer(req); err != nil {
		span.RecordError(err)
		return nil, err
	}

	release, err := s.acquire(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	transferID := "transfer_" + uuid.NewString()
	state := &saga.TransferState{Input: saga.TransferInput{
		TransferID:      transferID,
		InventoryItemID: req.InventoryItemID,
		FromLocationID:  req.FromLocationID,
		ToLocationID:    req.ToLocationID,
		Quantity:        req.Quantity,
		VendorID:        req.Actor.VendorID,
		UserID:          req.Actor.UserID,
		ReferenceID:     req.ReferenceID,
	}}

	inst, err := sagaengine.Run(ctx, s.coordinator, saga.SagaName, s.steps.Steps(), state)
	if err != nil {
		release()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")

		var failure *sagaengine.Failure
		if !errors.As(err, &failure) {
			return nil, err
		}
		if len(failure.Compensated) == 0 && len(failure.CompensationErrors) == 0 &&
			failure.Cause() == sagaengine.KindInsufficientStock {
			return nil, failure.Err
		}
		failure.SetDetail(DetailStockChanges, state.StockChanges(failure))
		return nil, err
	}

	result := &TransferResult{
		TransferID:      transferID,
		SagaID:          inst.ID,
		InventoryItemID: req.InventoryItemID,
		FromLocationID:  req.FromLocationID,
		ToLocationID:    req.ToLocationID,
		Quantity:        req.Quantity,
		FromLevel:       state.Debited,
		ToLevel:         state.Credited,
		Entries:         []domain.LedgerEntry{state.SourceEntry, state.DestinationEntry},
		Reference:       req.Reference,
		ReferenceID:     req.ReferenceID,
		CreatedAt:       s.now().UTC(),
	}
	s.publishCompleted(ctx, result, req.Actor.VendorID)

	logger.Ctx(ctx).Info().
		Str("transfer_id", transferID).
		Str("saga_id", inst.ID).
		Int64("quantity", req.Quantity).
		Msg("inventory transfer completed")
	return result, nil
}

func validateTransfer(req TransferRequest) error {
	switch {
	case req.InventoryItemID == "":
		return sagaengine.Validationf("inventory_item_id is required")
	case req.FromLocationID == "" || req.ToLocationID == "":
		return sagaengine.Validationf("from_location_id and to_location_id are required")
	case req.Quantity <= 0:
		return sagaengine.Validationf("quantity must be a positive integer, got %d", req.Quantity)
	case req.FromLocationID == req.ToLocationID:
		return sagaengine.Validationf("from_location_id and to_location_id must differ")
	case req.Actor.VendorID == "":
		return sagaengine.Validationf("vendor is required")
	case !slices.Contains(req.Actor.AuthorizedLocationIDs, req.FromLocationID) ||
		!slices.Contains(req.Actor.AuthorizedLocationIDs, req.ToLocationID):
		return fmt.Errorf("%w: you don't have access to one or both of these locations", domain.ErrLocationNotAllowed)
	}
	return nil
}

// acquire 对带 reference id 的请求做幂等保护，返回失败时释放 key 的函数。
func (s *InventoryApplicationService) acquire(ctx context.Context, req TransferRequest) (func(), error) {
	if req.ReferenceID == "" || s.guard == nil {
		return func() {}, nil
	}
	key := "transfer:" + req.Actor.VendorID + ":" + req.ReferenceID
	ok, err := s.guard.Acquire(ctx, key)
	if err != nil {
		return nil, sagaengine.DependencyFailure(err, "idempotency check")
	}
	if !ok {
		return nil, sagaengine.Validationf("transfer with reference_id %s already submitted", req.ReferenceID)
	}
	return func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to release idempotency key")
		}
	}, nil
}

// publishCompleted 发布调拨完成事件。发布失败不影响调拨结果，只记录日志。
func (s *InventoryApplicationService) publishCompleted(ctx context.Context, r *TransferResult, vendorID string) {
	if s.publisher == nil {
		return
	}
	event := domain.TransferCompleted{
		TransferID:      r.TransferID,
		SagaID:          r.SagaID,
		InventoryItemID: r.InventoryItemID,
		FromLocationID:  r.FromLocationID,
		ToLocationID:    r.ToLocationID,
		Quantity:        r.Quantity,
		VendorID:        vendorID,
		ReferenceID:     r.ReferenceID,
		OccurredAt:      r.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, r.InventoryItemID, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("transfer_id", r.TransferID).Msg("failed to publish transfer event")
	}
}

// History 查询商家的库存变动历史，结果限定在 actor 所属商家。
func (s *InventoryApplicationService) History(ctx context.Context, actor Actor, filter domain.LedgerFilter) (domain.LedgerPage, error) {
	if actor.VendorID == "" {
		return domain.LedgerPage{}, sagaengine.Validationf("vendor is required")
	}
	if filter.ChangeType != "" && !filter.ChangeType.Valid() {
		return domain.LedgerPage{}, sagaengine.Validationf("unknown change type %q", filter.ChangeType)
	}
	filter.VendorID = actor.VendorID
	return s.ledger.List(ctx, filter)
}

// Levels 返回商品在 actor 可访问仓位上的库存。
func (s *InventoryApplicationService) Levels(ctx context.Context, actor Actor, itemID string) ([]domain.StockLevel, error) {
	if itemID == "" {
		return nil, sagaengine.Validationf("inventory_item_id is required")
	}
	return s.stock.GetLevels(ctx, itemID, actor.AuthorizedLocationIDs)
}

// Restock 为 actor 的一个仓位入库，库存与 restock 账目在同一个 saga 中写入。
func (s *InventoryApplicationService) Restock(ctx context.Context, req RestockRequest) (*RestockResult, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryApplicationService.Restock", trace.WithAttributes(
		attribute.String("inventory_item_id", req.InventoryItemID),
		attribute.String("location_id", req.LocationID),
		attribute.Int64("quantity", req.Quantity),
	))
	defer span.End()

	switch {
	case req.InventoryItemID == "" || req.LocationID == "":
		return nil, sagaengine.Validationf("inventory_item_id and location_id are required")
	case req.Quantity <= 0:
		return nil, sagaengine.Validationf("quantity must be a positive integer, got %d", req.Quantity)
	case req.Actor.VendorID == "":
		return nil, sagaengine.Validationf("vendor is required")
	case !slices.Contains(req.Actor.AuthorizedLocationIDs, req.LocationID):
		return nil, fmt.Errorf("%w: you don't have access to location %s", domain.ErrLocationNotAllowed, req.LocationID)
	}

	restockID := "restock_" + uuid.NewString()
	state := &saga.RestockState{Input: saga.RestockInput{
		RestockID:       restockID,
		InventoryItemID: req.InventoryItemID,
		LocationID:      req.LocationID,
		Quantity:        req.Quantity,
		VendorID:        req.Actor.VendorID,
		UserID:          req.Actor.UserID,
		ReferenceID:     req.ReferenceID,
		Notes:           req.Notes,
	}}
	inst, err := sagaengine.Run(ctx, s.coordinator, saga.RestockSagaName, s.steps.RestockSteps(), state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "restock failed")
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("restock_id", restockID).
		Str("location_id", req.LocationID).
		Int64("quantity", req.Quantity).
		Msg("inventory restocked")
	return &RestockResult{RestockID: restockID, SagaID: inst.ID, Level: state.Credited, Entry: state.Entry}, nil
}

// Alerts 列出可用库存不高于阈值的记录，按可用量升序排列。
func (s *InventoryApplicationService) Alerts(ctx context.Context, actor Actor, q AlertsQuery) (AlertsResult, error) {
	if q.Threshold < 0 {
		return AlertsResult{}, sagaengine.Validationf("threshold must not be negative, got %d", q.Threshold)
	}
	if q.Threshold == 0 {
		q.Threshold = DefaultAlertThreshold
	}
	locations := actor.AuthorizedLocationIDs
	if q.LocationID != "" {
		if !slices.Contains(locations, q.LocationID) {
			return AlertsResult{}, fmt.Errorf("%w: you don't have access to location %s", domain.ErrLocationNotAllowed, q.LocationID)
		}
		locations = []string{q.LocationID}
	}
	result := AlertsResult{Alerts: []StockAlert{}}
	if len(locations) == 0 {
		return result, nil
	}

	levels, err := s.stock.ListByLocations(ctx, locations)
	if err != nil {
		return AlertsResult{}, sagaengine.DependencyFailure(err, "list stock levels")
	}
	for _, level := range levels {
		available := level.Available()
		if available > q.Threshold {
			continue
		}
		alert := StockAlert{
			AlertType:         AlertLowStock,
			InventoryItemID:   level.InventoryItemID,
			LocationID:        level.LocationID,
			StockedQuantity:   level.StockedQuantity,
			ReservedQuantity:  level.ReservedQuantity,
			AvailableQuantity: available,
			Threshold:         q.Threshold,
		}
		if available == 0 {
			alert.AlertType = AlertOutOfStock
			result.Summary.OutOfStock++
		} else {
			result.Summary.LowStock++
		}
		result.Alerts = append(result.Alerts, alert)
	}
	sort.SliceStable(result.Alerts, func(i, j int) bool {
		a, b := result.Alerts[i], result.Alerts[j]
		if a.AvailableQuantity != b.AvailableQuantity {
			return a.AvailableQuantity < b.AvailableQuantity
		}
		if a.InventoryItemID != b.InventoryItemID {
			return a.InventoryItemID < b.InventoryItemID
		}
		return a.LocationID < b.LocationID
	})
	result.Summary.TotalAlerts = len(result.Alerts)
	return result, nil
}

// Reconcile 对比某个仓位的账目与当前库存。
func (s *InventoryApplicationService) Reconcile(ctx context.Context, actor Actor, itemID, locationID string) (domain.Reconciliation, error) {
	if itemID == "" || locationID == "" {
		return domain.Reconciliation{}, sagaengine.Validationf("inventory_item_id and location_id are required")
	}
	if !slices.Contains(actor.AuthorizedLocationIDs, locationID) {
		return domain.Reconciliation{}, fmt.Errorf("%w: you don't have access to location %s", domain.ErrLocationNotAllowed, locationID)
	}
	levels, err := s.stock.GetLevels(ctx, itemID, []string{locationID})
	if err != nil {
		return domain.Reconciliation{}, err
	}
	var current *domain.StockLevel
	if level, ok := domain.FindLevel(levels, locationID); ok {
		current = &level
	}
	return s.ledger.Reconcile(ctx, itemID, locationID, current)
}
