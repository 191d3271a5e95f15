// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"marketplace/internal/pkg/logger"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/order/application/saga"
	"marketplace/internal/service/order/domain"
	"marketplace/internal/service/order/domain/port"
)

// DetailCreatedOrders 是失败报告中列出已创建子订单的明细键。
const DetailCreatedOrders = "created_orders"

// OrderApplicationService 把一个买家订单拆分为多个商家子订单。
type OrderApplicationService struct {
	coordinator *sagaengine.Coordinator
	steps       *saga.FanoutSteps
	links       domain.LinkStore
	publisher   port.EventPublisher
	guard       port.IdempotencyGuard
	tracer      trace.Tracer
	now         func() time.Time
}

func NewOrderApplicationService(
	coordinator *sagaengine.Coordinator,
	orders port.OrderService,
	vendors port.VendorDirectory,
	links domain.LinkStore,
	publisher port.EventPublisher,
	guard port.IdempotencyGuard,
) *OrderApplicationService {
	return &OrderApplicationService{
		coordinator: coordinator,
		steps:       saga.NewFanoutSteps(orders, vendors, links),
		links:       links,
		publisher:   publisher,
		guard:       guard,
		tracer:      otel.Tracer("marketplace/order"),
		now:         time.Now,
	}
}

// Split 为父订单中的每个商家创建子订单。
// 分区失败直接返回校验错误；任何商家步骤失败都会取消已创建的子订单，再以 *sagaengine.Failure 返回。
func (s *OrderApplicationService) Split(ctx context.Context, req SplitOrderRequest) (*VendorOrderSplit, error) {
	parent := req.Order
	ctx, span := s.tracer.Start(ctx, "OrderApplicationService.Split", trace.WithAttributes(
		attribute.String("parent_order_id", parent.ID),
		attribute.Int("items", len(parent.Items)),
	))
	defer span.End()

	if parent.ID == "" {
		err := sagaengine.Validationf("order id is required")
		span.RecordError(err)
		return nil, err
	}
	partition, err := PartitionByVendor(parent.Items)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("vendors", len(partition)))

	release, err := s.acquire(ctx, parent.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	state := &saga.FanoutState{Parent: parent, Partition: partition}
	inst, err := sagaengine.Run(ctx, s.coordinator, saga.SagaName, s.steps.Steps(partition), state)
	if err != nil {
		release()
		span.RecordError(err)
		span.SetStatus(codes.Error, "split failed")
		var failure *sagaengine.Failure
		if errors.As(err, &failure) {
			failure.SetDetail(DetailCreatedOrders, state.CreatedOrders(failure))
		}
		return nil, err
	}

	result := &VendorOrderSplit{
		ParentOrderID: parent.ID,
		SagaID:        inst.ID,
		Partition:     partition,
		Orders:        state.Orders,
		Links:         state.Links,
	}
	s.publishCreated(ctx, result)

	logger.Ctx(ctx).Info().
		Str("parent_order_id", parent.ID).
		Str("saga_id", inst.ID).
		Int("vendor_orders", len(result.Orders)).
		Msg("order split into vendor orders")
	return result, nil
}

// acquire 保证同一个父订单只会被拆分一次，返回失败时释放 key 的函数。
func (s *OrderApplicationService) acquire(ctx context.Context, parentID string) (func(), error) {
	if s.guard == nil {
		return func() {}, nil
	}
	key := "fanout:" + parentID
	ok, err := s.guard.Acquire(ctx, key)
	if err != nil {
		return nil, sagaengine.DependencyFailure(err, "idempotency check")
	}
	if !ok {
		return nil, sagaengine.Validationf("order %s is already being split", parentID)
	}
	return func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to release idempotency key")
		}
	}, nil
}

func (s *OrderApplicationService) publishCreated(ctx context.Context, r *VendorOrderSplit) {
	if s.publisher == nil {
		return
	}
	event := domain.VendorOrdersCreated{
		ParentOrderID: r.ParentOrderID,
		SagaID:        r.SagaID,
		Orders:        r.Links,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, r.ParentOrderID, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("parent_order_id", r.ParentOrderID).Msg("failed to publish vendor orders event")
	}
}

// VendorOrders 返回父订单拆分出的子订单关联。
func (s *OrderApplicationService) VendorOrders(ctx context.Context, parentOrderID string) ([]domain.VendorOrderLink, error) {
	if parentOrderID == "" {
		return nil, sagaengine.Validationf("order id is required")
	}
	links, err := s.links.ListByParent(ctx, parentOrderID)
	if err != nil {
		return nil, sagaengine.DependencyFailure(err, "list vendor orders of %s", parentOrderID)
	}
	return links, nil
}
