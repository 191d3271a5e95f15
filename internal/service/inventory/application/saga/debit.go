package saga

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"marketplace/internal/pkg/logger"
	sagaengine "marketplace/internal/saga"
)

// debitSource 从源仓位扣减库存，冲突时重新读取并重新检查可用量。
func (s *TransferSteps) debitSource(ctx context.Context, st *TransferState) (sagaengine.Compensation, error) {
	in := st.Input
	ctx, span := s.Tracer.Start(ctx, "saga.transfer.DebitSource")
	defer span.End()
	span.SetAttributes(attribute.String("location_id", in.FromLocationID), attribute.Int64("quantity", in.Quantity))

	level, err := s.applyWithRetry(ctx, in.InventoryItemID, in.FromLocationID, -in.Quantity, st.Source.StockedQuantity,
		s.MaxAttempts, requireAvailable(in.InventoryItemID, in.FromLocationID, in.Quantity))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit source failed")
		return nil, err
	}
	st.Debited = level
	span.SetAttributes(attribute.Int64("stocked_after", level.StockedQuantity))

	return s.compensateDelta(in.InventoryItemID, in.FromLocationID, +in.Quantity, "RestoreSource"), nil
}

// compensateDelta 返回一个幂等的补偿：对最新读取的库存再应用 delta，成功一次之后的调用都是空操作。
func (s *TransferSteps) compensateDelta(itemID, locationID string, delta int64, name string) sagaengine.Compensation {
	var (
		mu   sync.Mutex
		done bool
	)
	return func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return nil
		}

		ctx, span := s.Tracer.Start(ctx, "saga.compensation."+name)
		defer span.End()
		span.SetAttributes(attribute.String("location_id", locationID), attribute.Int64("delta", delta))

		latest, _, err := s.read(ctx, itemID, locationID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		// 补偿方向同样受库存不变量约束，最新值不足以撤销时直接失败，交给人工处理
		if _, err := s.applyWithRetry(ctx, itemID, locationID, delta, latest.StockedQuantity, s.CompensationAttempts, anyLevel); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compensation failed")
			logger.Ctx(ctx).Error().Err(err).
				Str("item_id", itemID).Str("location_id", locationID).Int64("delta", delta).
				Msg("stock compensation failed")
			return err
		}
		done = true
		return nil
	}
}
