package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	sagaengine "marketplace/internal/saga"
)

// creditDestination 为目标仓位增加库存；目标仓位不存在时由存储创建。
func (s *TransferSteps) creditDestination(ctx context.Context, st *TransferState) (sagaengine.Compensation, error) {
	in := st.Input
	ctx, span := s.Tracer.Start(ctx, "saga.transfer.CreditDestination")
	defer span.End()
	span.SetAttributes(attribute.String("location_id", in.ToLocationID), attribute.Int64("quantity", in.Quantity))

	level, err := s.applyWithRetry(ctx, in.InventoryItemID, in.ToLocationID, in.Quantity, st.Destination.StockedQuantity,
		s.MaxAttempts, anyLevel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credit destination failed")
		return nil, err
	}
	st.Credited = level
	span.SetAttributes(attribute.Int64("stocked_after", level.StockedQuantity))

	return s.compensateDelta(in.InventoryItemID, in.ToLocationID, -in.Quantity, "RevokeDestination"), nil
}
