package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/inventory/domain"
)

// snapshot 读取源与目标仓位的库存。只读步骤，没有补偿。
func (s *TransferSteps) snapshot(ctx context.Context, st *TransferState) (sagaengine.Compensation, error) {
	in := st.Input
	ctx, span := s.Tracer.Start(ctx, "saga.transfer.Snapshot")
	defer span.End()

	levels, err := s.Stock.GetLevels(ctx, in.InventoryItemID, []string{in.FromLocationID, in.ToLocationID})
	if err != nil {
		err = sagaengine.DependencyFailure(err, "read stock levels of %s", in.InventoryItemID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		return nil, err
	}

	source, ok := domain.FindLevel(levels, in.FromLocationID)
	if err := requireAvailable(in.InventoryItemID, in.FromLocationID, in.Quantity)(source, ok); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insufficient stock at source")
		return nil, err
	}
	st.Source = source
	st.Destination, st.DestinationExists = domain.FindLevel(levels, in.ToLocationID)
	if !st.DestinationExists {
		st.Destination = domain.StockLevel{InventoryItemID: in.InventoryItemID, LocationID: in.ToLocationID}
	}

	span.SetAttributes(
		attribute.Int64("source.stocked", source.StockedQuantity),
		attribute.Int64("source.available", source.Available()),
		attribute.Int64("destination.stocked", st.Destination.StockedQuantity),
		attribute.Bool("destination.exists", st.DestinationExists),
	)
	return nil, nil
}
