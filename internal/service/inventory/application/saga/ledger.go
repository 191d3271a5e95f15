package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/inventory/domain"
)

const referenceTypeTransfer = "transfer"

// ledgerSource 为源仓位写入调出账目。账目不可变，因此没有补偿。
func (s *TransferSteps) ledgerSource(ctx context.Context, st *TransferState) (sagaengine.Compensation, error) {
	in := st.Input
	entry := s.transferEntry(in, in.FromLocationID, -in.Quantity, st.Debited,
		fmt.Sprintf("Transferred %d units to location %s", in.Quantity, in.ToLocationID))

	saved, err := s.appendEntry(ctx, "saga.transfer.LedgerSource", entry)
	if err != nil {
		return nil, err
	}
	st.SourceEntry = saved
	return nil, nil
}

// ledgerDestination 为目标仓位写入调入账目。
func (s *TransferSteps) ledgerDestination(ctx context.Context, st *TransferState) (sagaengine.Compensation, error) {
	in := st.Input
	entry := s.transferEntry(in, in.ToLocationID, in.Quantity, st.Credited,
		fmt.Sprintf("Received %d units from location %s", in.Quantity, in.FromLocationID))

	saved, err := s.appendEntry(ctx, "saga.transfer.LedgerDestination", entry)
	if err != nil {
		return nil, err
	}
	st.DestinationEntry = saved
	return nil, nil
}

// transferEntry 以比较并交换的实际结果构造账目，before/after 与版本号因此和库存严格对应。
func (s *TransferSteps) transferEntry(in TransferInput, locationID string, change int64, after domain.StockLevel, notes string) domain.LedgerEntry {
	entry := domain.LedgerEntry{
		InventoryItemID: in.InventoryItemID,
		LocationID:      locationID,
		VendorID:        in.VendorID,
		ChangeType:      domain.ChangeTransfer,
		QuantityChange:  change,
		QuantityBefore:  after.StockedQuantity - change,
		QuantityAfter:   after.StockedQuantity,
		StockVersion:    after.Version,
		ReferenceType:   referenceTypeTransfer,
		Notes:           notes,
	}
	// 没有外部 reference id 时以调拨 id 关联账目
	ref := in.ReferenceID
	if ref == "" {
		ref = in.TransferID
	}
	if ref != "" {
		entry.ReferenceID = &ref
	}
	if in.UserID != "" {
		user := in.UserID
		entry.CreatedBy = &user
	}
	return entry
}

func (s *TransferSteps) appendEntry(ctx context.Context, spanName string, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	ctx, span := s.Tracer.Start(ctx, spanName)
	defer span.End()

	saved, err := s.Ledger.Append(ctx, entry)
	if err != nil {
		if sagaengine.KindOf(err) != sagaengine.KindValidation {
			err = sagaengine.DependencyFailure(err, "append ledger entry for %s", entry.LocationID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger append failed")
		return domain.LedgerEntry{}, err
	}
	return saved, nil
}
