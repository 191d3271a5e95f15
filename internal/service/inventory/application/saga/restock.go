package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/inventory/domain"
)

const (
	RestockSagaName = "restock_inventory"

	StepCreditLocation = "credit_location"
	StepLedgerRestock  = "ledger_restock"

	referenceTypeRestock = "restock"
)

// RestockInput 是一次入库：给单个仓位增加库存并记一条 restock 账目。
type RestockInput struct {
	RestockID       string
	InventoryItemID string
	LocationID      string
	Quantity        int64
	VendorID        string
	UserID          string
	ReferenceID     string
	Notes           string
}

type RestockState struct {
	Input RestockInput

	Credited domain.StockLevel
	Entry    domain.LedgerEntry
}

// RestockSteps 返回入库 saga 的步骤。入库与调拨共用同一套存储和重试参数。
func (s *TransferSteps) RestockSteps() []sagaengine.Step[RestockState] {
	return []sagaengine.Step[RestockState]{
		{Name: StepCreditLocation, Forward: s.creditLocation, Output: func(st *RestockState) (any, any) {
			in := st.Input
			return st.Credited, DeltaCompensation{InventoryItemID: in.InventoryItemID, LocationID: in.LocationID, Delta: -in.Quantity}
		}},
		{Name: StepLedgerRestock, Forward: s.ledgerRestock, Output: func(st *RestockState) (any, any) {
			return st.Entry, nil
		}},
	}
}

func (s *TransferSteps) creditLocation(ctx context.Context, st *RestockState) (sagaengine.Compensation, error) {
	in := st.Input
	ctx, span := s.Tracer.Start(ctx, "saga.restock.CreditLocation")
	defer span.End()
	span.SetAttributes(attribute.String("location_id", in.LocationID), attribute.Int64("quantity", in.Quantity))

	current, _, err := s.read(ctx, in.InventoryItemID, in.LocationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	level, err := s.applyWithRetry(ctx, in.InventoryItemID, in.LocationID, in.Quantity, current.StockedQuantity,
		s.MaxAttempts, anyLevel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credit location failed")
		return nil, err
	}
	st.Credited = level
	span.SetAttributes(attribute.Int64("stocked_after", level.StockedQuantity))

	return s.compensateDelta(in.InventoryItemID, in.LocationID, -in.Quantity, "RevokeRestock"), nil
}

func (s *TransferSteps) ledgerRestock(ctx context.Context, st *RestockState) (sagaengine.Compensation, error) {
	in := st.Input
	after := st.Credited
	entry := domain.LedgerEntry{
		InventoryItemID: in.InventoryItemID,
		LocationID:      in.LocationID,
		VendorID:        in.VendorID,
		ChangeType:      domain.ChangeRestock,
		QuantityChange:  in.Quantity,
		QuantityBefore:  after.StockedQuantity - in.Quantity,
		QuantityAfter:   after.StockedQuantity,
		StockVersion:    after.Version,
		ReferenceType:   referenceTypeRestock,
		Notes:           in.Notes,
	}
	if entry.Notes == "" {
		entry.Notes = fmt.Sprintf("Restocked %d units", in.Quantity)
	}
	ref := in.ReferenceID
	if ref == "" {
		ref = in.RestockID
	}
	entry.ReferenceID = &ref
	if in.UserID != "" {
		user := in.UserID
		entry.CreatedBy = &user
	}

	saved, err := s.appendEntry(ctx, "saga.restock.LedgerRestock", entry)
	if err != nil {
		return nil, err
	}
	st.Entry = saved
	return nil, nil
}
