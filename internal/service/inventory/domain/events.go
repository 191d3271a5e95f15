package domain

import "time"

// TransferCompleted 在一次库存调拨成功后发布。
type TransferCompleted struct {
	TransferID      string    `json:"transfer_id"`
	SagaID          string    `json:"saga_id"`
	InventoryItemID string    `json:"inventory_item_id"`
	FromLocationID  string    `json:"from_location_id"`
	ToLocationID    string    `json:"to_location_id"`
	Quantity        int64     `json:"quantity"`
	VendorID        string    `json:"vendor_id"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (TransferCompleted) EventType() string { return "InventoryTransferCompleted" }
