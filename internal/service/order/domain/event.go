// internal/service/order/domain/event.go
package domain

import "time"

// VendorOrdersCreated 在父订单成功拆分为商家子订单后发布
type VendorOrdersCreated struct {
	ParentOrderID string            `json:"parent_order_id"`
	SagaID        string            `json:"saga_id"`
	Orders        []VendorOrderLink `json:"orders"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func (VendorOrdersCreated) EventType() string { return "VendorOrdersCreated" }
