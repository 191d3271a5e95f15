// internal/service/order/application/dto.go
package application

import (
	"marketplace/internal/service/order/application/saga"
	"marketplace/internal/service/order/domain"
)

// SplitOrderRequest 是拆单用例的输入。
type SplitOrderRequest struct {
	Order domain.Order `json:"order"`
}

// VendorOrderSplit 是拆单成功后的结果，父订单本身不会被修改。
type VendorOrderSplit struct {
	ParentOrderID string                   `json:"parent_order_id"`
	SagaID        string                   `json:"saga_id"`
	Partition     domain.VendorPartition   `json:"partition"`
	Orders        []saga.VendorOrder       `json:"orders"`
	Links         []domain.VendorOrderLink `json:"links"`
}
