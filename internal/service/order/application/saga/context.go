// Package saga 定义订单拆分 saga：每个商家一个步骤，按 vendor id 升序执行。
package saga

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/order/domain"
	"marketplace/internal/service/order/domain/port"
)

const (
	SagaName = "create_vendor_orders"

	stepPrefix = "vendor_order:"
)

// StepName 返回某个商家对应的步骤名。
func StepName(vendorID string) string { return stepPrefix + vendorID }

// VendorOrder 是为某个商家创建的子订单。
type VendorOrder struct {
	VendorID string            `json:"vendor_id"`
	OrderID  string            `json:"order_id"`
	Items    []domain.LineItem `json:"items"`
}

// FanoutState 在步骤之间传递：父订单、分区，以及已经创建的子订单与关联。
type FanoutState struct {
	Parent    domain.Order
	Partition domain.VendorPartition

	Orders []VendorOrder
	Links  []domain.VendorOrderLink
	// Abandoned 是创建成功但关联失败、由步骤自己取消的子订单
	Abandoned []CreatedOrder
}

// CreatedOrder 描述 saga 失败时某个曾经创建过的子订单，以及它最终是否被取消。
type CreatedOrder struct {
	VendorID  string `json:"vendor_id"`
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
}

// CancelInput 是撤销某个商家步骤所需的输入。
type CancelInput struct {
	VendorID string `json:"vendor_id"`
	OrderID  string `json:"order_id"`
}

func (st *FanoutState) order(vendorID string) (VendorOrder, bool) {
	for _, o := range st.Orders {
		if o.VendorID == vendorID {
			return o, true
		}
	}
	return VendorOrder{}, false
}

// CreatedOrders 汇总失败时所有创建过的子订单：成功步骤的订单按补偿结果标记，
// 再加上步骤内部已经取消的订单。
func (st *FanoutState) CreatedOrders(failure *sagaengine.Failure) []CreatedOrder {
	out := make([]CreatedOrder, 0, len(st.Orders)+len(st.Abandoned))
	for _, o := range st.Orders {
		rec, _ := failure.Step(StepName(o.VendorID))
		out = append(out, CreatedOrder{
			VendorID:  o.VendorID,
			OrderID:   o.OrderID,
			Cancelled: rec.Status == sagaengine.StepCompensated,
		})
	}
	return append(out, st.Abandoned...)
}

// FanoutSteps 持有步骤所需的外部依赖，通过构造函数注入。
type FanoutSteps struct {
	Orders  port.OrderService
	Vendors port.VendorDirectory
	Links   domain.LinkStore
	Tracer  trace.Tracer
}

func NewFanoutSteps(orders port.OrderService, vendors port.VendorDirectory, links domain.LinkStore) *FanoutSteps {
	return &FanoutSteps{
		Orders:  orders,
		Vendors: vendors,
		Links:   links,
		Tracer:  otel.Tracer("marketplace/order"),
	}
}

// Steps 为分区中的每个商家生成一个步骤，顺序与分区一致。
func (s *FanoutSteps) Steps(partition domain.VendorPartition) []sagaengine.Step[FanoutState] {
	steps := make([]sagaengine.Step[FanoutState], 0, len(partition))
	for _, group := range partition {
		vendorID := group.VendorID
		steps = append(steps, sagaengine.Step[FanoutState]{
			Name:    StepName(vendorID),
			Forward: s.createVendorOrder(group),
			Output: func(st *FanoutState) (any, any) {
				o, ok := st.order(vendorID)
				if !ok {
					return nil, nil
				}
				return o, CancelInput{VendorID: o.VendorID, OrderID: o.OrderID}
			},
		})
	}
	return steps
}
