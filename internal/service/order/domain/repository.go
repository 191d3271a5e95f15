// internal/service/order/domain/repository.go
package domain

import "context"

// LinkStore 定义了商家与子订单关联的持久化接口。
// 它位于领域层，但由基础设施层实现。
type LinkStore interface {
	// Save 保存一条关联；同一 (vendor, order) 重复保存视为成功。
	Save(ctx context.Context, link VendorOrderLink) error

	// Delete 删除一条关联，不存在时不报错。
	Delete(ctx context.Context, vendorID, orderID string) error

	// ListByParent 返回某个父订单拆分出的全部关联，按商家排序。
	ListByParent(ctx context.Context, parentOrderID string) ([]VendorOrderLink, error)
}
