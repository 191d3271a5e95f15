package port

import (
	"context"

	"marketplace/internal/service/order/domain"
	vendordomain "marketplace/internal/service/seller/domain"
)

// OrderService 是外部订单服务的出站端口。
type OrderService interface {
	// CreateOrder 同步创建订单并返回订单 id。
	CreateOrder(ctx context.Context, input domain.CreateOrderInput) (string, error)
	// CancelOrder 取消订单；对已取消的订单重复调用返回 nil。
	CancelOrder(ctx context.Context, orderID string) error
}

// VendorDirectory 解析商家记录，找不到时返回 vendordomain.ErrVendorNotFound。
type VendorDirectory interface {
	GetVendor(ctx context.Context, id string) (*vendordomain.Vendor, error)
}

// EventPublisher 是领域事件的出站端口，由 kafka 适配器实现。
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// IdempotencyGuard 防止同一个父订单被重复拆分。
type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
