package port

import "context"

// EventPublisher 是领域事件的出站端口，由 kafka 适配器实现。
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// IdempotencyGuard 防止同一个业务请求（按 reference id）被重复执行。
type IdempotencyGuard interface {
	// Acquire 返回 false 表示该 key 已被占用。
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// LocationDirectory 返回商家关联的仓位，用于在调拨前做权限校验。
type LocationDirectory interface {
	LocationsForVendor(ctx context.Context, vendorID string) ([]string, error)
}
