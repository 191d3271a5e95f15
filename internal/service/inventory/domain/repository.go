package domain

import "context"

// StockLevelStore 持有当前库存，所有写入都经过 ApplyDelta 的比较并交换。
type StockLevelStore interface {
	// GetLevels 读取快照，不加锁；不存在的仓位不会出现在结果中。
	GetLevels(ctx context.Context, itemID string, locationIDs []string) ([]StockLevel, error)
	// ListByLocations 返回这些仓位上所有库存项的快照。
	ListByLocations(ctx context.Context, locationIDs []string) ([]StockLevel, error)
	// ApplyDelta 仅当存储中的 stocked_quantity 仍等于 expectedStocked 时写入 expectedStocked+delta。
	ApplyDelta(ctx context.Context, itemID, locationID string, delta, expectedStocked int64) (StockLevel, error)
}

// LedgerStore 是只追加的库存账目。没有更新与删除操作。
type LedgerStore interface {
	Append(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
	List(ctx context.Context, filter LedgerFilter) (LedgerPage, error)
	Reconcile(ctx context.Context, itemID, locationID string, current *StockLevel) (Reconciliation, error)
}

// FindLevel 在 GetLevels 的结果中查找指定仓位。
func FindLevel(levels []StockLevel, locationID string) (StockLevel, bool) {
	for _, l := range levels {
		if l.LocationID == locationID {
			return l, true
		}
	}
	return StockLevel{}, false
}
