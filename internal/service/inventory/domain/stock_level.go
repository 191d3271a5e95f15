package domain

import (
	"fmt"
	"time"
)

// StockLevel 是某个商品在某个仓位上的库存。
type StockLevel struct {
	InventoryItemID  string    `json:"inventory_item_id"`
	LocationID       string    `json:"location_id"`
	StockedQuantity  int64     `json:"stocked_quantity"`
	ReservedQuantity int64     `json:"reserved_quantity"`
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available 是可以被转出或售卖的数量。
func (s StockLevel) Available() int64 {
	return s.StockedQuantity - s.ReservedQuantity
}

// PlanDelta 计算一次比较并交换更新的结果，所有存储实现共享同一套规则。
// current 为 nil 表示该 (item, location) 还没有库存记录，只有正的 delta 可以创建新记录。
// 返回的 StockLevel 是应当写入的新状态，错误在任何写入之前给出。
func PlanDelta(current *StockLevel, itemID, locationID string, delta, expectedStocked int64, now time.Time) (StockLevel, error) {
	if current == nil {
		switch {
		case delta < 0:
			return StockLevel{}, fmt.Errorf("%w: no stock for item %s at location %s", ErrInsufficientStock, itemID, locationID)
		case delta == 0:
			return StockLevel{}, fmt.Errorf("%w: item %s at location %s", ErrZeroDelta, itemID, locationID)
		case expectedStocked != 0:
			return StockLevel{}, fmt.Errorf("%w: expected stocked %d but no row exists for item %s at location %s",
				ErrConcurrencyConflict, expectedStocked, itemID, locationID)
		}
		return StockLevel{
			InventoryItemID: itemID,
			LocationID:      locationID,
			StockedQuantity: delta,
			Version:         1,
			UpdatedAt:       now,
		}, nil
	}

	if current.StockedQuantity != expectedStocked {
		return StockLevel{}, fmt.Errorf("%w: item %s at location %s has stocked %d, expected %d",
			ErrConcurrencyConflict, itemID, locationID, current.StockedQuantity, expectedStocked)
	}
	next := current.StockedQuantity + delta
	if next < 0 || next < current.ReservedQuantity {
		return StockLevel{}, fmt.Errorf("%w: item %s at location %s would go to %d (reserved %d)",
			ErrInsufficientStock, itemID, locationID, next, current.ReservedQuantity)
	}

	updated := *current
	updated.StockedQuantity = next
	updated.Version = current.Version + 1
	updated.UpdatedAt = now
	return updated, nil
}
