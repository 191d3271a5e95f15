package persistence

import "time"

// StockLevelModel 对应数据库中的 stock_levels 表
type StockLevelModel struct {
	InventoryItemID  string `gorm:"primaryKey;size:64"`
	LocationID       string `gorm:"primaryKey;size:64"`
	StockedQuantity  int64  `gorm:"not null;default:0"`
	ReservedQuantity int64  `gorm:"not null;default:0"`
	Version          int64  `gorm:"not null;default:0"`
	UpdatedAt        time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockLevelModel) TableName() string {
	return "stock_levels"
}

// LedgerEntryModel 对应数据库中的 inventory_ledger 表。
// (inventory_item_id, location_id, stock_version) 唯一，保证同一版本只有一条账目。
type LedgerEntryModel struct {
	ID              string    `gorm:"primaryKey;size:36"`
	InventoryItemID string    `gorm:"size:64;not null;uniqueIndex:uk_ledger_version,priority:1"`
	LocationID      string    `gorm:"size:64;not null;uniqueIndex:uk_ledger_version,priority:2"`
	StockVersion    int64     `gorm:"not null;uniqueIndex:uk_ledger_version,priority:3"`
	VendorID        string    `gorm:"size:64;index"`
	ChangeType      string    `gorm:"size:16;not null"`
	QuantityChange  int64     `gorm:"not null"`
	QuantityBefore  int64     `gorm:"not null"`
	QuantityAfter   int64     `gorm:"not null"`
	ReferenceType   string    `gorm:"size:32"`
	ReferenceID     *string   `gorm:"size:64"`
	Notes           string    `gorm:"type:text"`
	CreatedBy       *string   `gorm:"size:64"`
	CreatedAt       time.Time `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (LedgerEntryModel) TableName() string {
	return "inventory_ledger"
}

// Models 返回需要迁移的全部模型。
func Models() []any {
	return []any{&StockLevelModel{}, &LedgerEntryModel{}}
}
