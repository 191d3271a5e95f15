package infrastructure

import "time"

// VendorModel 对应数据库中的 vendors 表
type VendorModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Handle    string `gorm:"size:128;uniqueIndex"`
	Name      string `gorm:"size:255"`
	Logo      string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (VendorModel) TableName() string {
	return "vendors"
}

// VendorLocationModel 对应数据库中的 vendor_locations 表，记录商家与仓位的关联
type VendorLocationModel struct {
	VendorID        string `gorm:"primaryKey;size:64"`
	StockLocationID string `gorm:"primaryKey;size:64"`
	CreatedAt       time.Time
}

// TableName 指定 GORM 应该使用的表名
func (VendorLocationModel) TableName() string {
	return "vendor_locations"
}

// Models 返回需要迁移的全部模型。
func Models() []any {
	return []any{&VendorModel{}, &VendorLocationModel{}}
}
