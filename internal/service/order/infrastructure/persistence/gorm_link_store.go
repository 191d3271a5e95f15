package persistence

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/service/order/domain"
)

// VendorOrderLinkModel 对应数据库中的 vendor_order_links 表
type VendorOrderLinkModel struct {
	VendorID      string `gorm:"primaryKey;size:64"`
	OrderID       string `gorm:"primaryKey;size:64"`
	ParentOrderID string `gorm:"size:64;index"`
	CreatedAt     time.Time
}

// TableName 指定 GORM 应该使用的表名
func (VendorOrderLinkModel) TableName() string {
	return "vendor_order_links"
}

// Models 返回需要迁移的全部模型。
func Models() []any {
	return []any{&VendorOrderLinkModel{}}
}

// GormLinkStore 是 domain.LinkStore 的 GORM 实现
type GormLinkStore struct {
	db *gorm.DB
}

func NewGormLinkStore(db *gorm.DB) *GormLinkStore {
	return &GormLinkStore{db: db}
}

// Save 使用 ON CONFLICT DO NOTHING，重复保存同一关联不报错。
func (r *GormLinkStore) Save(ctx context.Context, link domain.VendorOrderLink) error {
	model := VendorOrderLinkModel{
		VendorID:      link.VendorID,
		OrderID:       link.OrderID,
		ParentOrderID: link.ParentOrderID,
		CreatedAt:     link.CreatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
	return errors.Wrapf(err, "save link %s/%s", link.VendorID, link.OrderID)
}

func (r *GormLinkStore) Delete(ctx context.Context, vendorID, orderID string) error {
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND order_id = ?", vendorID, orderID).
		Delete(&VendorOrderLinkModel{}).Error
	return errors.Wrapf(err, "delete link %s/%s", vendorID, orderID)
}

func (r *GormLinkStore) ListByParent(ctx context.Context, parentOrderID string) ([]domain.VendorOrderLink, error) {
	var models []VendorOrderLinkModel
	err := r.db.WithContext(ctx).
		Where("parent_order_id = ?", parentOrderID).
		Order("vendor_id, order_id").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list links of parent %s", parentOrderID)
	}
	links := make([]domain.VendorOrderLink, len(models))
	for i, m := range models {
		links[i] = domain.VendorOrderLink{
			VendorID:      m.VendorID,
			OrderID:       m.OrderID,
			ParentOrderID: m.ParentOrderID,
			CreatedAt:     m.CreatedAt,
		}
	}
	return links, nil
}
