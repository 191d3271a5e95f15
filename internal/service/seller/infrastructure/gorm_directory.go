package infrastructure

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"marketplace/internal/service/seller/domain"
)

// GormDirectory 是商家与仓位关联的只读 GORM 实现
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// GetVendor 使用 GORM 从数据库中查找商家
func (r *GormDirectory) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	var model VendorModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrVendorNotFound
		}
		return nil, pkgerrors.Wrapf(err, "get vendor %s", id)
	}
	return ToDomainVendor(&model), nil
}

// LocationsForVendor 返回商家关联的全部仓位 id，按 id 排序。
func (r *GormDirectory) LocationsForVendor(ctx context.Context, vendorID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&VendorLocationModel{}).
		Where("vendor_id = ?", vendorID).
		Order("stock_location_id").
		Pluck("stock_location_id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list locations of vendor %s", vendorID)
	}
	return ids, nil
}

// ToDomainVendor 将数据库模型转换为领域模型
func ToDomainVendor(model *VendorModel) *domain.Vendor {
	if model == nil {
		return nil
	}
	return &domain.Vendor{
		ID:      model.ID,
		Handle:  model.Handle,
		Name:    model.Name,
		LogoURL: model.Logo,
	}
}
