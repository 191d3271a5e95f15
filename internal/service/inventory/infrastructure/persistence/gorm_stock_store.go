package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"marketplace/internal/pkg/database"
	"marketplace/internal/service/inventory/domain"
)

// GormStockStore 是 StockLevelStore 的 GORM 实现。
// 比较并交换通过带条件的 UPDATE 完成，受影响行数为 0 即表示并发冲突。
type GormStockStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStockStore(db *gorm.DB) *GormStockStore {
	return &GormStockStore{db: db, now: time.Now}
}

func (r *GormStockStore) GetLevels(ctx context.Context, itemID string, locationIDs []string) ([]domain.StockLevel, error) {
	if len(locationIDs) == 0 {
		return nil, nil
	}
	var models []StockLevelModel
	err := r.db.WithContext(ctx).
		Where("inventory_item_id = ? AND location_id IN ?", itemID, locationIDs).
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "get stock levels of %s", itemID)
	}
	levels := make([]domain.StockLevel, 0, len(models))
	for i := range models {
		levels = append(levels, ToDomainStockLevel(&models[i]))
	}
	return levels, nil
}

func (r *GormStockStore) ListByLocations(ctx context.Context, locationIDs []string) ([]domain.StockLevel, error) {
	if len(locationIDs) == 0 {
		return nil, nil
	}
	var models []StockLevelModel
	err := r.db.WithContext(ctx).
		Where("location_id IN ?", locationIDs).
		Order("inventory_item_id, location_id").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list stock levels by location")
	}
	levels := make([]domain.StockLevel, 0, len(models))
	for i := range models {
		levels = append(levels, ToDomainStockLevel(&models[i]))
	}
	return levels, nil
}

func (r *GormStockStore) ApplyDelta(ctx context.Context, itemID, locationID string, delta, expectedStocked int64) (domain.StockLevel, error) {
	var result domain.StockLevel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.find(tx, itemID, locationID)
		if err != nil {
			return err
		}
		next, err := domain.PlanDelta(current, itemID, locationID, delta, expectedStocked, r.now().UTC())
		if err != nil {
			return err
		}

		if current == nil {
			if err := tx.Create(FromDomainStockLevel(next)).Error; err != nil {
				if database.IsDuplicateKey(err) {
					return fmt.Errorf("%w: stock row for item %s at location %s created concurrently",
						domain.ErrConcurrencyConflict, itemID, locationID)
				}
				return pkgerrors.Wrap(err, "insert stock level")
			}
			result = next
			return nil
		}

		// version 一并参与比较，防止读取之后 reserved_quantity 被其他事务修改
		res := tx.Model(&StockLevelModel{}).
			Where("inventory_item_id = ? AND location_id = ? AND stocked_quantity = ? AND version = ?",
				itemID, locationID, expectedStocked, current.Version).
			Updates(map[string]any{
				"stocked_quantity": next.StockedQuantity,
				"version":          next.Version,
				"updated_at":       next.UpdatedAt,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(res.Error, "update stock level")
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: item %s at location %s changed during update",
				domain.ErrConcurrencyConflict, itemID, locationID)
		}
		result = next
		return nil
	})
	if err != nil {
		return domain.StockLevel{}, err
	}
	return result, nil
}

// SetLevel 写入初始库存，版本号在原有基础上加一。
func (r *GormStockStore) SetLevel(ctx context.Context, level domain.StockLevel) (domain.StockLevel, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.find(tx, level.InventoryItemID, level.LocationID)
		if err != nil {
			return err
		}
		level.Version = 1
		if current != nil {
			level.Version = current.Version + 1
		}
		level.UpdatedAt = r.now().UTC()
		return pkgerrors.Wrap(tx.Save(FromDomainStockLevel(level)).Error, "save stock level")
	})
	if err != nil {
		return domain.StockLevel{}, err
	}
	return level, nil
}

func (r *GormStockStore) find(tx *gorm.DB, itemID, locationID string) (*domain.StockLevel, error) {
	var model StockLevelModel
	err := tx.Where("inventory_item_id = ? AND location_id = ?", itemID, locationID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find stock level")
	}
	level := ToDomainStockLevel(&model)
	return &level, nil
}
