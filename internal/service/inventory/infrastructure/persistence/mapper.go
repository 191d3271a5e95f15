package persistence

import "marketplace/internal/service/inventory/domain"

// ToDomainStockLevel 将数据库模型转换为领域模型
func ToDomainStockLevel(model *StockLevelModel) domain.StockLevel {
	return domain.StockLevel{
		InventoryItemID:  model.InventoryItemID,
		LocationID:       model.LocationID,
		StockedQuantity:  model.StockedQuantity,
		ReservedQuantity: model.ReservedQuantity,
		Version:          model.Version,
		UpdatedAt:        model.UpdatedAt,
	}
}

// FromDomainStockLevel 将领域模型转换为数据库模型
func FromDomainStockLevel(level domain.StockLevel) *StockLevelModel {
	return &StockLevelModel{
		InventoryItemID:  level.InventoryItemID,
		LocationID:       level.LocationID,
		StockedQuantity:  level.StockedQuantity,
		ReservedQuantity: level.ReservedQuantity,
		Version:          level.Version,
		UpdatedAt:        level.UpdatedAt,
	}
}

func ToDomainLedgerEntry(model *LedgerEntryModel) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:              model.ID,
		InventoryItemID: model.InventoryItemID,
		LocationID:      model.LocationID,
		VendorID:        model.VendorID,
		ChangeType:      domain.ChangeType(model.ChangeType),
		QuantityChange:  model.QuantityChange,
		QuantityBefore:  model.QuantityBefore,
		QuantityAfter:   model.QuantityAfter,
		StockVersion:    model.StockVersion,
		ReferenceType:   model.ReferenceType,
		ReferenceID:     model.ReferenceID,
		Notes:           model.Notes,
		CreatedBy:       model.CreatedBy,
		CreatedAt:       model.CreatedAt,
	}
}

func FromDomainLedgerEntry(e domain.LedgerEntry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:              e.ID,
		InventoryItemID: e.InventoryItemID,
		LocationID:      e.LocationID,
		StockVersion:    e.StockVersion,
		VendorID:        e.VendorID,
		ChangeType:      string(e.ChangeType),
		QuantityChange:  e.QuantityChange,
		QuantityBefore:  e.QuantityBefore,
		QuantityAfter:   e.QuantityAfter,
		ReferenceType:   e.ReferenceType,
		ReferenceID:     e.ReferenceID,
		Notes:           e.Notes,
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt,
	}
}
