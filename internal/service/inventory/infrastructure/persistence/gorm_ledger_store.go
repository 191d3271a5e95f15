package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/pkg/database"
	"marketplace/internal/service/inventory/domain"
)

// GormLedgerStore 是 LedgerStore 的 GORM 实现，只有 INSERT，没有 UPDATE/DELETE。
type GormLedgerStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db, now: time.Now}
}

func (r *GormLedgerStore) Append(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if err := entry.Validate(); err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// FOR UPDATE 会在相邻版本上加间隙锁，相邻版本的并发写入因此串行化
		var neighbours []LedgerEntryModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("inventory_item_id = ? AND location_id = ? AND stock_version IN ?",
				entry.InventoryItemID, entry.LocationID,
				[]int64{entry.StockVersion - 1, entry.StockVersion, entry.StockVersion + 1}).
			Find(&neighbours).Error
		if err != nil {
			return pkgerrors.Wrap(err, "load neighbouring ledger entries")
		}

		var prev, next *domain.LedgerEntry
		for i := range neighbours {
			e := ToDomainLedgerEntry(&neighbours[i])
			switch e.StockVersion {
			case entry.StockVersion:
				return duplicateVersion(entry)
			case entry.StockVersion - 1:
				prev = &e
			case entry.StockVersion + 1:
				next = &e
			}
		}
		if err := domain.CheckChain(entry, prev, next); err != nil {
			return err
		}

		if err := tx.Create(FromDomainLedgerEntry(entry)).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return duplicateVersion(entry)
			}
			return pkgerrors.Wrap(err, "insert ledger entry")
		}
		return nil
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

func duplicateVersion(entry domain.LedgerEntry) error {
	return fmt.Errorf("%w: version %d already recorded for item %s at location %s",
		domain.ErrLedgerChainBroken, entry.StockVersion, entry.InventoryItemID, entry.LocationID)
}

func (r *GormLedgerStore) List(ctx context.Context, filter domain.LedgerFilter) (domain.LedgerPage, error) {
	filter = filter.Normalize()
	query := r.db.WithContext(ctx).Model(&LedgerEntryModel{})
	if filter.VendorID != "" {
		query = query.Where("vendor_id = ?", filter.VendorID)
	}
	if filter.InventoryItemID != "" {
		query = query.Where("inventory_item_id = ?", filter.InventoryItemID)
	}
	if filter.LocationID != "" {
		query = query.Where("location_id = ?", filter.LocationID)
	}
	if filter.ChangeType != "" {
		query = query.Where("change_type = ?", string(filter.ChangeType))
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at <= ?", filter.To)
	}

	// Session 让同一组条件可以被 Count 与 Find 分别复用
	query = query.Session(&gorm.Session{})

	page := domain.LedgerPage{Limit: filter.Limit, Offset: filter.Offset, Entries: []domain.LedgerEntry{}}
	if err := query.Count(&page.Total).Error; err != nil {
		return domain.LedgerPage{}, pkgerrors.Wrap(err, "count ledger entries")
	}

	var models []LedgerEntryModel
	err := query.Order("created_at DESC").Order("stock_version DESC").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&models).Error
	if err != nil {
		return domain.LedgerPage{}, pkgerrors.Wrap(err, "list ledger entries")
	}
	for i := range models {
		page.Entries = append(page.Entries, ToDomainLedgerEntry(&models[i]))
	}
	return page, nil
}

func (r *GormLedgerStore) Reconcile(ctx context.Context, itemID, locationID string, current *domain.StockLevel) (domain.Reconciliation, error) {
	var models []LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("inventory_item_id = ? AND location_id = ?", itemID, locationID).
		Order("stock_version").
		Find(&models).Error
	if err != nil {
		return domain.Reconciliation{}, pkgerrors.Wrap(err, "load ledger for reconciliation")
	}
	entries := make([]domain.LedgerEntry, 0, len(models))
	for i := range models {
		entries = append(entries, ToDomainLedgerEntry(&models[i]))
	}
	return domain.Reconcile(itemID, locationID, entries, current), nil
}
