package domain

import (
	"fmt"
	"sort"
	"time"
)

type ChangeType string

const (
	ChangeTransfer   ChangeType = "transfer"
	ChangeSale       ChangeType = "sale"
	ChangeAdjustment ChangeType = "adjustment"
	ChangeRestock    ChangeType = "restock"
	ChangeReturn     ChangeType = "return"
)

func (c ChangeType) Valid() bool {
	switch c {
	case ChangeTransfer, ChangeSale, ChangeAdjustment, ChangeRestock, ChangeReturn:
		return true
	}
	return false
}

// LedgerEntry 是一次库存数量变化的不可变记录。
// StockVersion 是产生这次变化的库存更新之后的版本号，用于在并发写入下确定因果顺序。
type LedgerEntry struct {
	ID              string     `json:"id"`
	InventoryItemID string     `json:"inventory_item_id"`
	LocationID      string     `json:"location_id"`
	VendorID        string     `json:"vendor_id"`
	ChangeType      ChangeType `json:"change_type"`
	QuantityChange  int64      `json:"quantity_change"`
	QuantityBefore  int64      `json:"quantity_before"`
	QuantityAfter   int64      `json:"quantity_after"`
	StockVersion    int64      `json:"stock_version"`
	ReferenceType   string     `json:"reference_type"`
	ReferenceID     *string    `json:"reference_id,omitempty"`
	Notes           string     `json:"notes"`
	CreatedBy       *string    `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Validate 检查条目自身的一致性，不涉及链上的其他条目。
func (e LedgerEntry) Validate() error {
	switch {
	case e.InventoryItemID == "" || e.LocationID == "":
		return fmt.Errorf("%w: item and location are required", ErrInvalidLedgerEntry)
	case !e.ChangeType.Valid():
		return fmt.Errorf("%w: unknown change type %q", ErrInvalidLedgerEntry, e.ChangeType)
	case e.QuantityAfter != e.QuantityBefore+e.QuantityChange:
		return fmt.Errorf("%w: after %d != before %d + change %d",
			ErrInvalidLedgerEntry, e.QuantityAfter, e.QuantityBefore, e.QuantityChange)
	case e.QuantityAfter < 0:
		return fmt.Errorf("%w: quantity after is negative", ErrInvalidLedgerEntry)
	case e.StockVersion <= 0:
		return fmt.Errorf("%w: stock version must be positive", ErrInvalidLedgerEntry)
	}
	return nil
}

// CheckChain 校验新条目与相邻版本条目之间的衔接。prev/next 为 nil 表示该版本没有记录。
func CheckChain(entry LedgerEntry, prev, next *LedgerEntry) error {
	if prev != nil && prev.QuantityAfter != entry.QuantityBefore {
		return fmt.Errorf("%w: version %d ends at %d but version %d starts at %d",
			ErrLedgerChainBroken, prev.StockVersion, prev.QuantityAfter, entry.StockVersion, entry.QuantityBefore)
	}
	if next != nil && next.QuantityBefore != entry.QuantityAfter {
		return fmt.Errorf("%w: version %d ends at %d but version %d starts at %d",
			ErrLedgerChainBroken, entry.StockVersion, entry.QuantityAfter, next.StockVersion, next.QuantityBefore)
	}
	return nil
}

const (
	DefaultLedgerLimit = 100
	MaxLedgerLimit     = 1000
)

// LedgerFilter 是库存历史查询的条件，零值字段不参与过滤。
type LedgerFilter struct {
	VendorID        string
	InventoryItemID string
	LocationID      string
	ChangeType      ChangeType
	From            time.Time
	To              time.Time
	Limit           int
	Offset          int
}

func (f LedgerFilter) Normalize() LedgerFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLedgerLimit
	}
	if f.Limit > MaxLedgerLimit {
		f.Limit = MaxLedgerLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches 用于内存实现的过滤。
func (f LedgerFilter) Matches(e LedgerEntry) bool {
	switch {
	case f.VendorID != "" && e.VendorID != f.VendorID:
		return false
	case f.InventoryItemID != "" && e.InventoryItemID != f.InventoryItemID:
		return false
	case f.LocationID != "" && e.LocationID != f.LocationID:
		return false
	case f.ChangeType != "" && e.ChangeType != f.ChangeType:
		return false
	case !f.From.IsZero() && e.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && e.CreatedAt.After(f.To):
		return false
	}
	return true
}

type LedgerPage struct {
	Entries []LedgerEntry `json:"entries"`
	Total   int64         `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// VersionGap 表示两个相邻账目之间缺失的版本。补偿产生的版本没有账目，
// 因此 QuantityDelta 为 0 的缺口是正常的。
type VersionGap struct {
	FromVersion   int64 `json:"from_version"`
	ToVersion     int64 `json:"to_version"`
	QuantityDelta int64 `json:"quantity_delta"`
}

// Reconciliation 是账目与当前库存的对账结果。
type Reconciliation struct {
	InventoryItemID string       `json:"inventory_item_id"`
	LocationID      string       `json:"location_id"`
	Entries         int          `json:"entries"`
	LedgerQuantity  int64        `json:"ledger_quantity"`
	CurrentQuantity int64        `json:"current_quantity"`
	CurrentVersion  int64        `json:"current_version"`
	Gaps            []VersionGap `json:"gaps,omitempty"`
	Breaks          []string     `json:"breaks,omitempty"`
	Consistent      bool         `json:"consistent"`
}

// Reconcile 按版本顺序遍历账目，找出断链与无法解释的数量变化，并与当前库存比较。
// current 为 nil 表示没有库存记录，视为数量 0、版本 0。
func Reconcile(itemID, locationID string, entries []LedgerEntry, current *StockLevel) Reconciliation {
	sorted := append([]LedgerEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StockVersion < sorted[j].StockVersion })

	r := Reconciliation{InventoryItemID: itemID, LocationID: locationID, Entries: len(sorted)}
	if current != nil {
		r.CurrentQuantity = current.StockedQuantity
		r.CurrentVersion = current.Version
	}

	var prevVersion, prevAfter int64
	unexplained := false
	for _, e := range sorted {
		switch {
		case e.StockVersion == prevVersion:
			r.Breaks = append(r.Breaks, fmt.Sprintf("duplicate entries for version %d", e.StockVersion))
		case e.StockVersion == prevVersion+1:
			if e.QuantityBefore != prevAfter {
				r.Breaks = append(r.Breaks, fmt.Sprintf("version %d starts at %d, previous ended at %d",
					e.StockVersion, e.QuantityBefore, prevAfter))
			}
		default:
			gap := VersionGap{FromVersion: prevVersion, ToVersion: e.StockVersion, QuantityDelta: e.QuantityBefore - prevAfter}
			r.Gaps = append(r.Gaps, gap)
			if gap.QuantityDelta != 0 {
				unexplained = true
			}
		}
		prevVersion, prevAfter = e.StockVersion, e.QuantityAfter
	}
	r.LedgerQuantity = prevAfter

	if current != nil && current.Version > prevVersion {
		gap := VersionGap{FromVersion: prevVersion, ToVersion: current.Version, QuantityDelta: current.StockedQuantity - prevAfter}
		r.Gaps = append(r.Gaps, gap)
		if gap.QuantityDelta != 0 {
			unexplained = true
		}
	}

	r.Consistent = len(r.Breaks) == 0 && !unexplained && r.LedgerQuantity == r.CurrentQuantity
	return r
}
