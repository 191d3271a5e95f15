package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketplace/internal/service/inventory/domain"
)

type versionKey struct {
	levelKey
	version int64
}

// LedgerStore 是只追加的内存账目。
type LedgerStore struct {
	mu        sync.RWMutex
	entries   []domain.LedgerEntry
	byVersion map[versionKey]int
	now       func() time.Time
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{byVersion: make(map[versionKey]int), now: time.Now}
}

func (s *LedgerStore) Append(_ context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if err := entry.Validate(); err != nil {
		return domain.LedgerEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := levelKey{entry.InventoryItemID, entry.LocationID}
	if _, dup := s.byVersion[versionKey{key, entry.StockVersion}]; dup {
		return domain.LedgerEntry{}, fmt.Errorf("%w: version %d already recorded for item %s at location %s",
			domain.ErrLedgerChainBroken, entry.StockVersion, entry.InventoryItemID, entry.LocationID)
	}
	prev := s.lookup(key, entry.StockVersion-1)
	next := s.lookup(key, entry.StockVersion+1)
	if err := domain.CheckChain(entry, prev, next); err != nil {
		return domain.LedgerEntry{}, err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.byVersion[versionKey{key, entry.StockVersion}] = len(s.entries)
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *LedgerStore) lookup(key levelKey, version int64) *domain.LedgerEntry {
	idx, ok := s.byVersion[versionKey{key, version}]
	if !ok {
		return nil
	}
	e := s.entries[idx]
	return &e
}

// List 按创建时间倒序返回，时间相同时按写入顺序倒序。
func (s *LedgerStore) List(_ context.Context, filter domain.LedgerFilter) (domain.LedgerPage, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if filter.Matches(s.entries[i]) {
			matched = append(matched, s.entries[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page := domain.LedgerPage{Total: int64(len(matched)), Limit: filter.Limit, Offset: filter.Offset, Entries: []domain.LedgerEntry{}}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+filter.Limit, len(matched))
		page.Entries = append(page.Entries, matched[filter.Offset:end]...)
	}
	return page, nil
}

func (s *LedgerStore) Reconcile(_ context.Context, itemID, locationID string, current *domain.StockLevel) (domain.Reconciliation, error) {
	s.mu.RLock()
	var entries []domain.LedgerEntry
	for _, e := range s.entries {
		if e.InventoryItemID == itemID && e.LocationID == locationID {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()
	return domain.Reconcile(itemID, locationID, entries, current), nil
}
