// Package memory 提供进程内的库存与账目存储，用于本地运行和测试。
package memory

import (
	"context"
	"sync"
	"time"

	"marketplace/internal/service/inventory/domain"
)

type levelKey struct {
	item     string
	location string
}

// StockStore 用一把互斥锁保证 ApplyDelta 的比较与写入是原子的。
type StockStore struct {
	mu     sync.Mutex
	levels map[levelKey]domain.StockLevel
	now    func() time.Time
}

func NewStockStore() *StockStore {
	return &StockStore{levels: make(map[levelKey]domain.StockLevel), now: time.Now}
}

func (s *StockStore) GetLevels(_ context.Context, itemID string, locationIDs []string) ([]domain.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.StockLevel, 0, len(locationIDs))
	for _, loc := range locationIDs {
		if level, ok := s.levels[levelKey{itemID, loc}]; ok {
			out = append(out, level)
		}
	}
	return out, nil
}

func (s *StockStore) ListByLocations(_ context.Context, locationIDs []string) ([]domain.StockLevel, error) {
	want := make(map[string]struct{}, len(locationIDs))
	for _, loc := range locationIDs {
		want[loc] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StockLevel
	for key, level := range s.levels {
		if _, ok := want[key.location]; ok {
			out = append(out, level)
		}
	}
	return out, nil
}

func (s *StockStore) ApplyDelta(_ context.Context, itemID, locationID string, delta, expectedStocked int64) (domain.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := levelKey{itemID, locationID}
	var current *domain.StockLevel
	if level, ok := s.levels[key]; ok {
		current = &level
	}
	next, err := domain.PlanDelta(current, itemID, locationID, delta, expectedStocked, s.now())
	if err != nil {
		return domain.StockLevel{}, err
	}
	s.levels[key] = next
	return next, nil
}

// SetLevel 直接写入库存（初始化数据与测试使用），版本号在原有基础上加一。
func (s *StockStore) SetLevel(_ context.Context, level domain.StockLevel) (domain.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := levelKey{level.InventoryItemID, level.LocationID}
	level.Version = s.levels[key].Version + 1
	level.UpdatedAt = s.now()
	s.levels[key] = level
	return level, nil
}
