package infrastructure

import (
	"context"
	"slices"
	"sync"

	"marketplace/internal/service/seller/domain"
)

// MemoryDirectory 是进程内实现，用于本地运行与测试。
type MemoryDirectory struct {
	mu        sync.RWMutex
	vendors   map[string]domain.Vendor
	locations map[string][]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{vendors: make(map[string]domain.Vendor), locations: make(map[string][]string)}
}

// AddVendor 注册商家及其关联的仓位。
func (d *MemoryDirectory) AddVendor(v domain.Vendor, locationIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vendors[v.ID] = v
	locs := append([]string(nil), locationIDs...)
	slices.Sort(locs)
	d.locations[v.ID] = locs
}

func (d *MemoryDirectory) GetVendor(_ context.Context, id string) (*domain.Vendor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.vendors[id]
	if !ok {
		return nil, domain.ErrVendorNotFound
	}
	return &v, nil
}

func (d *MemoryDirectory) LocationsForVendor(_ context.Context, vendorID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.locations[vendorID]...), nil
}
