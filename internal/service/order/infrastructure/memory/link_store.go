package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace/internal/service/order/domain"
)

type linkKey struct {
	vendorID string
	orderID  string
}

// LinkStore 是 domain.LinkStore 的进程内实现。
type LinkStore struct {
	mu    sync.RWMutex
	links map[linkKey]domain.VendorOrderLink
	now   func() time.Time
}

func NewLinkStore() *LinkStore {
	return &LinkStore{links: make(map[linkKey]domain.VendorOrderLink), now: time.Now}
}

func (s *LinkStore) Save(_ context.Context, link domain.VendorOrderLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey{link.VendorID, link.OrderID}
	if _, ok := s.links[key]; ok {
		return nil
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now().UTC()
	}
	s.links[key] = link
	return nil
}

func (s *LinkStore) Delete(_ context.Context, vendorID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, linkKey{vendorID, orderID})
	return nil
}

func (s *LinkStore) ListByParent(_ context.Context, parentOrderID string) ([]domain.VendorOrderLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.VendorOrderLink
	for _, l := range s.links {
		if l.ParentOrderID == parentOrderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VendorID != out[j].VendorID {
			return out[i].VendorID < out[j].VendorID
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out, nil
}
