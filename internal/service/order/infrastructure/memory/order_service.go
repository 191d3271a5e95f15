package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"marketplace/internal/service/order/domain"
)

// StoredOrder 是内存订单服务中保存的订单。
type StoredOrder struct {
	ID     string
	Status string
	Input  domain.CreateOrderInput
}

// OrderService 是 port.OrderService 的进程内实现，用于本地运行与测试。
type OrderService struct {
	mu     sync.Mutex
	orders map[string]*StoredOrder
}

func NewOrderService() *OrderService {
	return &OrderService{orders: make(map[string]*StoredOrder)}
}

func (s *OrderService) CreateOrder(_ context.Context, input domain.CreateOrderInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "order_" + uuid.NewString()
	s.orders[id] = &StoredOrder{ID: id, Status: domain.OrderStatusPending, Input: input}
	return id, nil
}

// CancelOrder 对已取消的订单重复调用返回 nil。
func (s *OrderService) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = domain.OrderStatusCanceled
	return nil
}

func (s *OrderService) Get(orderID string) (StoredOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return StoredOrder{}, false
	}
	return *o, true
}

// List 返回全部订单，按 id 排序。
func (s *OrderService) List() []StoredOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
