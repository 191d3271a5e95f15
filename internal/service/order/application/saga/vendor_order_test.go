package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/order/domain"
	"marketplace/internal/service/order/infrastructure/memory"
	vendordomain "marketplace/internal/service/seller/domain"
	vendorinfra "marketplace/internal/service/seller/infrastructure"
)

func newSteps() (*FanoutSteps, *memory.OrderService, *memory.LinkStore) {
	orders := memory.NewOrderService()
	links := memory.NewLinkStore()
	vendors := vendorinfra.NewMemoryDirectory()
	vendors.AddVendor(vendordomain.Vendor{ID: "vendor_a", Name: "A"})
	return NewFanoutSteps(orders, vendors, links), orders, links
}

func TestSteps_OnePerVendorInPartitionOrder(t *testing.T) {
	steps, _, _ := newSteps()
	got := steps.Steps(domain.VendorPartition{{VendorID: "vendor_a"}, {VendorID: "vendor_b"}})

	require.Len(t, got, 2)
	assert.Equal(t, "vendor_order:vendor_a", got[0].Name)
	assert.Equal(t, "vendor_order:vendor_b", got[1].Name)
}

func TestCreateVendorOrder_CompensationIsIdempotent(t *testing.T) {
	steps, orders, links := newSteps()
	ctx := context.Background()
	st := &FanoutState{Parent: domain.Order{ID: "order_parent", CurrencyCode: "usd"}}

	group := domain.VendorItems{VendorID: "vendor_a", Items: []domain.LineItem{{ID: "li_1", VendorID: "vendor_a", Quantity: 1}}}
	comp, err := steps.createVendorOrder(group)(ctx, st)
	require.NoError(t, err)
	require.NotNil(t, comp)
	require.Len(t, st.Orders, 1)
	orderID := st.Orders[0].OrderID

	require.NoError(t, comp(ctx))
	require.NoError(t, comp(ctx))

	o, ok := orders.Get(orderID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusCanceled, o.Status)
	remaining, err := links.ListByParent(ctx, "order_parent")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestCreateVendorOrder_UnknownVendor(t *testing.T) {
	steps, orders, _ := newSteps()
	st := &FanoutState{Parent: domain.Order{ID: "order_parent"}}

	comp, err := steps.createVendorOrder(domain.VendorItems{VendorID: "vendor_x"})(context.Background(), st)

	assert.Nil(t, comp)
	assert.Equal(t, sagaengine.KindDependencyFailure, sagaengine.KindOf(err))
	assert.EqualError(t, err, "dependency failure: vendor vendor_x not found")
	assert.Empty(t, orders.List())
}
