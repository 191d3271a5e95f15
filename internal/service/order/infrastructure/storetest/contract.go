// Package storetest 提供 domain.LinkStore 各实现共用的契约测试。
package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/service/order/domain"
)

// RunLinkStoreContract 验证保存、重复保存、按父订单查询与删除。
func RunLinkStoreContract(t *testing.T, store domain.LinkStore) {
	ctx := context.Background()
	parent := "order_" + uuid.NewString()
	other := "order_" + uuid.NewString()

	b := domain.VendorOrderLink{VendorID: "vendor_b", OrderID: "order_b_" + uuid.NewString()[:8], ParentOrderID: parent}
	a := domain.VendorOrderLink{VendorID: "vendor_a", OrderID: "order_a_" + uuid.NewString()[:8], ParentOrderID: parent}
	x := domain.VendorOrderLink{VendorID: "vendor_a", OrderID: "order_x_" + uuid.NewString()[:8], ParentOrderID: other}

	require.NoError(t, store.Save(ctx, b))
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, x))
	require.NoError(t, store.Save(ctx, a), "saving the same link twice is a no-op")

	links, err := store.ListByParent(ctx, parent)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "vendor_a", links[0].VendorID)
	assert.Equal(t, "vendor_b", links[1].VendorID)

	require.NoError(t, store.Delete(ctx, a.VendorID, a.OrderID))
	require.NoError(t, store.Delete(ctx, a.VendorID, a.OrderID), "deleting a missing link is not an error")

	links, err = store.ListByParent(ctx, parent)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, b.OrderID, links[0].OrderID)

	links, err = store.ListByParent(ctx, other)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}
