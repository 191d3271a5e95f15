package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/service/order/domain"
	"marketplace/internal/service/order/infrastructure/storetest"
)

func TestLinkStoreContract(t *testing.T) {
	storetest.RunLinkStoreContract(t, NewLinkStore())
}

func TestOrderService_CancelIsIdempotent(t *testing.T) {
	svc := NewOrderService()
	ctx := context.Background()

	id, err := svc.CreateOrder(ctx, domain.CreateOrderInput{CurrencyCode: "eur"})
	require.NoError(t, err)

	require.NoError(t, svc.CancelOrder(ctx, id))
	require.NoError(t, svc.CancelOrder(ctx, id))

	o, ok := svc.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusCanceled, o.Status)
	assert.ErrorIs(t, svc.CancelOrder(ctx, "missing"), domain.ErrOrderNotFound)
	assert.Len(t, svc.List(), 1)
}
