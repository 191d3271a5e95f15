package application

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/order/domain"
)

func item(id, vendor string, qty int64) domain.LineItem {
	return domain.LineItem{ID: id, VendorID: vendor, Title: id, Quantity: qty, UnitPrice: decimal.RequireFromString("9.99")}
}

func TestPartitionByVendor(t *testing.T) {
	partition, err := PartitionByVendor([]domain.LineItem{
		item("li_1", "vendor_b", 1),
		item("li_2", "vendor_a", 2),
		item("li_3", "vendor_b", 3),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"vendor_a", "vendor_b"}, partition.VendorIDs())
	require.Len(t, partition[1].Items, 2)
	assert.Equal(t, "li_1", partition[1].Items[0].ID)
	assert.Equal(t, "li_3", partition[1].Items[1].ID)
}

func TestPartitionByVendor_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.LineItem
	}{
		{"empty", nil},
		{"missing vendor", []domain.LineItem{item("li_1", "", 1)}},
		{"zero quantity", []domain.LineItem{item("li_1", "vendor_a", 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PartitionByVendor(tt.items)
			assert.Equal(t, sagaengine.KindValidation, sagaengine.KindOf(err))
		})
	}
}
