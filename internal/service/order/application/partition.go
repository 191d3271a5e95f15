package application

import (
	"slices"

	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/order/domain"
)

// PartitionByVendor 把商品行按商家分组。纯函数，没有副作用，因此不作为 saga 步骤。
// 商品行缺少商家或数量不合法时返回校验错误。
func PartitionByVendor(items []domain.LineItem) (domain.VendorPartition, error) {
	if len(items) == 0 {
		return nil, sagaengine.Validationf("order has no line items")
	}
	groups := make(map[string][]domain.LineItem)
	for _, item := range items {
		if item.VendorID == "" {
			return nil, sagaengine.Validationf("line item %s has no vendor", item.ID)
		}
		if item.Quantity <= 0 {
			return nil, sagaengine.Validationf("line item %s has non-positive quantity %d", item.ID, item.Quantity)
		}
		groups[item.VendorID] = append(groups[item.VendorID], item)
	}

	vendorIDs := make([]string, 0, len(groups))
	for id := range groups {
		vendorIDs = append(vendorIDs, id)
	}
	slices.Sort(vendorIDs)

	partition := make(domain.VendorPartition, 0, len(vendorIDs))
	for _, id := range vendorIDs {
		partition = append(partition, domain.VendorItems{VendorID: id, Items: groups[id]})
	}
	return partition, nil
}
