package domain

// VendorItems 是某个商家在父订单中的商品行。
type VendorItems struct {
	VendorID string     `json:"vendor_id"`
	Items    []LineItem `json:"items"`
}

// VendorPartition 按 vendor id 升序排列。
type VendorPartition []VendorItems

// VendorIDs 返回分区中的商家 id，顺序与分区一致。
func (p VendorPartition) VendorIDs() []string {
	ids := make([]string, len(p))
	for i, v := range p {
		ids[i] = v.VendorID
	}
	return ids
}
