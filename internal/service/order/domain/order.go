// internal/service/order/domain/order.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 是买家下的父订单。拆单 saga 只读取它，不修改它。
type Order struct {
	ID                string           `json:"id"`
	RegionID          string           `json:"region_id"`
	CustomerID        string           `json:"customer_id"`
	SalesChannelID    string           `json:"sales_channel_id"`
	Email             string           `json:"email"`
	CurrencyCode      string           `json:"currency_code"`
	ShippingAddressID string           `json:"shipping_address_id,omitempty"`
	BillingAddressID  string           `json:"billing_address_id,omitempty"`
	Items             []LineItem       `json:"items"`
	ShippingMethods   []ShippingMethod `json:"shipping_methods,omitempty"`
}

// LineItem 是订单中的一行商品，VendorID 来自商品与商家的关联。
type LineItem struct {
	ID        string          `json:"id"`
	VendorID  string          `json:"vendor_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Title     string          `json:"title"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total 返回该行的金额。
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

type ShippingMethod struct {
	Name             string          `json:"name"`
	Amount           decimal.Decimal `json:"amount"`
	ShippingOptionID string          `json:"shipping_option_id,omitempty"`
	Data             map[string]any  `json:"data,omitempty"`
	TaxLines         []TaxLine       `json:"tax_lines,omitempty"`
	Adjustments      []Adjustment    `json:"adjustments,omitempty"`
}

type TaxLine struct {
	Code        string          `json:"code"`
	Rate        decimal.Decimal `json:"rate"`
	ProviderID  string          `json:"provider_id,omitempty"`
	TaxRateID   string          `json:"tax_rate_id,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Adjustment 是促销带来的金额调整。
type Adjustment struct {
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	PromotionID string          `json:"promotion_id,omitempty"`
	ProviderID  string          `json:"provider_id,omitempty"`
}

// MetadataParentOrderID 是子订单 metadata 中指向父订单的键。
const MetadataParentOrderID = "parent_order_id"

// CreateOrderInput 是交给订单服务创建子订单的完整描述。
type CreateOrderInput struct {
	RegionID          string            `json:"region_id"`
	CustomerID        string            `json:"customer_id"`
	SalesChannelID    string            `json:"sales_channel_id"`
	Email             string            `json:"email"`
	CurrencyCode      string            `json:"currency_code"`
	ShippingAddressID string            `json:"shipping_address_id,omitempty"`
	BillingAddressID  string            `json:"billing_address_id,omitempty"`
	Items             []LineItem        `json:"items"`
	ShippingMethods   []ShippingMethod  `json:"shipping_methods,omitempty"`
	Metadata          map[string]string `json:"metadata"`
}

// NewChildOrder 基于父订单为某个商家构造子订单：复制地区、客户、币种、地址与配送方式，
// 只保留该商家的商品行，并在 metadata 中记录父订单。
func NewChildOrder(parent Order, items []LineItem) CreateOrderInput {
	methods := make([]ShippingMethod, 0, len(parent.ShippingMethods))
	for _, m := range parent.ShippingMethods {
		cp := m
		cp.TaxLines = append([]TaxLine(nil), m.TaxLines...)
		cp.Adjustments = append([]Adjustment(nil), m.Adjustments...)
		methods = append(methods, cp)
	}
	return CreateOrderInput{
		RegionID:          parent.RegionID,
		CustomerID:        parent.CustomerID,
		SalesChannelID:    parent.SalesChannelID,
		Email:             parent.Email,
		CurrencyCode:      parent.CurrencyCode,
		ShippingAddressID: parent.ShippingAddressID,
		BillingAddressID:  parent.BillingAddressID,
		Items:             append([]LineItem(nil), items...),
		ShippingMethods:   methods,
		Metadata:          map[string]string{MetadataParentOrderID: parent.ID},
	}
}

// VendorOrderLink 记录商家与其子订单之间的关联。
type VendorOrderLink struct {
	VendorID      string    `json:"vendor_id"`
	OrderID       string    `json:"order_id"`
	ParentOrderID string    `json:"parent_order_id"`
	CreatedAt     time.Time `json:"created_at"`
}
