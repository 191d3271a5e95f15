package application

import (
	"time"

	"marketplace/internal/service/inventory/domain"
)

// Actor 是已经通过认证的调用者。AuthorizedLocationIDs 是其所属商家关联的仓位。
type Actor struct {
	VendorID              string
	UserID                string
	AuthorizedLocationIDs []string
}

// TransferRequest 是一次库存调拨请求。
type TransferRequest struct {
	InventoryItemID string `json:"inventory_item_id"`
	FromLocationID  string `json:"from_location_id"`
	ToLocationID    string `json:"to_location_id"`
	Quantity        int64  `json:"quantity"`
	Reference       string `json:"reference,omitempty"`
	ReferenceID     string `json:"reference_id,omitempty"`
	Actor           Actor  `json:"-"`
}

// TransferResult 是调拨成功后的结果。
type TransferResult struct {
	TransferID      string               `json:"id"`
	SagaID          string               `json:"saga_id"`
	InventoryItemID string               `json:"inventory_item_id"`
	FromLocationID  string               `json:"from_location_id"`
	ToLocationID    string               `json:"to_location_id"`
	Quantity        int64                `json:"quantity"`
	FromLevel       domain.StockLevel    `json:"from_level"`
	ToLevel         domain.StockLevel    `json:"to_level"`
	Entries         []domain.LedgerEntry `json:"entries"`
	Reference       string               `json:"reference,omitempty"`
	ReferenceID     string               `json:"reference_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// RestockRequest 为单个仓位增加库存。
type RestockRequest struct {
	InventoryItemID string `json:"inventory_item_id"`
	LocationID      string `json:"location_id"`
	Quantity        int64  `json:"quantity"`
	ReferenceID     string `json:"reference_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Actor           Actor  `json:"-"`
}

type RestockResult struct {
	RestockID string             `json:"id"`
	SagaID    string             `json:"saga_id"`
	Level     domain.StockLevel  `json:"level"`
	Entry     domain.LedgerEntry `json:"entry"`
}

// DefaultAlertThreshold 是未指定阈值时的低库存线。
const DefaultAlertThreshold int64 = 10

const (
	AlertOutOfStock = "out_of_stock"
	AlertLowStock   = "low_stock"
)

// AlertsQuery 为空 LocationID 时查询商家的全部仓位。
type AlertsQuery struct {
	Threshold  int64
	LocationID string
}

// StockAlert 是一条可用库存不高于阈值的记录。
type StockAlert struct {
	AlertType         string `json:"alert_type"`
	InventoryItemID   string `json:"inventory_item_id"`
	LocationID        string `json:"location_id"`
	StockedQuantity   int64  `json:"stocked_quantity"`
	ReservedQuantity  int64  `json:"reserved_quantity"`
	AvailableQuantity int64  `json:"available_quantity"`
	Threshold         int64  `json:"threshold"`
}

type AlertSummary struct {
	TotalAlerts int `json:"total_alerts"`
	OutOfStock  int `json:"out_of_stock"`
	LowStock    int `json:"low_stock"`
}

type AlertsResult struct {
	Alerts  []StockAlert `json:"alerts"`
	Summary AlertSummary `json:"summary"`
}
