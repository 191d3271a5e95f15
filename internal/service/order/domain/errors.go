package domain

import "errors"

var ErrOrderNotFound = errors.New("order not found")

// 订单服务中子订单的状态，这里只关心是否已取消。
const (
	OrderStatusPending  = "pending"
	OrderStatusCanceled = "canceled"
)
