package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"marketplace/internal/pkg/httpclient"
	"marketplace/internal/service/order/domain"
)

// BaseURLResolver 在每次调用前给出订单服务的地址，例如通过服务发现。
type BaseURLResolver interface {
	BaseURL(ctx context.Context) string
}

type staticURL string

func (u staticURL) BaseURL(context.Context) string { return string(u) }

// OrderHTTPAdapter 实现了 port.OrderService 接口，调用外部订单服务的 HTTP API。
type OrderHTTPAdapter struct {
	client   *httpclient.Client
	resolver BaseURLResolver
}

// NewOrderHTTPAdapter 创建一个使用固定地址的订单服务适配器。
func NewOrderHTTPAdapter(client *httpclient.Client, baseURL string) *OrderHTTPAdapter {
	return NewResolvingOrderHTTPAdapter(client, staticURL(strings.TrimRight(baseURL, "/")))
}

func NewResolvingOrderHTTPAdapter(client *httpclient.Client, resolver BaseURLResolver) *OrderHTTPAdapter {
	return &OrderHTTPAdapter{client: client, resolver: resolver}
}

type createOrderResponse struct {
	Order struct {
		ID string `json:"id"`
	} `json:"order"`
}

// CreateOrder 实现了创建子订单的HTTP调用逻辑。
func (a *OrderHTTPAdapter) CreateOrder(ctx context.Context, input domain.CreateOrderInput) (string, error) {
	var resp createOrderResponse
	if err := a.client.PostJSON(ctx, a.resolver.BaseURL(ctx)+"/orders", input, &resp); err != nil {
		return "", err
	}
	if resp.Order.ID == "" {
		return "", errors.New("order service returned an empty order id")
	}
	return resp.Order.ID, nil
}

// CancelOrder 实现了取消订单的补偿调用。
// 订单不存在 (404) 或已处于不可取消状态 (409) 都视为已经取消。
func (a *OrderHTTPAdapter) CancelOrder(ctx context.Context, orderID string) error {
	err := a.client.PostJSON(ctx, a.resolver.BaseURL(ctx)+"/orders/"+url.PathEscape(orderID)+"/cancel", nil, nil)
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) &&
		(statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusConflict) {
		return nil
	}
	return err
}
