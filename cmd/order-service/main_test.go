package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/pkg/bootstrap"
	"marketplace/internal/service/order/domain"
	"marketplace/internal/service/order/infrastructure/adapter"
	"marketplace/internal/service/order/infrastructure/memory"
)

type staticDiscoverer struct {
	host string
	port int
	err  error
}

func (d staticDiscoverer) Discover(string) (string, int, error) { return d.host, d.port, d.err }

func orderServer(t *testing.T, id string) (string, int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order":{"id":"` + id + `"}}`))
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestOrderService(t *testing.T) {
	ctx := context.Background()

	_, ok := orderService(ctx, bootstrap.OrderServiceConfig{}, nil).(*memory.OrderService)
	assert.True(t, ok)

	host, port := orderServer(t, "order_discovered")
	fallbackHost, fallbackPort := orderServer(t, "order_static")
	fallback := "http://" + net.JoinHostPort(fallbackHost, strconv.Itoa(fallbackPort))

	svc := orderService(ctx, bootstrap.OrderServiceConfig{BaseURL: fallback, ServiceName: "order-api"},
		staticDiscoverer{host: host, port: port})
	require.IsType(t, &adapter.OrderHTTPAdapter{}, svc)
	id, err := svc.CreateOrder(ctx, domain.CreateOrderInput{})
	require.NoError(t, err)
	assert.Equal(t, "order_discovered", id)

	svc = orderService(ctx, bootstrap.OrderServiceConfig{BaseURL: fallback, ServiceName: "order-api"},
		staticDiscoverer{err: errors.New("no healthy instance")})
	id, err = svc.CreateOrder(ctx, domain.CreateOrderInput{})
	require.NoError(t, err)
	assert.Equal(t, "order_static", id)

	svc = orderService(ctx, bootstrap.OrderServiceConfig{BaseURL: fallback}, nil)
	id, err = svc.CreateOrder(ctx, domain.CreateOrderInput{})
	require.NoError(t, err)
	assert.Equal(t, "order_static", id)
}
