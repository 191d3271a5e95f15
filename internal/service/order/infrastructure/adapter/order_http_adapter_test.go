package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"marketplace/internal/pkg/httpclient"
	"marketplace/internal/service/order/domain"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *OrderHTTPAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOrderHTTPAdapter(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")), srv.URL+"/")
}

func TestCreateOrder(t *testing.T) {
	var received domain.CreateOrderInput
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"order":{"id":"order_42"}}`))
	})

	id, err := a.CreateOrder(context.Background(), domain.CreateOrderInput{
		RegionID: "reg_1",
		Metadata: map[string]string{domain.MetadataParentOrderID: "order_parent"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_42", id)
	assert.Equal(t, "reg_1", received.RegionID)
	assert.Equal(t, "order_parent", received.Metadata[domain.MetadataParentOrderID])
}

func TestCreateOrder_EmptyID(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order":{}}`))
	})
	_, err := a.CreateOrder(context.Background(), domain.CreateOrderInput{})
	assert.Error(t, err)
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"already gone", http.StatusNotFound, false},
		{"already canceled", http.StatusConflict, false},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/orders/order_1/cancel", r.URL.Path)
				w.WriteHeader(tt.status)
			})
			err := a.CancelOrder(context.Background(), "order_1")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type switchingResolver struct{ urls []string }

func (r *switchingResolver) BaseURL(context.Context) string {
	u := r.urls[0]
	if len(r.urls) > 1 {
		r.urls = r.urls[1:]
	}
	return u
}

func TestResolvingAdapter_ResolvesPerCall(t *testing.T) {
	var hits [2]int
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[0]++
		_, _ = w.Write([]byte(`{"order":{"id":"order_a"}}`))
	}))
	t.Cleanup(srvA.Close)
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[1]++
		assert.Equal(t, "/orders/order_a/cancel", r.URL.Path)
	}))
	t.Cleanup(srvB.Close)

	a := NewResolvingOrderHTTPAdapter(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")),
		&switchingResolver{urls: []string{srvA.URL, srvB.URL}})

	id, err := a.CreateOrder(context.Background(), domain.CreateOrderInput{})
	require.NoError(t, err)
	require.NoError(t, a.CancelOrder(context.Background(), id))
	assert.Equal(t, [2]int{1, 1}, hits)
}
