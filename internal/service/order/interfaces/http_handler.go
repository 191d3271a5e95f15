package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"marketplace/internal/pkg/httpresp"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/order/application"
)

const serviceName = "order-service"

// OrderHandler 封装了拆单服务的 HTTP 处理器
type OrderHandler struct {
	service  *application.OrderApplicationService
	gatherer prometheus.Gatherer
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例。gatherer 为 nil 时使用默认注册表。
func NewOrderHandler(service *application.OrderApplicationService, gatherer prometheus.Gatherer) *OrderHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &OrderHandler{service: service, gatherer: gatherer}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /orders/split", h.splitHandler)
	mux.HandleFunc("GET /orders/{id}/vendor-orders", h.vendorOrdersHandler)
}

func (h *OrderHandler) splitHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "OrderHandler.Split")
	defer span.End()

	var req application.SplitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpresp.WriteError(ctx, w, 0, sagaengine.Validationf("invalid request body: %v", err))
		return
	}
	span.SetAttributes(attribute.String("parent_order_id", req.Order.ID))

	result, err := h.service.Split(ctx, req)
	if err != nil {
		span.RecordError(err)
		httpresp.WriteError(ctx, w, 0, err)
		return
	}
	httpresp.WriteJSON(w, http.StatusCreated, result)
}

func (h *OrderHandler) vendorOrdersHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "OrderHandler.VendorOrders")
	defer span.End()

	links, err := h.service.VendorOrders(ctx, r.PathValue("id"))
	if err != nil {
		httpresp.WriteError(ctx, w, 0, err)
		return
	}
	httpresp.WriteJSON(w, http.StatusOK, map[string]any{"vendor_orders": links})
}
