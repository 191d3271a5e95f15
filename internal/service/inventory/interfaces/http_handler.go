package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"marketplace/internal/pkg/httpresp"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/inventory/application"
	"marketplace/internal/service/inventory/domain"
	"marketplace/internal/service/inventory/domain/port"
)

const (
	serviceName = "inventory-service"

	headerVendorID = "X-Vendor-ID"
	headerUserID   = "X-User-ID"
)

// InventoryHandler 封装了库存服务的 HTTP 处理器。
// 认证由网关完成，这里只信任网关写入的商家与用户头。
type InventoryHandler struct {
	service   *application.InventoryApplicationService
	locations port.LocationDirectory
	gatherer  prometheus.Gatherer
	tracer    trace.Tracer
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例。gatherer 为 nil 时使用默认注册表。
func NewInventoryHandler(service *application.InventoryApplicationService, locations port.LocationDirectory, gatherer prometheus.Gatherer) *InventoryHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &InventoryHandler{service: service, locations: locations, gatherer: gatherer, tracer: otel.Tracer(serviceName)}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /vendors/inventory/transfer", h.transferHandler)
	mux.HandleFunc("GET /vendors/inventory/history", h.historyHandler)
	mux.HandleFunc("GET /vendors/inventory/levels", h.levelsHandler)
	mux.HandleFunc("GET /vendors/inventory/reconcile", h.reconcileHandler)
	mux.HandleFunc("POST /vendors/inventory/restock", h.restockHandler)
	mux.HandleFunc("GET /vendors/inventory/alerts", h.alertsHandler)
}

// start 从请求头中提取上游链路并开启 span
func (h *InventoryHandler) start(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return h.tracer.Start(ctx, name)
}

// actor 根据网关写入的头构造调用者，并加载其商家关联的仓位。
func (h *InventoryHandler) actor(ctx context.Context, r *http.Request) (application.Actor, error) {
	vendorID := r.Header.Get(headerVendorID)
	if vendorID == "" {
		return application.Actor{}, sagaengine.Validationf("missing %s header", headerVendorID)
	}
	locations, err := h.locations.LocationsForVendor(ctx, vendorID)
	if err != nil {
		return application.Actor{}, sagaengine.DependencyFailure(err, "load locations of vendor %s", vendorID)
	}
	return application.Actor{VendorID: vendorID, UserID: r.Header.Get(headerUserID), AuthorizedLocationIDs: locations}, nil
}

func (h *InventoryHandler) transferHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "InventoryHandler.Transfer")
	defer span.End()

	var req application.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, sagaengine.Validationf("invalid request body: %v", err))
		return
	}
	actor, err := h.actor(ctx, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	req.Actor = actor
	span.SetAttributes(attribute.String("vendor_id", actor.VendorID))

	result, err := h.service.Transfer(ctx, req)
	if err != nil {
		span.RecordError(err)
		writeError(ctx, w, err)
		return
	}
	httpresp.WriteJSON(w, http.StatusOK, map[string]any{"transfer": result})
}

func (h *InventoryHandler) historyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "InventoryHandler.History")
	defer span.End()

	filter, err := parseLedgerFilter(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	actor, err := h.actor(ctx, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	page, err := h.service.History(ctx, actor, filter)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	httpresp.WriteJSON(w, http.StatusOK, map[string]any{
		"history": page.Entries,
		"count":   page.Total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

func (h *InventoryHandler) levelsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "InventoryHandler.Levels")
	defer span.End()

	actor, err := h.actor(ctx, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	levels, err := h.service.Levels(ctx, actor, r.URL.Query().Get("inventory_item_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	httpresp.WriteJSON(w, http.StatusOK, map[string]any{"levels": levels})
}

func (h *InventoryHandler) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "InventoryHandler.Reconcile")
	defer span.End()

	actor, err := h.actor(ctx, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	q := r.URL.Query()
	report, err := h.service.Reconcile(ctx, actor, q.Get("inventory_item_id"), q.Get("location_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	httpresp.WriteJSON(w, http.StatusOK, map[string]any{"reconciliation": report})
}

func (h *InventoryHandler) restockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "InventoryHandler.Restock")
	defer span.End()

	var req application.RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, sagaengine.Validationf("invalid request body: %v", err))
		return
	}
	actor, err := h.actor(ctx, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	req.Actor = actor
	span.SetAttributes(attribute.String("vendor_id", actor.VendorID))

	result, err := h.service.Restock(ctx, req)
	if err != nil {
		span.RecordError(err)
		writeError(ctx, w, err)
		return
	}
	httpresp.WriteJSON(w, http.StatusOK, map[string]any{"restock": result})
}

func (h *InventoryHandler) alertsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "InventoryHandler.Alerts")
	defer span.End()

	q := r.URL.Query()
	threshold, err := parseInt(q.Get("threshold"))
	if err != nil {
		writeError(ctx, w, sagaengine.Validationf("invalid threshold: %v", err))
		return
	}
	actor, err := h.actor(ctx, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	result, err := h.service.Alerts(ctx, actor, application.AlertsQuery{Threshold: int64(threshold), LocationID: q.Get("location_id")})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	httpresp.WriteJSON(w, http.StatusOK, result)
}

// writeError 在通用映射之外把仓位越权单独映射为 403。
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := 0
	if errors.Is(err, domain.ErrLocationNotAllowed) {
		status = http.StatusForbidden
	}
	httpresp.WriteError(ctx, w, status, err)
}

func parseLedgerFilter(r *http.Request) (domain.LedgerFilter, error) {
	q := r.URL.Query()
	filter := domain.LedgerFilter{
		InventoryItemID: q.Get("inventory_item_id"),
		LocationID:      q.Get("location_id"),
		ChangeType:      domain.ChangeType(q.Get("change_type")),
	}
	var err error
	if filter.From, err = parseTime(q.Get("from")); err != nil {
		return filter, sagaengine.Validationf("invalid from: %v", err)
	}
	if filter.To, err = parseTime(q.Get("to")); err != nil {
		return filter, sagaengine.Validationf("invalid to: %v", err)
	}
	if filter.Limit, err = parseInt(q.Get("limit")); err != nil {
		return filter, sagaengine.Validationf("invalid limit: %v", err)
	}
	if filter.Offset, err = parseInt(q.Get("offset")); err != nil {
		return filter, sagaengine.Validationf("invalid offset: %v", err)
	}
	return filter, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
