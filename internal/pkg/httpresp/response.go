// internal/pkg/httpresp/response.go
package httpresp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"marketplace/internal/pkg/logger"
	"marketplace/internal/saga"
)

// WriteJSON 以 JSON 写出响应体。
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Ctx(context.Background()).Warn().Err(err).Msg("failed to encode response")
	}
}

// StatusFor 把错误分类映射为 HTTP 状态码。
// saga 失败按原始原因映射；补偿没有全部成功时一律是 500。
func StatusFor(err error) int {
	var failure *saga.Failure
	if errors.As(err, &failure) {
		if !failure.FullyCompensated() {
			return http.StatusInternalServerError
		}
		return statusForKind(failure.Cause())
	}
	return statusForKind(saga.KindOf(err))
}

func statusForKind(k saga.Kind) int {
	switch k {
	case saga.KindValidation:
		return http.StatusBadRequest
	case saga.KindInsufficientStock, saga.KindConcurrencyConflict:
		return http.StatusConflict
	case saga.KindDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError 写出 saga.ErrorReport。status 为 0 时由 StatusFor 决定。
func WriteError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	if status == 0 {
		status = StatusFor(err)
	}
	event := logger.Ctx(ctx).Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Ctx(ctx).Error()
	}
	event.Err(err).Int("status", status).Msg("request failed")
	WriteJSON(w, status, saga.Report(err))
}
