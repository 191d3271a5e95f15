package httpresp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/saga"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", saga.Validationf("bad"), http.StatusBadRequest},
		{"insufficient", saga.InsufficientStockf("low"), http.StatusConflict},
		{"conflict", fmt.Errorf("wrap: %w", saga.ErrConcurrencyConflict), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusBadGateway},
		{"compensated failure", &saga.Failure{Err: saga.Conflictf("lost race")}, http.StatusConflict},
		{"partial compensation", &saga.Failure{
			Err:                saga.Conflictf("lost race"),
			CompensationErrors: []saga.CompensationError{{Step: "debit", Err: errors.New("down")}},
		}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, 0, &saga.Failure{
		SagaID: "saga_1", FailedStep: "credit", Err: saga.InsufficientStockf("low"), Compensated: []string{"debit"},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var report saga.ErrorReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "PermanentFailure", report.Kind)
	assert.Equal(t, "InsufficientStock", report.Cause)
	assert.Equal(t, []string{"debit"}, report.Compensated)
}
