package saga

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	plain := Report(Validationf("quantity must be positive"))
	assert.Equal(t, "ValidationError", plain.Kind)
	assert.Empty(t, plain.FailedStep)

	failure := &Failure{
		SagaID:             "s-1",
		SagaName:           "create_vendor_orders",
		FailedStep:         "vendor_order:v2",
		Err:                DependencyFailure(nil, "vendor v2 not found"),
		Compensated:        []string{"vendor_order:v1"},
		CompensationErrors: []CompensationError{{Step: "vendor_order:v0", Err: errors.New("timeout")}},
		PartialOutput: map[string]StepOutput{
			"vendor_order:v1": {Status: StepCompensated, Output: []byte(`{"order_id":"o-1"}`)},
		},
	}
	failure.SetDetail("created_orders", []string{"o-1"})
	r := Report(failure)
	assert.Equal(t, "PermanentFailure", r.Kind)
	assert.Equal(t, "DependencyFailure", r.Cause)
	assert.Equal(t, "vendor_order:v2", r.FailedStep)
	assert.Equal(t, []string{"vendor_order:v1"}, r.Compensated)
	assert.Equal(t, []CompensationIssue{{Step: "vendor_order:v0", Error: "timeout"}}, r.CompensationErrors)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(r.PartialOutput["vendor_order:v1"].Output))
	assert.Equal(t, []string{"o-1"}, r.Details["created_orders"])
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindDependencyFailure, KindOf(errors.New("io")))
	assert.Equal(t, KindConcurrencyConflict, KindOf(Conflictf("stale")))
	assert.Equal(t, KindInsufficientStock, KindOf(InsufficientStockf("0 < 1")))
	assert.Equal(t, KindPermanentFailure, KindOf(ErrPermanentFailure))
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
