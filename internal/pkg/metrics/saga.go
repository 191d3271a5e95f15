// internal/pkg/metrics/saga.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics 记录 saga 的运行结果、每一步的耗时与补偿失败次数。
type SagaMetrics struct {
	Runs                 *prometheus.CounterVec
	StepDuration         *prometheus.HistogramVec
	CompensationFailures *prometheus.CounterVec
}

// NewSagaMetrics 创建指标并注册到 reg；reg 为 nil 时不注册（测试中常用独立 registry）。
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	m := &SagaMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_runs_total",
			Help: "Number of saga runs by final status.",
		}, []string{"saga", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saga_step_duration_seconds",
			Help:    "Duration of saga forward steps.",
			Buckets: prometheus.DefBuckets,
		}, []string{"saga", "step"}),
		CompensationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_compensation_failures_total",
			Help: "Number of compensations that returned an error.",
		}, []string{"saga", "step"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.StepDuration, m.CompensationFailures)
	}
	return m
}

func (m *SagaMetrics) ObserveRun(saga, status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(saga, status).Inc()
}

func (m *SagaMetrics) ObserveStep(saga, step string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(saga, step).Observe(d.Seconds())
}

func (m *SagaMetrics) ObserveCompensationFailure(saga, step string) {
	if m == nil {
		return
	}
	m.CompensationFailures.WithLabelValues(saga, step).Inc()
}
