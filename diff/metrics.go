package diff

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowdiff/metric"
)

// Batch outcomes
const (
	outcomeApplied    = "applied"
	outcomeRejected   = "rejected"
	outcomeRolledBack = "rolled_back"
	outcomePartial    = "partial"
)

type engineMetrics struct {
	batches    *prometheus.CounterVec
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rollbacks  *prometheus.CounterVec
}

func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	m := &engineMetrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "diff",
			Name:      "batches_total",
			Help:      "Total number of diff batches by outcome",
		}, []string{"outcome"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "diff",
			Name:      "operations_total",
			Help:      "Total number of diff operations by kind and status",
		}, []string{"kind", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "diff",
			Name:      "duration_seconds",
			Help:      "Time spent applying a diff batch",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"outcome"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "diff",
			Name:      "rollbacks_total",
			Help:      "Total number of rolled back batches by reason",
		}, []string{"reason"}),
	}

	if err := registry.RegisterCounterVec("diff", "batches", m.batches); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("diff", "operations", m.operations); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("diff", "duration", m.duration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("diff", "rollbacks", m.rollbacks); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *engineMetrics) recordBatch(ops []Operation, result *Result, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}

	outcome := outcomeApplied
	switch {
	case result.RolledBack:
		outcome = outcomeRolledBack
		m.rollbacks.WithLabelValues(reason).Inc()
	case !result.Success && len(result.Applied) > 0:
		outcome = outcomePartial
	case !result.Success:
		outcome = outcomeRejected
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	status := make(map[int]string, len(ops))
	for _, i := range result.Applied {
		status[i] = "applied"
	}
	for _, i := range result.Failed {
		status[i] = "failed"
	}
	for i, op := range ops {
		s, ok := status[i]
		if !ok {
			s = "skipped"
		}
		m.operations.WithLabelValues(string(kindOf(op)), s).Inc()
	}
}
