package flowstore

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/metric"
)

type storeMetrics struct {
	backend    string
	operations *prometheus.CounterVec
}

func newStoreMetrics(registry *metric.MetricsRegistry, backend string) (*storeMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &storeMetrics{
		backend: backend,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of flow store operations by result",
		}, []string{"backend", "op", "result"}),
	}
	if err := registry.RegisterCounterVec("flowstore", "operations", m.operations); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *storeMetrics) record(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(m.backend, op, result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsConflict(err):
		return "conflict"
	case errors.IsInvalid(err):
		return "invalid"
	default:
		return "error"
	}
}
