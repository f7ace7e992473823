package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// TransitionMetrics counts state machine activity for orders and batches.
type TransitionMetrics struct {
	repair     *prometheus.CounterVec
	batch      *prometheus.CounterVec
	rejections *prometheus.CounterVec
	cascade    prometheus.Histogram
}

// NewTransitionMetrics registers the transition metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewTransitionMetrics(reg prometheus.Registerer) *TransitionMetrics {
	if reg == nil {
		return &TransitionMetrics{}
	}
	repair := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "repair_transitions_total",
		Help: "Repair order status transitions applied.",
	}, []string{"from", "to", "scan"})
	batch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_transitions_total",
		Help: "Transport batch status transitions applied.",
	}, []string{"direction", "to"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transition_rejections_total",
		Help: "Transitions rejected by the state machines, by operation and error code.",
	}, []string{"operation", "code"})
	cascade := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batch_receive_cascade_orders",
		Help:    "Number of repair orders cascaded per batch receipt.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})
	reg.MustRegister(repair, batch, rejections, cascade)
	return &TransitionMetrics{
		repair:     repair,
		batch:      batch,
		rejections: rejections,
		cascade:    cascade,
	}
}

// RepairTransition records one applied repair order transition.
func (m *TransitionMetrics) RepairTransition(from, to string, scan bool) {
	if m == nil || m.repair == nil {
		return
	}
	m.repair.WithLabelValues(normalizeLabel(from), normalizeLabel(to), strconv.FormatBool(scan)).Inc()
}

// BatchTransition records one applied batch transition.
func (m *TransitionMetrics) BatchTransition(direction, to string) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.WithLabelValues(normalizeLabel(direction), normalizeLabel(to)).Inc()
}

// Rejection records a refused operation.
func (m *TransitionMetrics) Rejection(operation, code string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

// CascadeSize observes how many orders a receipt moved.
func (m *TransitionMetrics) CascadeSize(n int) {
	if m == nil || m.cascade == nil {
		return
	}
	m.cascade.Observe(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
