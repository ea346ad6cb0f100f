package approval

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors for the approval queue.
type Metrics struct {
	pending     prometheus.Gauge
	resolutions *prometheus.CounterVec
}

// NewMetrics registers the queue collectors on reg. Collectors already
// registered by another Queue are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskd_pending_tasks",
		Help: "Number of extracted tasks awaiting approval",
	})
	resolutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskd_pending_resolutions_total",
			Help: "Pending tasks resolved, by action (approve, reject)",
		},
		[]string{"action"},
	)

	m := &Metrics{pending: pending, resolutions: resolutions}
	if reg == nil {
		return m, nil
	}

	if err := reg.Register(pending); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil, err
		}
		m.pending = existing
	}
	if err := reg.Register(resolutions); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		m.resolutions = existing
	}
	return m, nil
}

func (m *Metrics) setPending(n int) {
	m.pending.Set(float64(n))
}

func (m *Metrics) resolved(action string) {
	m.resolutions.WithLabelValues(action).Inc()
}
