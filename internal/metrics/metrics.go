package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "robline"

// Metrics holds the lifecycle metrics. A nil *Metrics records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsCreated   prometheus.Counter
	Transitions       *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	RequestsByStatus  *prometheus.GaugeVec
	OperationDuration *prometheus.HistogramVec
}

// New registers the metrics on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RequestsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_created_total",
			Help:      "The total number of robbing requests created",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Accepted status transitions",
		}, []string{"from", "to", "role"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected operations by error kind",
		}, []string{"kind"}),
		RequestsByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_by_status",
			Help:      "Current number of requests per status",
		}, []string{"status"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time taken by engine operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) Created() {
	if m == nil {
		return
	}
	m.RequestsCreated.Inc()
}

func (m *Metrics) Transition(from, to, role string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to, role).Inc()
}

func (m *Metrics) Rejected(kind string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) StatusCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.RequestsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// Since records the time elapsed since start for operation.
func (m *Metrics) Since(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
