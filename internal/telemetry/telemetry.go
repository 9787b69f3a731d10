// Package telemetry owns the Prometheus collectors of one server instance.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesCommitted  *prometheus.CounterVec
	paymentsApplied *prometheus.CounterVec
	overdueDues     prometheus.Gauge
}

// NewRecorder registers its collectors on a private registry, so several
// recorders can coexist in one process.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		salesCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopdesk_sale_commits_total",
				Help: "Sale commit attempts by outcome",
			},
			[]string{"outcome"},
		),
		paymentsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopdesk_due_payments_total",
				Help: "Due payment attempts by outcome",
			},
			[]string{"outcome"},
		),
		overdueDues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopdesk_overdue_dues",
			Help: "Sales past their commitment date at the last sweep",
		}),
	}
	r.registry.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.salesCommitted,
		r.paymentsApplied,
		r.overdueDues,
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveRequest(method string, path string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (r *Recorder) SaleCommit(outcome string) {
	if r == nil {
		return
	}
	r.salesCommitted.WithLabelValues(outcome).Inc()
}

func (r *Recorder) DuePayment(outcome string) {
	if r == nil {
		return
	}
	r.paymentsApplied.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SetOverdueDues(n int) {
	if r == nil {
		return
	}
	r.overdueDues.Set(float64(n))
}
