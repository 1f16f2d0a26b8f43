package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the server's prometheus collectors, registered on a
// per-server registry so tests can spin up servers independently.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	TaxRuns     *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "espp_http_requests_total",
			Help: "HTTP requests by path and status code.",
		}, []string{"path", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "espp_http_request_duration_seconds",
			Help:    "HTTP request duration by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		TaxRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "espp_tax_runs_total",
			Help: "Tax-year computations by outcome.",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "espp_tax_run_duration_seconds",
			Help:    "Duration of one tax-year computation.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
