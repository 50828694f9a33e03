// Package metrics exposes Prometheus collectors for the API process. Collectors live
// in their own registry so the metrics listener serves only what this service records.
package metrics

import (
	"net/http"

	"github.com/benvon/food-delivery/internal/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "food_delivery"

// DatabaseStatus reports the outcome of the database bootstrap
type DatabaseStatus interface {
	Status() database.Status
}

// Metrics holds the HTTP and dependency collectors
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// New creates the collectors. db may be nil, in which case no database gauge is exported.
func New(db DatabaseStatus) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Time taken to answer HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
	}

	if db != nil {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "database_up",
				Help:      "1 when the MongoDB connection is established, 0 otherwise",
			},
			func() float64 {
				if db.Status() == database.StatusConnected {
					return 1
				}
				return 0
			},
		)
	}

	return m
}

// Middleware records every request that passes through it
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerInFlight(m.InFlight,
		promhttp.InstrumentHandlerDuration(m.RequestDuration,
			promhttp.InstrumentHandlerCounter(m.RequestsTotal, next),
		),
	)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
