// Package metrics exposes Prometheus instrumentation for the store, the HTTP
// API and the maintenance reminder worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	storeOps        *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	importSkipped   *prometheus.CounterVec
	changeEvents    *prometheus.CounterVec
	maintenanceDues *prometheus.GaugeVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entregas_store_operations_total",
			Help: "Store operations by collection, operation and outcome.",
		}, []string{"collection", "op", "status"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entregas_store_operation_duration_seconds",
			Help:    "Store operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entregas_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entregas_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		importSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entregas_import_skipped_records_total",
			Help: "Records skipped during import, by collection.",
		}, []string{"collection"}),
		changeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entregas_change_events_total",
			Help: "Ledger change events by direction and outcome.",
		}, []string{"direction", "status"}),
		maintenanceDues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "entregas_maintenance_items",
			Help: "Maintenance items by computed status at the last reminder check.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.storeOps, m.storeDuration,
		m.httpRequests, m.httpDuration,
		m.importSkipped, m.changeEvents, m.maintenanceDues,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStore records one store call.
func (m *Metrics) ObserveStore(collection, op string, started time.Time, err error) {
	m.storeOps.WithLabelValues(collection, op, status(err)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveHTTP records one served request. route is the mux pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ImportSkipped counts records dropped during an import.
func (m *Metrics) ImportSkipped(collection string, n int) {
	if n > 0 {
		m.importSkipped.WithLabelValues(collection).Add(float64(n))
	}
}

// ChangeEvent counts a published ("out") or consumed ("in") change event.
func (m *Metrics) ChangeEvent(direction string, err error) {
	m.changeEvents.WithLabelValues(direction, status(err)).Inc()
}

// SetMaintenanceCounts replaces the per-status item counts.
func (m *Metrics) SetMaintenanceCounts(counts map[string]int) {
	m.maintenanceDues.Reset()
	for s, n := range counts {
		m.maintenanceDues.WithLabelValues(s).Set(float64(n))
	}
}
