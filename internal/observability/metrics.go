package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap API call rate per endpoint (weather, forecast).
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p99 near the client timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Failed provider calls by category (timeout, network, parsing, ...).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Record store operations by operation and outcome.
	StoreOperationsTotal *prometheus.CounterVec

	// Record store latency per operation.
	StoreOperationDuration *prometheus.HistogramVec

	// Records written, by source (fetch = insert-after-fetch, manual = POST /history).
	RecordsInsertedTotal *prometheus.CounterVec

	// Lookups where the provider returned no temperature, so nothing was stored.
	RecordsSkippedTotal prometheus.Counter

	// Rows streamed by /export.
	ExportRowsTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Failed OpenWeatherMap API calls by error category",
		},
		[]string{"endpoint", "category"},
	)
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeOperationsTotal",
			Help: "Record store operations by operation and result",
		},
		[]string{"backend", "operation", "result"},
	)
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeOperationDurationSeconds",
			Help:    "Record store latency in seconds (per operation)",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"backend", "operation"},
	)
	RecordsInsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsInsertedTotal",
			Help: "Weather records written to the store, by source",
		},
		[]string{"source"},
	)
	RecordsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recordsSkippedTotal",
			Help: "Weather lookups not stored because the provider returned no temperature",
		},
	)
	ExportRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exportRowsTotal",
			Help: "Rows written by CSV export",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		StoreOperationsTotal, StoreOperationDuration,
		RecordsInsertedTotal, RecordsSkippedTotal, ExportRowsTotal,
	)
}

// ObserveStoreOperation records the outcome and latency of one store call.
func ObserveStoreOperation(backend, operation string, seconds float64, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StoreOperationsTotal.WithLabelValues(backend, operation, result).Inc()
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(seconds)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
