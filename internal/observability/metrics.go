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

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream OpenWeather call rate by endpoint (current, forecast, geo_direct,
	// geo_zip, geo_reverse). Watch for: error vs success ratio per endpoint.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per endpoint. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	UpstreamDurationSeconds *prometheus.HistogramVec

	// Cache hits and misses per key class (current, forecast, geocode).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Capacity evictions from the bounded LRU. Watch for: sustained evictions = cache too small.
	CacheEvictionsTotal prometheus.Counter

	// Location upserts by outcome (created, existing). existing/created ratio shows dedup effectiveness.
	LocationUpsertsTotal *prometheus.CounterVec

	// Weather record store writes by operation (create, update, delete) and status.
	RecordWritesTotal *prometheus.CounterVec

	// Requests that waited on an identical in-flight upstream call instead of issuing their own.
	CoalescedRequestsTotal prometheus.Counter

	// Export downloads by format (csv, json, pdf).
	ExportsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
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
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream OpenWeather API calls by endpoint",
		},
		[]string{"endpoint", "status"},
	)
	UpstreamDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream OpenWeather API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of response cache hits by key class",
		},
		[]string{"class"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of response cache misses by key class",
		},
		[]string{"class"},
	)
	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Total number of LRU capacity evictions from the response cache",
		},
	)
	LocationUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationUpsertsTotal",
			Help: "Location find-or-create operations by outcome (created, existing)",
		},
		[]string{"outcome"},
	)
	RecordWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordWritesTotal",
			Help: "Weather record store writes by operation and status",
		},
		[]string{"operation", "status"},
	)
	CoalescedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "Requests served by waiting on an identical in-flight upstream call",
		},
	)
	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exportsTotal",
			Help: "Export downloads by format",
		},
		[]string{"format"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDurationSeconds,
		CacheHitsTotal, CacheMissesTotal, CacheEvictionsTotal,
		LocationUpsertsTotal, RecordWritesTotal,
		CoalescedRequestsTotal, ExportsTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
