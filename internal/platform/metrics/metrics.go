package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec

	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamErrors          *prometheus.CounterVec

	ResolveCacheHits   prometheus.Counter
	ResolveCacheMisses prometheus.Counter
	StaleFallbacks     prometheus.Counter
	SearchCacheHits    prometheus.Counter
	SearchCacheMisses  prometheus.Counter

	AttachmentsCreated prometheus.Counter
	AttachmentsRemoved prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docid_rrid_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		UpstreamRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "docid_rrid_upstream_request_duration_seconds",
			Help: "SciCrunch request latency by endpoint and outcome.",
			// Upstream tail latency runs into tens of seconds.
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"endpoint", "outcome"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docid_rrid_upstream_errors_total",
			Help: "Upstream failures by endpoint and class.",
		}, []string{"endpoint", "class"}),
		ResolveCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docid_rrid_resolve_cache_hits_total",
			Help: "Resolutions served from a fresh persisted payload.",
		}),
		ResolveCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docid_rrid_resolve_cache_misses_total",
			Help: "Resolutions that required an upstream refresh.",
		}),
		StaleFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docid_rrid_resolve_stale_fallbacks_total",
			Help: "Resolutions that fell back to stale cached data after an upstream failure.",
		}),
		SearchCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docid_rrid_search_cache_hits_total",
			Help: "Search responses served from Redis.",
		}),
		SearchCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docid_rrid_search_cache_misses_total",
			Help: "Search requests that went to the upstream service.",
		}),
		AttachmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docid_rrid_attachments_created_total",
			Help: "Identifier attachments created.",
		}),
		AttachmentsRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docid_rrid_attachments_removed_total",
			Help: "Identifier attachments removed via detach or cascade.",
		}),
	}
}

// ObserveUpstream records one upstream call.
func (m *Metrics) ObserveUpstream(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequestDuration.WithLabelValues(endpoint, outcome).Observe(elapsed.Seconds())
}

// RecordUpstreamError counts one upstream failure.
func (m *Metrics) RecordUpstreamError(endpoint, class string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(endpoint, class).Inc()
}

// RecordResolveCacheHit counts a fresh-cache resolution.
func (m *Metrics) RecordResolveCacheHit() {
	if m == nil {
		return
	}
	m.ResolveCacheHits.Inc()
}

// RecordResolveCacheMiss counts a resolution that needed a refresh.
func (m *Metrics) RecordResolveCacheMiss() {
	if m == nil {
		return
	}
	m.ResolveCacheMisses.Inc()
}

// RecordStaleFallback counts a degraded stale-data resolution.
func (m *Metrics) RecordStaleFallback() {
	if m == nil {
		return
	}
	m.StaleFallbacks.Inc()
}

// RecordSearchCache counts a Redis search cache lookup.
func (m *Metrics) RecordSearchCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.SearchCacheHits.Inc()
		return
	}
	m.SearchCacheMisses.Inc()
}

// RecordAttachmentCreated counts one successful attach.
func (m *Metrics) RecordAttachmentCreated() {
	if m == nil {
		return
	}
	m.AttachmentsCreated.Inc()
}

// RecordAttachmentsRemoved counts detached or cascaded rows.
func (m *Metrics) RecordAttachmentsRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AttachmentsRemoved.Add(float64(n))
}
