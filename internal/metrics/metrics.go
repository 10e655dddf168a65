package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of the API
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access control metrics
	AccessDecisionsTotal *prometheus.CounterVec
	GrantCacheLookups    *prometheus.CounterVec
	SeedingFailuresTotal prometheus.Counter

	// Audit metrics
	ValveChangesTotal *prometheus.CounterVec
	RangeRejections   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all collectors on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waterworks_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waterworks_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waterworks_access_decisions_total",
				Help: "Access evaluator decisions by page, action and result",
			},
			[]string{"page", "action", "result"},
		),
		GrantCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waterworks_grant_cache_lookups_total",
				Help: "Permission grant cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		SeedingFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "waterworks_role_seeding_failures_total",
				Help: "Default permission rows that failed to seed on role creation",
			},
		),
		ValveChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waterworks_valve_changes_total",
				Help: "Valve change log entries written, by field",
			},
			[]string{"field"},
		),
		RangeRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "waterworks_valve_range_rejections_total",
				Help: "Valve updates rejected by the condition range check",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessDecisionsTotal,
		m.GrantCacheLookups,
		m.SeedingFailuresTotal,
		m.ValveChangesTotal,
		m.RangeRejections,
	)

	return m
}

// Decision records one access evaluation. Safe on a nil receiver.
func (m *Metrics) Decision(page, action string, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.AccessDecisionsTotal.WithLabelValues(page, action, result).Inc()
}

// CacheLookup records a grant cache hit or miss. Safe on a nil receiver.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.GrantCacheLookups.WithLabelValues(outcome).Inc()
}

// SeedingFailure counts a swallowed default permission failure. Safe on a nil receiver.
func (m *Metrics) SeedingFailure() {
	if m == nil {
		return
	}
	m.SeedingFailuresTotal.Inc()
}

// ValveChange counts one change log entry. Safe on a nil receiver.
func (m *Metrics) ValveChange(field string) {
	if m == nil {
		return
	}
	m.ValveChangesTotal.WithLabelValues(field).Inc()
}

// RangeRejection counts a rejected valve update. Safe on a nil receiver.
func (m *Metrics) RangeRejection() {
	if m == nil {
		return
	}
	m.RangeRejections.Inc()
}

// Middleware records request count and latency using the matched route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
