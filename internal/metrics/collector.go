// Package metrics exposes Prometheus counters for provider calls, media
// transcoding and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hpn/caseflow/internal/domain"
)

// Namespace prefixes every metric name.
const Namespace = "caseflow"

// Collector owns a private registry so separate instances never collide.
type Collector struct {
	registry *prometheus.Registry

	invocationsTotal *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	transcodeTotal   *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers all caseflow metrics on a fresh registry. Process and
// Go runtime collectors are included when withRuntime is set.
func NewCollector(withRuntime bool) *Collector {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		invocationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "provider_invocations_total",
			Help:      "Provider calls by outcome (success or failure kind).",
		}, []string{"provider", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "provider_latency_seconds",
			Help:      "Round-trip latency of provider calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		transcodeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transcode_total",
			Help:      "Uploads handled by the transcoder, by path.",
		}, []string{"path"}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveInvocation records one provider call. Calls rejected before the
// network have zero elapsed time and are not added to the latency histogram.
func (c *Collector) ObserveInvocation(provider domain.ProviderID, outcome string, elapsed time.Duration) {
	c.invocationsTotal.WithLabelValues(string(provider), outcome).Inc()
	if elapsed > 0 {
		c.latency.WithLabelValues(string(provider)).Observe(elapsed.Seconds())
	}
}

// ObserveTranscode records which transcoder path an upload took.
func (c *Collector) ObserveTranscode(path string) {
	c.transcodeTotal.WithLabelValues(path).Inc()
}

// ObserveHTTP records one served request. route is the matched route
// template, never the raw path.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
