package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "omnicall"

var (
	opCountDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "operation", "count_total"),
		"Completed operations by type.", []string{"op"}, nil)
	opErrorDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "operation", "errors_total"),
		"Failed operations by type.", []string{"op"}, nil)
	opSecondsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "operation", "seconds_total"),
		"Cumulative operation time by type.", []string{"op"}, nil)
	tokensDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "llm", "tokens_total"),
		"LLM tokens by operation and direction.", []string{"op", "direction"}, nil)
	uptimeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "uptime_seconds"),
		"Seconds since the collector was created.", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- opCountDesc
	ch <- opErrorDesc
	ch <- opSecondsDesc
	ch <- tokensDesc
	ch <- uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds())
	for _, name := range c.opNames() {
		m := c.ops[name]
		ch <- prometheus.MustNewConstMetric(opCountDesc, prometheus.CounterValue, float64(m.Count), name)
		ch <- prometheus.MustNewConstMetric(opErrorDesc, prometheus.CounterValue, float64(m.Errors), name)
		ch <- prometheus.MustNewConstMetric(opSecondsDesc, prometheus.CounterValue, m.TotalTime.Seconds(), name)
		if m.TotalInputTokens > 0 || m.TotalOutputTokens > 0 {
			ch <- prometheus.MustNewConstMetric(tokensDesc, prometheus.CounterValue, float64(m.TotalInputTokens), name, "input")
			ch <- prometheus.MustNewConstMetric(tokensDesc, prometheus.CounterValue, float64(m.TotalOutputTokens), name, "output")
		}
	}
}

// Registry bundles the collector with live-session instruments on a private
// Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveSessionDuration prometheus.Histogram
	LiveAudioBytesTotal *prometheus.CounterVec
	DroppedFramesTotal  prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
}

// NewRegistry registers c and the live-session metrics.
func NewRegistry(c *Collector) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		LiveSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of active live sessions",
		}),
		LiveSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of live sessions by outcome",
		}, []string{"status"}),
		LiveSessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LiveAudioBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_bytes_total",
			Help:      "Audio bytes relayed in live sessions",
		}, []string{"direction"}),
		DroppedFramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_dropped_frames_total",
			Help:      "Capture frames dropped because the send queue was full",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		c,
		r.LiveSessionsActive,
		r.LiveSessionsTotal,
		r.LiveSessionDuration,
		r.LiveAudioBytesTotal,
		r.DroppedFramesTotal,
		r.HTTPRequestsTotal,
	)
	return r
}

// Handler returns an HTTP handler for the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordLiveSessionStart records a new live session starting.
func (r *Registry) RecordLiveSessionStart() {
	if r == nil {
		return
	}
	r.LiveSessionsActive.Inc()
}

// RecordLiveSessionEnd records a live session ending.
func (r *Registry) RecordLiveSessionEnd(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.LiveSessionsActive.Dec()
	r.LiveSessionsTotal.WithLabelValues(status).Inc()
	r.LiveSessionDuration.Observe(duration.Seconds())
}

// RecordLiveAudio records audio bytes relayed in direction "in" or "out".
func (r *Registry) RecordLiveAudio(direction string, bytes int) {
	if r == nil {
		return
	}
	r.LiveAudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordDroppedFrames adds n dropped capture frames.
func (r *Registry) RecordDroppedFrames(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.DroppedFramesTotal.Add(float64(n))
}
