package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"call-relay/internal/calls"
	"call-relay/internal/signaling"
)

// Metrics owns a private registry with the call-relay series. It observes
// the call lifecycle and signaling log and exposes /metrics.
type Metrics struct {
	registry *prometheus.Registry

	callsCreated  *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	callDuration  prometheus.Histogram
	signals       *prometheus.CounterVec
	sweepAffected *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		callsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_calls_created_total",
			Help: "Call sessions created, by call type",
		}, []string{"call_type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_call_transitions_total",
			Help: "Committed call status transitions",
		}, []string{"from", "to"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "callrelay_call_duration_seconds",
			Help:    "Duration of calls that reached active, observed when they end",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_signals_total",
			Help: "Signaling messages appended, by type",
		}, []string{"type"}),
		sweepAffected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_sweep_affected_total",
			Help: "Calls expired or purged by sweeps",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callrelay_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.callsCreated, m.transitions, m.callDuration, m.signals,
		m.sweepAffected, m.httpRequests, m.httpLatency,
		newUptimeCollector(time.Now()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CallCreated implements calls.Observer.
func (m *Metrics) CallCreated(ctx context.Context, c calls.Call) {
	m.callsCreated.WithLabelValues(string(c.CallType)).Inc()
}

func (m *Metrics) CallStatusChanged(ctx context.Context, c calls.Call, from calls.Status) {
	m.transitions.WithLabelValues(string(from), string(c.Status)).Inc()
	if c.Status.Terminal() && c.DurationSeconds != nil {
		m.callDuration.Observe(float64(*c.DurationSeconds))
	}
}

// SignalAppended implements signaling.Observer.
func (m *Metrics) SignalAppended(ctx context.Context, msg signaling.Message) {
	m.signals.WithLabelValues(string(msg.Type)).Inc()
}

func (m *Metrics) SweepCompleted(kind string, affected int64) {
	m.sweepAffected.WithLabelValues(kind).Add(float64(affected))
}

// Middleware records request counts and latency keyed by the matched route
// template, so call ids never become label values.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

type uptimeCollector struct {
	start time.Time
	desc  *prometheus.Desc
}

func newUptimeCollector(start time.Time) *uptimeCollector {
	return &uptimeCollector{
		start: start,
		desc: prometheus.NewDesc(
			"callrelay_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (u *uptimeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- u.desc
}

// Collect implements prometheus.Collector.
func (u *uptimeCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(u.desc, prometheus.GaugeValue, time.Since(u.start).Seconds())
}
