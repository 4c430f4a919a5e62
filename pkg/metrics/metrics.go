package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/amoylab/chatterbox/internal/common/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	namespace     string
	httpReqCnt    *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
	httpInfl      *prometheus.GaugeVec
	connections   prometheus.Gauge
	commandCnt    *prometheus.CounterVec
	commandDur    *prometheus.HistogramVec
	eventsRouted  *prometheus.CounterVec
	eventsDeliv   *prometheus.CounterVec
	presenceExp   prometheus.Counter
	storeRetryCnt *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	connections := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "socket_connections"})
	commandCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "socket_commands_total"}, []string{"command", "status"})
	commandDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "socket_command_duration_seconds", Buckets: cfg.Buckets}, []string{"command"})
	r.MustRegister(connections, commandCnt, commandDur)

	eventsRouted := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "bus_events_total"}, []string{"event"})
	eventsDeliv := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "bus_event_deliveries_total"}, []string{"event"})
	presenceExp := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "presence_expired_total"})
	storeRetryCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "store_retries_total"}, []string{"op"})
	r.MustRegister(eventsRouted, eventsDeliv, presenceExp, storeRetryCnt)

	return &Metrics{
		registry:      r,
		namespace:     ns,
		httpReqCnt:    httpReqCnt,
		httpDur:       httpDur,
		httpInfl:      httpInfl,
		connections:   connections,
		commandCnt:    commandCnt,
		commandDur:    commandDur,
		eventsRouted:  eventsRouted,
		eventsDeliv:   eventsDeliv,
		presenceExp:   presenceExp,
		storeRetryCnt: storeRetryCnt,
	}
}

func (m *Metrics) ConnOpened() {
	m.connections.Inc()
}

func (m *Metrics) ConnClosed() {
	m.connections.Dec()
}

// CommandDone records one socket command; status is ok, rejected or error.
func (m *Metrics) CommandDone(command string, since time.Time, status string) {
	m.commandCnt.WithLabelValues(command, status).Inc()
	m.commandDur.WithLabelValues(command).Observe(time.Since(since).Seconds())
}

// EventRouted records a bus event and how many local connections received it
func (m *Metrics) EventRouted(event string, delivered int) {
	m.eventsRouted.WithLabelValues(event).Inc()
	m.eventsDeliv.WithLabelValues(event).Add(float64(delivered))
}

func (m *Metrics) PresenceExpired(n int) {
	m.presenceExp.Add(float64(n))
}

func (m *Metrics) StoreRetried(op string) {
	m.storeRetryCnt.WithLabelValues(op).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := httpStatus(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func httpStatus(code int) string { return strconv.Itoa(code) }
