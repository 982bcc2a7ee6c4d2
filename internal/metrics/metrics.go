package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Reservations  *prometheus.CounterVec
	Settlements   *prometheus.CounterVec
	AwardBookings *prometheus.CounterVec
	AwardPoints   prometheus.Counter
	BalanceCalls  *prometheus.HistogramVec

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "skymiles"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Capacity reservations by result.",
		}, []string{"result"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Pay-with-points settlements by final state.",
		}, []string{"state"}),
		AwardBookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "award_bookings_total",
			Help:      "Bookings handled by the award job by result.",
		}, []string{"result"}),
		AwardPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "award_points_total",
			Help:      "Points credited by the award job.",
		}),
		BalanceCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "balance_call_duration_seconds",
			Help:      "Duration of balance service calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(m.Reservations, m.Settlements, m.AwardBookings, m.AwardPoints, m.BalanceCalls, m.requests, m.durations)
	return m
}

// Middleware records every request under its gin route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.durations.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
