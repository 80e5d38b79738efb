// Package metrics exposes Prometheus collectors for the chat core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nfrund/hackchat/internal/domain"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	WsConnections       prometheus.Gauge
	WsEvictions         *prometheus.CounterVec
	MessagesIngested    *prometheus.CounterVec
	MessagesRejected    *prometheus.CounterVec
	FanoutDelivered     *prometheus.CounterVec
	FanoutDropped       *prometheus.CounterVec
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		WsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Current number of active websocket connections",
		}),
		WsEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_ws_evictions_total",
			Help: "Connections closed by the server",
		}, []string{"reason"}),
		MessagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_ingested_total",
			Help: "Messages durably stored",
		}, []string{"room_type"}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_rejected_total",
			Help: "Send attempts that failed",
		}, []string{"kind"}),
		FanoutDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_fanout_delivered_total",
			Help: "Events handed to connections",
		}, []string{"event"}),
		FanoutDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_fanout_dropped_total",
			Help: "Events that could not be handed to a connection",
		}, []string{"event"}),
		HttpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HttpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	m.registry.MustRegister(
		m.WsConnections, m.WsEvictions,
		m.MessagesIngested, m.MessagesRejected,
		m.FanoutDelivered, m.FanoutDropped,
		m.HttpRequestsTotal, m.HttpRequestDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Delivered(event string, n int) { m.FanoutDelivered.WithLabelValues(event).Add(float64(n)) }
func (m *Metrics) Dropped(event string, n int)   { m.FanoutDropped.WithLabelValues(event).Add(float64(n)) }

func (m *Metrics) MessageIngested(roomType domain.RoomType) {
	m.MessagesIngested.WithLabelValues(string(roomType)).Inc()
}

func (m *Metrics) MessageRejected(kind string) { m.MessagesRejected.WithLabelValues(kind).Inc() }

func (m *Metrics) ConnectionOpened()          { m.WsConnections.Inc() }
func (m *Metrics) ConnectionClosed()          { m.WsConnections.Dec() }
func (m *Metrics) ConnectionEvicted(r string) { m.WsEvictions.WithLabelValues(r).Inc() }

// Middleware records request counts and latencies by route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			labels := prometheus.Labels{
				"method": c.Request().Method,
				"path":   path,
				"status": strconv.Itoa(c.Response().Status),
			}
			m.HttpRequestsTotal.With(labels).Inc()
			m.HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
