// Package middleware contains HTTP middleware for the API server
package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration in seconds partitioned by method, route, and status code
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// CampaignExecutionsTotal counts execution runs partitioned by result
	CampaignExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_executions_total",
			Help: "Total number of campaign execution runs",
		},
		[]string{"result"},
	)

	// ContactCallsDispatched counts voice calls handed to the provider
	ContactCallsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contact_calls_dispatched_total",
			Help: "Total number of contact calls dispatched to the voice provider",
		},
	)

	// ContactCallsFailed counts contact dispatches that failed
	ContactCallsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contact_calls_failed_total",
			Help: "Total number of contact call dispatches that failed",
		},
	)

	// WebhookEventsTotal counts inbound provider callbacks by type
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of provider webhook events received",
		},
		[]string{"type"},
	)
)

// Metrics returns a Fiber middleware that records request metrics. The
// matched route template is used as the label to keep cardinality low.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}

		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}
