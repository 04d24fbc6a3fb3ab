// Package metrics exposes the Prometheus collectors for the orders API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "farmlink"

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route"})

	OrderTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order state transitions applied, by axis and target state.",
	}, []string{"axis", "to"})

	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Payment webhook events received, by type and outcome.",
	}, []string{"type", "outcome"})

	GatewayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_requests_total",
		Help:      "Payment gateway calls, by operation and outcome.",
	}, []string{"op", "outcome"})

	OutboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_published_total",
		Help:      "Outbox messages handed to the broker, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, OrderTransitions, WebhookEvents, GatewayRequests, OutboxPublished)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request counts and latency per route template
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveGatewayRequest counts one payment gateway call
func ObserveGatewayRequest(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	GatewayRequests.WithLabelValues(op, outcome).Inc()
}

// ObserveTransition counts one applied order transition
func ObserveTransition(axis, to string) {
	OrderTransitions.WithLabelValues(axis, to).Inc()
}

// ObserveWebhook counts one received webhook event
func ObserveWebhook(eventType, outcome string) {
	WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}
