package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PilotsSignedUp = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "pilots_signed_up_total", Help: "Pilots created through signup"})
	PilotsVerified = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "pilots_verified_total", Help: "Pilots marked verified"},
		[]string{"source"},
	)

	RidesCreated  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "rides_created_total", Help: "Simulated rides persisted"})
	ChargesFailed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "charges_failed_total", Help: "Ride charges rejected by the payments platform"})
	ChargeLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "rocket_deliveries", Name: "charge_latency_seconds", Help: "Ride charge latency seconds"})

	PayoutsRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "payouts_requested_total", Help: "Payout requests created"})
	PayoutsFailed    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "payouts_failed_total", Help: "Payout requests that failed"})

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "webhook_events_total", Help: "Webhook events received"},
		[]string{"type", "outcome"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "events_published_total", Help: "Domain events published"},
		[]string{"type", "outcome"},
	)

	DashboardsOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "rocket_deliveries", Name: "dashboards_online", Help: "Open dashboard websocket connections"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rocket_deliveries", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rocket_deliveries",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
