// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsTotal counts quota reservations by principal kind and result.
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoma",
		Subsystem: "quota",
		Name:      "reservations_total",
		Help:      "Attempt reservations by principal kind (user/visitor) and result.",
	}, []string{"principal", "result"})

	// RefundsTotal counts attempts returned after a failed generation.
	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoma",
		Subsystem: "quota",
		Name:      "refunds_total",
		Help:      "Attempts refunded after a failed generation, by principal kind.",
	}, []string{"principal"})

	// GenerationsTotal counts generation requests by outcome.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoma",
		Name:      "generations_total",
		Help:      "Image generation requests by outcome.",
	}, []string{"outcome"})

	// CheckoutSessionsTotal counts checkout attempts by purchase type and outcome.
	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoma",
		Subsystem: "checkout",
		Name:      "sessions_total",
		Help:      "Checkout session requests by purchase type and outcome.",
	}, []string{"purchase_type", "outcome"})

	// SettlementsTotal counts webhook settlements by result.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoma",
		Subsystem: "settlement",
		Name:      "events_total",
		Help:      "Settlement outcomes (processed/duplicate/ignored/failed).",
	}, []string{"status"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoma",
		Subsystem: "settlement",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "neoma",
		Subsystem: "settlement",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// HTTPRequestDuration tracks API latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "neoma",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
