// Package observability exposes the service's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts API requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuttlepass_http_requests_total",
			Help: "Total HTTP requests processed by the API.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes API request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shuttlepass_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// PortalRequests counts remote portal calls by endpoint and outcome
	// (ok, rejected, decode_error, session_expired, error).
	PortalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuttlepass_portal_requests_total",
			Help: "Remote reservation portal calls by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	// PassesIssued counts boarding credentials issued by kind
	// (temp, reserved) to spot drift between the two paths.
	PassesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuttlepass_passes_issued_total",
			Help: "Boarding credentials issued, by kind.",
		},
		[]string{"kind"},
	)

	// ScheduleRefreshes counts schedule refreshes by trigger and result.
	ScheduleRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuttlepass_schedule_refreshes_total",
			Help: "Schedule refresh attempts by trigger (manual, auto) and result.",
		},
		[]string{"trigger", "result"},
	)
)
