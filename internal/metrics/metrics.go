package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of live charge point sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_sessions",
		Help: "The total number of active OCPP charge point sessions.",
	})

	// DashboardClients tracks the number of connected dashboard sockets.
	DashboardClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_dashboard_clients",
		Help: "The total number of connected dashboard WebSocket clients.",
	})

	// EventsPublished counts events published on the in-process bus, labeled by topic.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_events_published_total",
		Help: "Total number of events published on the event bus.",
	}, []string{"topic"})

	// CallsSent counts outbound OCPP calls, labeled by OCPP version, action and outcome.
	CallsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_calls_sent_total",
		Help: "Total number of outbound OCPP calls, by version, action and outcome.",
	}, []string{"ocpp_version", "action", "outcome"})

	// CallDuration observes the round-trip time of outbound OCPP calls.
	CallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csms_call_duration_seconds",
		Help:    "Histogram of outbound OCPP call round-trip times.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"action"})

	// PointsWritten counts points handed to the time-series writer, labeled by measurement.
	PointsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_points_written_total",
		Help: "Total number of points written to the time-series backend.",
	}, []string{"measurement"})
)

// RegisterMetrics registers all the defined Prometheus metrics.
// With promauto, registration is automatic; this function is kept for
// conceptual clarity at startup.
func RegisterMetrics() {}
