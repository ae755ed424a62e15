package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure|mfa_required).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensewatch_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "licensewatch_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestsInFlight counts HTTP requests currently being served.
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "licensewatch_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)

	// HandlerPanics counts panics recovered from HTTP handlers.
	HandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licensewatch_http_handler_panics_total",
			Help: "Panics recovered from HTTP handlers",
		},
	)

	// SweepRuns counts expiring-license sweeps by outcome (success|error|skipped).
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensewatch_expiry_sweep_runs_total",
			Help: "Total number of expiring-license notification sweeps",
		},
		[]string{"result"},
	)

	// SweepEmails counts owner emails attempted by the sweep, by result (sent|failed).
	SweepEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensewatch_expiry_sweep_emails_total",
			Help: "Expiration notice emails attempted",
		},
		[]string{"result"},
	)

	// NotificationsCreated counts notification records persisted, by urgency.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensewatch_notifications_created_total",
			Help: "Notification records created",
		},
		[]string{"urgency"},
	)

	// AuditWriteFailures counts audit entries that could not be persisted after a committed mutation.
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licensewatch_audit_write_failures_total",
			Help: "Audit log writes that failed after the entity write committed",
		},
	)

	// RealtimeClients tracks open notification websocket connections.
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "licensewatch_realtime_clients",
			Help: "Connected notification websocket clients",
		},
	)

	// RealtimeDropped counts clients disconnected because their send buffer was full.
	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licensewatch_realtime_dropped_clients_total",
			Help: "Websocket clients dropped for falling behind",
		},
	)

	// ProbeStatus reports the last readiness result per component: 1 up, 0.5 degraded, 0 down.
	ProbeStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "licensewatch_health_probe_status",
			Help: "Last readiness probe result by component",
		},
		[]string{"component"},
	)
)
