// Package metrics declares the server's Prometheus collectors. They are
// registered with the default registry at init and served by promhttp on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Snapshot results recorded by SnapshotsReceived.
const (
	ResultAccepted = "accepted"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

var (
	// SnapshotsReceived counts SubmitSnapshot calls by outcome.
	SnapshotsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthwatch_snapshots_received_total",
			Help: "Total number of snapshots received from agents.",
		},
		[]string{"result"},
	)

	// AlertsOpened counts newly created alerts.
	AlertsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthwatch_alerts_opened_total",
			Help: "Total number of alerts opened.",
		},
		[]string{"alert_type", "severity"},
	)

	// AlertsResolved counts alerts closed by the engine or by an operator.
	AlertsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthwatch_alerts_resolved_total",
			Help: "Total number of alerts resolved.",
		},
		[]string{"alert_type"},
	)

	// RuleErrors counts rule evaluations that failed to persist.
	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthwatch_rule_errors_total",
			Help: "Total number of alert rule evaluations that failed.",
		},
		[]string{"alert_type"},
	)

	// RetentionDeleted counts resolved alerts removed by the retention sweep.
	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthwatch_retention_deleted_total",
			Help: "Total number of resolved alerts deleted by the retention sweep.",
		},
	)

	// AnalyzeDuration observes the time taken to run all rules for one snapshot.
	AnalyzeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthwatch_analyze_duration_seconds",
			Help:    "Time taken to evaluate alert rules for one snapshot.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// NotificationsFailed counts alert notifications that could not be delivered.
	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthwatch_notifications_failed_total",
			Help: "Total number of alert notifications that failed delivery.",
		},
		[]string{"target"},
	)

	// MachinesTracked is the number of machines in the fleet view.
	MachinesTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthwatch_machines_tracked",
			Help: "Number of machines currently held in the fleet view.",
		},
	)
)
