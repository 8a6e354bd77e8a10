package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var infractionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_infractions_applied",
	Help: "Number of infractions created, by type and platform outcome",
}, []string{"type", "outcome"})

var deactivations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_infractions_deactivated",
	Help: "Number of infractions deactivated, by type and trigger",
}, []string{"type", "trigger"})

var deactivationSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_deactivations_skipped",
	Help: "Number of deactivation attempts which lost the race to another path",
}, []string{"trigger"})

var scheduledTimers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "warden_scheduled_timers",
	Help: "Number of pending infraction expiry timers",
})

var notifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_notifications",
	Help: "Number of direct messages attempted to infraction subjects",
}, []string{"kind", "status"})

var reconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_reconcile_runs",
	Help: "Number of reconciliation sweeps completed",
})

var reconcileActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_reconcile_actions",
	Help: "Corrections made by reconciliation sweeps, by action",
}, []string{"action"})

var reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "warden_reconcile_duration_sec",
	Help:    "Duration of reconciliation sweeps",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
})

var lateLifts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_infractions_lifted_late",
	Help: "Number of platform effects lifted again because the infraction was deactivated while they were being applied",
}, []string{"type"})
