package modlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var entriesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_log_entries_sent",
	Help: "Number of log entries posted, by channel",
}, []string{"channel"})

var eventsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_log_events_suppressed",
	Help: "Number of platform events not logged because the bot caused them",
}, []string{"kind"})
