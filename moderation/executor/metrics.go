package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_platform_actions_total",
	Help: "Number of platform actions performed, by direction, infraction type and outcome",
}, []string{"direction", "type", "outcome"})
