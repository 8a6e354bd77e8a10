package commands

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsInvoked = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_commands_invoked",
	Help: "Number of bot commands invoked, by command and result",
}, []string{"command", "status"})
