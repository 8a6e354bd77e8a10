package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var suppressionsExpected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_suppressions_expected",
	Help: "Number of self-caused platform events registered for suppression",
}, []string{"kind"})

var suppressionsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_suppressions_consumed",
	Help: "Number of platform events suppressed as self-caused",
}, []string{"kind"})
