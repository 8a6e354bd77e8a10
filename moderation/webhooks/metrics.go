package webhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var webhooksRemoved = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_webhooks_removed",
	Help: "Number of messages deleted for containing a webhook URL",
})
