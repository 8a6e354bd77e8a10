package verification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verificationsAccepted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_verifications_accepted",
	Help: "Number of members who accepted the rules",
})

var subscriptions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_announcement_subscriptions",
	Help: "Announcement role changes, by direction",
}, []string{"action"})

var remindersPosted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_verification_reminders_posted",
	Help: "Number of verification reminders posted",
})
