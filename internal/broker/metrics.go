package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancer_submissions_accepted_total",
		Help: "Submissions verified and enqueued for the bridge.",
	})
	submissionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancer_submissions_rejected_total",
		Help: "Submissions rejected at ingress (verification or back-pressure).",
	})
)
