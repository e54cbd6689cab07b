package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancer_bridge_reconnects_total",
		Help: "Enclave connections torn down and awaited again.",
	})
	finalizeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancer_bridge_finalize_failures_total",
		Help: "Responses whose storage upload or on-chain commit failed.",
	})
)
