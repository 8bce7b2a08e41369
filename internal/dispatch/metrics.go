package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "neurobot",
		Subsystem: "dispatch",
		Name:      "queue_depth",
		Help:      "Requests waiting for a concurrency slot or the rate window.",
	})

	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "neurobot",
		Subsystem: "dispatch",
		Name:      "in_flight",
		Help:      "Requests currently calling the upstream provider.",
	})

	startedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "neurobot",
		Subsystem: "dispatch",
		Name:      "started_total",
		Help:      "Requests admitted to the upstream provider.",
	})

	completedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neurobot",
		Subsystem: "dispatch",
		Name:      "completed_total",
		Help:      "Finished requests by outcome category.",
	}, []string{"outcome"})

	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neurobot",
		Subsystem: "dispatch",
		Name:      "model_fallbacks_total",
		Help:      "Candidates skipped because the model was unavailable.",
	}, []string{"model"})

	deferredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "neurobot",
		Subsystem: "dispatch",
		Name:      "rate_deferrals_total",
		Help:      "Times queue processing waited for the rate window.",
	})
)
