package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeCached labels classifications served from the result cache.
	OutcomeCached = "cached"
	// OutcomeModel labels classifications produced by the language model.
	OutcomeModel = "model"
	// OutcomeFallback labels classifications produced by keyword matching.
	OutcomeFallback = "fallback"
)

var (
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticket_classifier",
			Name:      "classifications_total",
			Help:      "Total number of classifications handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	classificationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ticket_classifier",
			Name:      "classification_seconds",
			Help:      "End-to-end classification latency in seconds.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		},
	)

	correctionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ticket_classifier",
			Name:      "corrections_total",
			Help:      "Total number of human label corrections applied.",
		},
	)
)

// Register attaches the classifier collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		classificationsTotal,
		classificationDurationSeconds,
		correctionsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveClassification records a classification duration and outcome label.
func ObserveClassification(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeCached, OutcomeModel, OutcomeFallback:
	default:
		outcome = OutcomeModel
	}
	classificationsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	classificationDurationSeconds.Observe(duration.Seconds())
}

// ObserveCorrection counts one applied human correction.
func ObserveCorrection() {
	correctionsTotal.Inc()
}
