package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	computationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "statsimpact",
		Subsystem: "engine",
		Name:      "computation_duration_seconds",
		Help:      "Time spent evaluating one dashboard aggregate.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"computation"})

	participantUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsimpact",
		Subsystem: "participants",
		Name:      "updates_total",
		Help:      "Participant edit attempts grouped by outcome.",
	}, []string{"outcome"})

	participantUpdatedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "statsimpact",
		Subsystem: "participants",
		Name:      "last_participant_updated_timestamp_seconds",
		Help:      "Unix timestamp of the most recent participant edit committed to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(computationDuration, participantUpdates, participantUpdatedGauge)
}

// ObserveComputation records the duration of one aggregate evaluation.
func ObserveComputation(name string, d time.Duration) {
	computationDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RecordParticipantUpdate counts an edit attempt outcome: updated, unchanged,
// forbidden, not_found, persistence_error or error.
func RecordParticipantUpdate(outcome string) {
	participantUpdates.WithLabelValues(outcome).Inc()
}

// RecordParticipantPersisted updates the edit watermark gauge.
func RecordParticipantPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	participantUpdatedGauge.Set(float64(ts.Unix()))
}
