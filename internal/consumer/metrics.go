package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	handledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsimpact",
		Subsystem: "participant_events",
		Name:      "handled_total",
		Help:      "Participant events stored in the audit log.",
	}, []string{"topic"})

	handlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsimpact",
		Subsystem: "participant_events",
		Name:      "handler_errors_total",
		Help:      "Failed handler calls, retries included.",
	}, []string{"topic"})

	skippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsimpact",
		Subsystem: "participant_events",
		Name:      "skipped_total",
		Help:      "Records committed without being stored, by reason.",
	}, []string{"topic", "reason"})

	handleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "statsimpact",
		Subsystem: "participant_events",
		Name:      "handle_duration_seconds",
		Help:      "Time spent storing one participant event, retries included.",
		Buckets:   prometheus.DefBuckets,
	})

	// edit-to-audit delay, measured from the event's occurred_at
	auditLag = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "statsimpact",
		Subsystem: "participant_events",
		Name:      "audit_lag_seconds",
		Help:      "Delay between the last stored edit and its arrival in the audit log.",
	})
)

func init() {
	prometheus.MustRegister(handledCounter, handlerErrors, skippedCounter, handleDuration, auditLag)
}

func observeHandled(rec Record, took time.Duration) {
	handledCounter.WithLabelValues(rec.Topic).Inc()
	handleDuration.Observe(took.Seconds())
	if !rec.Event.OccurredAt.IsZero() {
		auditLag.Set(time.Since(rec.Event.OccurredAt).Seconds())
	}
}

func recordHandlerError(rec Record) {
	handlerErrors.WithLabelValues(rec.Topic).Inc()
}

func recordSkipped(topic, reason string) {
	skippedCounter.WithLabelValues(topic, reason).Inc()
}
