package outbox

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeDelivered    = "delivered"
	outcomeDeadLettered = "dead_lettered"

	replayRequeued    = "requeued"
	replayRescheduled = "rescheduled"
	replayQuarantined = "quarantined"
)

var (
	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsimpact",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events settled by the dispatcher, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "statsimpact",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent delivering and settling one claimed batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	replayCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsimpact",
		Subsystem: "dlq",
		Name:      "replays_total",
		Help:      "Dead letters handled by the DLQ manager, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	backlogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "statsimpact",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Dead letters currently stored, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(eventsCounter, batchDuration, replayCounter, backlogGauge)
}

func recordEvent(eventType, outcome string) {
	eventsCounter.WithLabelValues(eventType, outcome).Inc()
}

func recordReplay(eventType, outcome string) {
	replayCounter.WithLabelValues(eventType, outcome).Inc()
}

func (m *DLQManager) refreshBacklog(ctx context.Context) {
	var pending, quarantined int
	err := m.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL), COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL) FROM outbox_dlq`,
	).Scan(&pending, &quarantined)
	if err != nil {
		m.logger.Debug("dlq backlog query failed", "error", err)
		return
	}
	backlogGauge.WithLabelValues("pending").Set(float64(pending))
	backlogGauge.WithLabelValues("quarantined").Set(float64(quarantined))
}
