package consumer

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog appends participant events to participant_event_log. Redelivered
// events are ignored by event_id.
type AuditLog struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAuditLog(pool *pgxpool.Pool, logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{pool: pool, logger: logger}
}

func (a *AuditLog) Handle(ctx context.Context, rec Record) error {
	tag, err := a.pool.Exec(ctx,
		`INSERT INTO participant_event_log
            (event_id, participant_id, changed_fields, updated_by, occurred_at,
             event_type, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
         ON CONFLICT (event_id) DO NOTHING`,
		rec.Event.EventID,
		rec.Event.ParticipantID,
		nonNil(rec.Event.ChangedFields),
		rec.Event.UpdatedBy,
		rec.Event.OccurredAt,
		rec.EventType,
		rec.SchemaID,
		rec.SchemaSubject,
		rec.Topic,
		rec.Partition,
		rec.Offset,
		rec.Payload,
		rec.Timestamp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		a.logger.DebugContext(ctx, "participant event already recorded", "event_id", rec.Event.EventID)
	}
	return nil
}

func nonNil(fields []string) []string {
	if fields == nil {
		return []string{}
	}
	return fields
}
