package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// deadLetter is an envelope that could not be published, with the reason.
type deadLetter struct {
	Envelope
	Reason string
}

// writeDeadLetter stores dl in outbox_dlq, due for an immediate replay. The
// envelope's replay count carries over so repeated failures reach quarantine.
func writeDeadLetter(ctx context.Context, db execer, dl deadLetter) error {
	_, err := db.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
		dl.EventID, dl.EventType, dl.Topic, dl.Payload, dl.Reason, dl.AggregateType, dl.AggregateID, dl.SchemaSubject, dl.PartitionKey, dl.Replays,
	)
	return err
}
