package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQManager replays dead letters into the outbox. retry_count counts replays
// of the event, whether the requeued row failed again or the requeue itself
// failed and was rescheduled with exponential backoff. Once it reaches
// maxRetries the entry is quarantined and left for an operator.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewDLQManager falls back to 5 retries and a one minute base delay for non-positive settings.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

type dlqEntry struct {
	Envelope
	DLQID      int64
	RetryCount int
}

// RunOnce handles up to batchSize due entries and reports how many it settled.
// Entries locked by another manager are skipped.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT dlq_id FROM outbox_dlq
          WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY created_at
          LIMIT $1`, batchSize)
	if err != nil {
		return 0, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, err
	}

	var errs []error
	handled := 0
	for _, id := range ids {
		ok, err := m.replay(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("dlq entry %d: %w", id, err))
			continue
		}
		if ok {
			handled++
		}
	}
	m.refreshBacklog(ctx)
	return handled, errors.Join(errs...)
}

// Run calls RunOnce every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		handled, err := m.RunOnce(ctx, batchSize)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.logger.Error("dlq replay failed", "error", err)
		case handled > 0:
			m.logger.Info("dlq entries handled", "count", handled)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *DLQManager) replay(ctx context.Context, dlqID int64) (bool, error) {
	handled := false
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		entry, err := lockEntry(ctx, tx, dlqID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		handled = true

		if entry.RetryCount >= m.maxRetries {
			if _, err := tx.Exec(ctx,
				`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
				fmt.Sprintf("gave up after %d replays", entry.RetryCount), entry.DLQID,
			); err != nil {
				return err
			}
			recordReplay(entry.EventType, replayQuarantined)
			m.logger.Warn("dlq entry quarantined", "dlq_id", entry.DLQID, "event_type", entry.EventType, "replays", entry.RetryCount)
			return nil
		}

		if requeueErr := requeue(ctx, tx, entry); requeueErr != nil {
			return m.reschedule(ctx, tx, entry, requeueErr)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.DLQID); err != nil {
			return err
		}
		recordReplay(entry.EventType, replayRequeued)
		return nil
	})
	return handled, err
}

func lockEntry(ctx context.Context, tx pgx.Tx, dlqID int64) (dlqEntry, error) {
	var (
		entry   dlqEntry
		eventID *int64
	)
	err := tx.QueryRow(ctx,
		`SELECT dlq_id, event_id, event_type, topic, payload, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
           FROM outbox_dlq
          WHERE dlq_id = $1 AND quarantined_at IS NULL
          FOR UPDATE SKIP LOCKED`, dlqID,
	).Scan(&entry.DLQID, &eventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.AggregateType,
		&entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount)
	if eventID != nil {
		entry.EventID = *eventID
	}
	return entry, err
}

// requeue inserts entry as a fresh outbox row inside a savepoint, so a failed
// insert leaves the surrounding transaction usable.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return errors.New("dead letter has no schema_subject")
	}
	return pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx,
			`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, replays)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload, entry.RetryCount+1,
		)
		return err
	})
}

func (m *DLQManager) reschedule(ctx context.Context, tx pgx.Tx, entry dlqEntry, cause error) error {
	delay := m.backoffDelay(entry.RetryCount + 1)
	if _, err := tx.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + make_interval(secs => $1),
                reason = $2
          WHERE dlq_id = $3`,
		delay.Seconds(), cause.Error(), entry.DLQID,
	); err != nil {
		return err
	}
	recordReplay(entry.EventType, replayRescheduled)
	m.logger.Warn("dlq replay rescheduled", "dlq_id", entry.DLQID, "retry_in", delay, "error", cause)
	return nil
}

// backoffDelay doubles baseDelay per attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return time.Hour
	}
	return min(time.Duration(1<<uint(attempt-1))*m.baseDelay, time.Hour)
}
