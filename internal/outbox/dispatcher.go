// Package outbox delivers committed participant events from the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(ctx context.Context, subject, schema string) (int, error)
}

// Envelope is an outbox row claimed for delivery.
type Envelope struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
	// Replays counts how many times the DLQ manager has requeued this event.
	Replays int
}

// Dispatcher drains the outbox table into Kafka. Rows are claimed for
// claimTTL; a claim older than that is considered abandoned and taken again.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	claimTTL     time.Duration
	schemaIDs    sync.Map // subject -> schema id
	done         chan struct{}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithClaimTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.claimTTL = ttl
		}
	}
}

func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		logger:       slog.Default(),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		claimTTL:     5 * time.Minute,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. Call it in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	envelopes, err := d.claim(ctx)
	if err != nil || len(envelopes) == 0 {
		return err
	}
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	delivered, dead := d.deliver(ctx, envelopes)
	if err := ctx.Err(); err != nil {
		// claims expire, the batch is picked up again
		return err
	}
	if err := d.settle(ctx, envelopes, dead); err != nil {
		return fmt.Errorf("settle outbox batch: %w", err)
	}

	for _, env := range delivered {
		recordEvent(env.EventType, outcomeDelivered)
	}
	for _, dl := range dead {
		recordEvent(dl.EventType, outcomeDeadLettered)
		d.logger.Warn("outbox event dead-lettered", "event_id", dl.EventID, "event_type", dl.EventType, "topic", dl.Topic, "reason", dl.Reason)
	}
	return nil
}

func (d *Dispatcher) claim(ctx context.Context) (envelopes []Envelope, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, replays
           FROM outbox
          WHERE published_at IS NULL
            AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
          ORDER BY event_id
          LIMIT $1
          FOR UPDATE SKIP LOCKED`,
		d.batchSize, d.claimTTL.Seconds(),
	)
	if err != nil {
		return nil, err
	}
	envelopes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Envelope, error) {
		var env Envelope
		err := row.Scan(&env.EventID, &env.AggregateType, &env.AggregateID, &env.EventType, &env.Topic, &env.SchemaSubject, &env.PartitionKey, &env.Payload, &env.Replays)
		return env, err
	})
	if err != nil {
		return nil, err
	}
	if len(envelopes) == 0 {
		return nil, tx.Rollback(ctx)
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(envelopes)); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return envelopes, nil
}

// deliver publishes envelopes grouped by topic, preserving claim order within
// a topic. A failure only dead-letters the envelopes it concerns.
func (d *Dispatcher) deliver(ctx context.Context, envelopes []Envelope) ([]Envelope, []deadLetter) {
	var (
		delivered []Envelope
		dead      []deadLetter
		topics    []string
	)
	byTopic := make(map[string][]Envelope)
	records := make(map[string][]kafka.Message)

	for _, env := range envelopes {
		schemaID, err := d.schemaID(ctx, env)
		if err != nil {
			dead = append(dead, deadLetter{Envelope: env, Reason: err.Error()})
			continue
		}
		if _, seen := byTopic[env.Topic]; !seen {
			topics = append(topics, env.Topic)
		}
		byTopic[env.Topic] = append(byTopic[env.Topic], env)
		records[env.Topic] = append(records[env.Topic], kafka.Message{
			Key:   []byte(env.PartitionKey),
			Value: encodeWireFormat(schemaID, env.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(env.EventType)},
				{Key: "schema_subject", Value: []byte(env.SchemaSubject)},
			},
		})
	}

	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, records[topic]...); err != nil {
			for _, env := range byTopic[topic] {
				dead = append(dead, deadLetter{Envelope: env, Reason: fmt.Sprintf("publish to %s: %v", topic, err)})
			}
			continue
		}
		delivered = append(delivered, byTopic[topic]...)
	}
	return delivered, dead
}

func (d *Dispatcher) schemaID(ctx context.Context, env Envelope) (int, error) {
	schema, ok := eventSchemas[env.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema for event_type %q", env.EventType)
	}
	if id, ok := d.schemaIDs.Load(env.SchemaSubject); ok {
		return id.(int), nil
	}

	id, err := d.registry.EnsureSchema(ctx, env.SchemaSubject, schema)
	if err != nil {
		return 0, fmt.Errorf("schema for %s: %w", env.SchemaSubject, err)
	}
	d.schemaIDs.Store(env.SchemaSubject, id)
	return id, nil
}

// settle marks the whole batch published and stores the dead letters in the
// same transaction, so a crash cannot leave a row both pending and dead-lettered.
func (d *Dispatcher) settle(ctx context.Context, envelopes []Envelope, dead []deadLetter) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		for _, dl := range dead {
			if err := writeDeadLetter(ctx, tx, dl); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(envelopes))
		return err
	})
}

func eventIDs(envelopes []Envelope) []int64 {
	ids := make([]int64, len(envelopes))
	for i, env := range envelopes {
		ids[i] = env.EventID
	}
	return ids
}
