// Package consumer reads committed participant edits back from Kafka and
// records them in the audit log.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/statsimpact/internal/events"
	"example.com/statsimpact/internal/outbox"
)

// Reader is the subset of kafka.Reader the processor needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler stores a decoded participant event.
type Handler interface {
	Handle(context.Context, Record) error
}

// Record is a participant event together with its Kafka coordinates.
type Record struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
	Event         events.ParticipantUpdated
}

// Option configures a Processor.
type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetry sets how many times a failing handler is called for one record
// and the pause between calls, which grows linearly with the attempt number.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if delay >= 0 {
			p.retryDelay = delay
		}
	}
}

// Processor fetches, decodes, handles and commits records one at a time.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     *slog.Logger
	attempts   int
	retryDelay time.Duration
}

func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     slog.Default().With("component", "consumer"),
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes records until ctx is cancelled. Records that cannot be decoded,
// and records whose handler keeps failing, are logged and committed so one bad
// event cannot stall the partition.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Error("fetch failed", "error", err)
			continue
		}

		rec, err := decodeRecord(msg)
		if err != nil {
			p.logger.Warn("skipping undecodable record", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			recordSkipped(msg.Topic, "decode")
			p.commit(ctx, msg)
			continue
		}

		start := time.Now()
		if err := p.handle(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("giving up on participant event",
				"event_id", rec.Event.EventID, "participant_id", rec.Event.ParticipantID, "offset", rec.Offset, "error", err)
			recordSkipped(rec.Topic, "handler")
			p.commit(ctx, msg)
			continue
		}
		observeHandled(rec, time.Since(start))
		p.commit(ctx, msg)
	}
}

func (p *Processor) handle(ctx context.Context, rec Record) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, rec); err == nil {
			return nil
		}
		recordHandlerError(rec)
		if attempt == p.attempts {
			break
		}
		p.logger.Warn("participant event handler failed, retrying", "event_id", rec.Event.EventID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.retryDelay):
		}
	}
	return err
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
}

func decodeRecord(msg kafka.Message) (Record, error) {
	schemaID, payload, err := outbox.DecodeWireFormat(msg.Value)
	if err != nil {
		return Record{}, fmt.Errorf("payload of %d bytes: %w", len(msg.Value), err)
	}

	eventType, ok := header(msg, "event_type")
	if !ok {
		return Record{}, errors.New("missing event_type header")
	}
	if eventType != events.ParticipantUpdatedType {
		return Record{}, fmt.Errorf("unsupported event_type %q", eventType)
	}

	var evt events.ParticipantUpdated
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", eventType, err)
	}
	if evt.EventID == "" || evt.ParticipantID <= 0 {
		return Record{}, fmt.Errorf("%s without event_id or participant_id", eventType)
	}

	subject, _ := header(msg, "schema_subject")
	return Record{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     eventType,
		SchemaSubject: subject,
		SchemaID:      schemaID,
		Payload:       json.RawMessage(append([]byte(nil), payload...)),
		Event:         evt,
	}, nil
}

func header(msg kafka.Message, key string) (string, bool) {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
