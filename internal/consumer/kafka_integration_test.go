//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/statsimpact/internal/events"
	"example.com/statsimpact/internal/outbox"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []Record
}

func (h *recordingHandler) Handle(_ context.Context, rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, rec)
	return nil
}

func (h *recordingHandler) records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), h.seen...)
}

func TestKafkaRoundTripDecodesFramedEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		testcontainers.WithEnv(map[string]string{"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	const topic = "participant_events"
	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	conn.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "statsimpact-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	handler := &recordingHandler{}
	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = NewProcessor(reader, handler).Run(consumerCtx) }()

	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()

	evt := events.ParticipantUpdated{
		EventID:       "evt-1",
		ParticipantID: 7,
		ChangedFields: []string{"ville"},
		UpdatedBy:     "u-1",
		OccurredAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	value := append([]byte{0, 0, 0, 0, 12}, payload...)
	require.NoError(t, producer.WriteMessages(ctx, topic, kafka.Message{
		Key:   []byte("7"),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.ParticipantUpdatedType)},
			{Key: "schema_subject", Value: []byte("participant_events-value")},
		},
	}))

	require.Eventually(t, func() bool { return len(handler.records()) == 1 }, 60*time.Second, 500*time.Millisecond)

	got := handler.records()[0]
	require.Equal(t, 12, got.SchemaID)
	require.Equal(t, events.ParticipantUpdatedType, got.EventType)
	require.Equal(t, evt.EventID, got.Event.EventID)
	require.Equal(t, evt.ParticipantID, got.Event.ParticipantID)
	require.JSONEq(t, string(payload), string(got.Payload))
}
