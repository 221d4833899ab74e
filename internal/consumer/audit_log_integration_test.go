//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/statsimpact/internal/events"
)

func TestAuditLogStoresEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := auditDatabase(t, ctx)
	log := NewAuditLog(pool, nil)

	evt := events.ParticipantUpdated{
		EventID:       "evt-42",
		ParticipantID: 9,
		ChangedFields: []string{"email", "ville"},
		UpdatedBy:     "dir-1",
		OccurredAt:    time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	rec := Record{
		Topic:         "participant_events",
		Partition:     0,
		Offset:        5,
		Timestamp:     time.Now().UTC(),
		EventType:     events.ParticipantUpdatedType,
		SchemaSubject: "participant_events-value",
		SchemaID:      3,
		Payload:       payload,
		Event:         evt,
	}

	require.NoError(t, log.Handle(ctx, rec))
	rec.Offset = 6
	require.NoError(t, log.Handle(ctx, rec), "redelivery is not an error")

	var (
		count   int
		fields  []string
		offset  int64
		subject string
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) OVER (), changed_fields, record_offset, schema_subject FROM participant_event_log WHERE participant_id = $1`, 9,
	).Scan(&count, &fields, &offset, &subject))
	require.Equal(t, 1, count)
	require.Equal(t, []string{"email", "ville"}, fields)
	require.Equal(t, int64(5), offset)
	require.Equal(t, "participant_events-value", subject)
}

func auditDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("statsimpact"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	schema, err := os.ReadFile(filepath.Join(filepath.Dir(file), "../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return pool
}
