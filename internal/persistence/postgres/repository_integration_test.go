//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/statsimpact/internal/domain"
)

func TestRepositoryResolvesCapacityAndSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	_, err := pool.Exec(ctx, `
        INSERT INTO ateliers (id, nom, secteur, capacite_defaut) VALUES (1, 'Aide aux devoirs', 'Jeunesse', 12);
        INSERT INTO activites (id, atelier_id, nom, secteur, date_activite, capacite, is_deleted) VALUES
            (1, 1, 'Séance 1', 'Jeunesse', '2024-03-04', NULL, FALSE),
            (2, 1, 'Séance 2', 'Jeunesse', '2024-03-11', 8, FALSE),
            (3, 1, 'Séance 3', 'Jeunesse', '2024-03-18', NULL, TRUE);`)
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	acts, err := repo.ListActivities(ctx, domain.ActivityQuery{Secteur: "Jeunesse", From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, acts, 2)

	capacity, ok := acts[0].EffectiveCapacity()
	require.True(t, ok)
	require.Equal(t, 12, capacity)
	capacity, ok = acts[1].EffectiveCapacity()
	require.True(t, ok)
	require.Equal(t, 8, capacity)

	sectors, err := repo.ListSectors(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Jeunesse"}, sectors)
}

func TestUpdateParticipantWritesOutboxEvent(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)

	_, err := pool.Exec(ctx, `INSERT INTO participants (id, nom, prenom, adresse, ville, email) VALUES (7, 'Martin', 'Léa', '1 rue Haute', 'Lyon', 'lea@example.org')`)
	require.NoError(t, err)

	current, err := repo.GetParticipant(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, current)

	updated := *current
	updated.Ville = nil
	updated.Email = nil
	require.NoError(t, repo.UpdateParticipant(ctx, updated, domain.ParticipantChange{Fields: []string{"ville", "email"}, UpdatedBy: "u-1"}))

	stored, err := repo.GetParticipant(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, stored.Ville)
	require.Nil(t, stored.Email)
	require.Equal(t, "Martin", stored.Nom)

	var eventType, topic string
	err = pool.QueryRow(ctx, `SELECT event_type, topic FROM outbox WHERE aggregate_id = '7'`).Scan(&eventType, &topic)
	require.NoError(t, err)
	require.Equal(t, "participant.updated", eventType)
	require.Equal(t, "participant_events", topic)

	missing := domain.Participant{ID: 404, Nom: "X"}
	err = repo.UpdateParticipant(ctx, missing, domain.ParticipantChange{Fields: []string{"nom"}})
	require.ErrorIs(t, err, domain.ErrParticipantNotFound)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&outboxRows))
	require.Equal(t, 1, outboxRows)

	none, err := repo.GetParticipant(ctx, 404)
	require.NoError(t, err)
	require.Nil(t, none)
}

func startDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("statsimpact"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	contents, err := os.ReadFile(resolvePath(t, "../../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)

	return pool
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
