// Package postgres implements domain.Repository on PostgreSQL with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/events"
)

// Repository provides Postgres-backed persistence for dashboard records and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const participantColumns = `id, nom, prenom, date_naissance, genre, adresse, ville, quartier_id, email, telephone, type_public, updated_at`

// ListActivities returns non-deleted activities matching the query. The
// workshop default capacity fills in when the activity declares none.
func (r *Repository) ListActivities(ctx context.Context, q domain.ActivityQuery) ([]domain.Activity, error) {
	query, args := activitiesQuery(q)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		var act domain.Activity
		if err := rows.Scan(&act.ID, &act.WorkshopID, &act.Name, &act.Secteur, &act.Date, &act.Capacity, &act.Deleted); err != nil {
			return nil, err
		}
		results = append(results, act)
	}
	return results, rows.Err()
}

func activitiesQuery(q domain.ActivityQuery) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`SELECT a.id, a.atelier_id, a.nom, a.secteur, a.date_activite, COALESCE(a.capacite, w.capacite_defaut), a.is_deleted
        FROM activites a JOIN ateliers w ON w.id = a.atelier_id
        WHERE a.is_deleted = FALSE`)

	args := make([]interface{}, 0, 4)
	next := func(value interface{}) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}
	if q.Secteur != "" {
		b.WriteString(" AND a.secteur = " + next(q.Secteur))
	}
	if q.From != nil {
		b.WriteString(" AND a.date_activite >= " + next(*q.From))
	}
	if q.To != nil {
		b.WriteString(" AND a.date_activite <= " + next(*q.To))
	}
	if q.WorkshopID != nil {
		b.WriteString(" AND a.atelier_id = " + next(*q.WorkshopID))
	}
	b.WriteString(" ORDER BY a.date_activite, a.id")
	return b.String(), args
}

// ListParticipations returns participation rows for the given activities.
func (r *Repository) ListParticipations(ctx context.Context, activityIDs []int64) ([]domain.Participation, error) {
	if len(activityIDs) == 0 {
		return []domain.Participation{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, activite_id, participant_id, present FROM presences WHERE activite_id = ANY($1) ORDER BY id`,
		activityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Participation, 0)
	for rows.Next() {
		var p domain.Participation
		if err := rows.Scan(&p.ID, &p.ActivityID, &p.ParticipantID, &p.Present); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ParticipantsByIDs returns the participants with the given IDs. Unknown IDs are skipped.
func (r *Repository) ParticipantsByIDs(ctx context.Context, ids []int64) ([]domain.Participant, error) {
	if len(ids) == 0 {
		return []domain.Participant{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Participant, 0, len(ids))
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// GetParticipant retrieves a participant by ID; (nil, nil) when missing.
func (r *Repository) GetParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpdateParticipant writes every attribute of the participant and records a
// participant.updated outbox event inside a single transaction.
func (r *Repository) UpdateParticipant(ctx context.Context, p domain.Participant, change domain.ParticipantChange) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var gender *string
	if p.Gender != nil {
		g := string(*p.Gender)
		gender = &g
	}

	var updatedAt time.Time
	err = tx.QueryRow(ctx,
		`UPDATE participants
            SET nom = $2, prenom = $3, date_naissance = $4, genre = $5, adresse = $6, ville = $7,
                quartier_id = $8, email = $9, telephone = $10, type_public = $11, updated_at = NOW()
          WHERE id = $1
      RETURNING updated_at`,
		p.ID, p.Nom, p.Prenom, p.BirthDate, gender, p.Adresse, p.Ville,
		p.QuartierID, p.Email, p.Telephone, p.TypePublic,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrParticipantNotFound
		}
		return err
	}

	evt := events.ParticipantUpdated{
		EventID:       uuid.NewString(),
		ParticipantID: p.ID,
		ChangedFields: change.Fields,
		UpdatedBy:     change.UpdatedBy,
		OccurredAt:    updatedAt.UTC(),
	}
	if err = r.insertOutbox(ctx, tx, evt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, evt events.ParticipantUpdated) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	meta := eventCatalog[events.ParticipantUpdatedType]
	aggregateID := strconv.FormatInt(evt.ParticipantID, 10)
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, evt.EventID)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"participant",
		aggregateID,
		events.ParticipantUpdatedType,
		meta.Topic,
		meta.SchemaSubject,
		aggregateID,
		body,
		dedupeKey,
	)
	return err
}

// ListSectors returns the distinct sectors of non-deleted activities.
func (r *Repository) ListSectors(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT secteur FROM activites WHERE is_deleted = FALSE AND secteur <> '' ORDER BY secteur`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// ListWorkshops returns non-deleted workshops ordered by sector then name.
func (r *Repository) ListWorkshops(ctx context.Context, secteur string) ([]domain.Workshop, error) {
	query := `SELECT id, nom, secteur, capacite_defaut, is_deleted FROM ateliers WHERE is_deleted = FALSE`
	args := []interface{}{}
	if secteur != "" {
		query += ` AND secteur = $1`
		args = append(args, secteur)
	}
	query += ` ORDER BY secteur, nom`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Workshop, 0)
	for rows.Next() {
		var w domain.Workshop
		if err := rows.Scan(&w.ID, &w.Name, &w.Secteur, &w.DefaultCapacity, &w.Deleted); err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// ListQuartiers returns neighbourhoods ordered by name.
func (r *Repository) ListQuartiers(ctx context.Context) ([]domain.Quartier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, nom FROM quartiers ORDER BY nom`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Quartier, 0)
	for rows.Next() {
		var q domain.Quartier
		if err := rows.Scan(&q.ID, &q.Name); err != nil {
			return nil, err
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var (
		p      domain.Participant
		gender *string
	)
	if err := row.Scan(&p.ID, &p.Nom, &p.Prenom, &p.BirthDate, &gender, &p.Adresse, &p.Ville, &p.QuartierID, &p.Email, &p.Telephone, &p.TypePublic, &p.UpdatedAt); err != nil {
		return domain.Participant{}, err
	}
	if gender != nil && *gender != "" {
		g := domain.Gender(*gender)
		p.Gender = &g
	}
	return p, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.ParticipantUpdatedType: {
		Topic:         "participant_events",
		SchemaSubject: "participant_events-value",
	},
}
