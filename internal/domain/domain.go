// Package domain defines the records the impact dashboard aggregates over and
// the data-access contract the aggregation engine and the participant gate call into.
package domain

import (
	"context"
	"time"
)

// Workshop is a recurring activity offered by a sector (an "atelier").
type Workshop struct {
	ID              int64  `json:"id"`
	Name            string `json:"nom"`
	Secteur         string `json:"secteur"`
	DefaultCapacity *int   `json:"capacite_defaut,omitempty"`
	Deleted         bool   `json:"-"`
}

// Activity is a dated occurrence of a workshop.
type Activity struct {
	ID         int64     `json:"id"`
	WorkshopID int64     `json:"atelier_id"`
	Name       string    `json:"nom"`
	Secteur    string    `json:"secteur"`
	Date       time.Time `json:"date"`
	Capacity   *int      `json:"capacite,omitempty"`
	Deleted    bool      `json:"-"`
}

// Participation links a participant to an activity. Only Present records count
// as participation events.
type Participation struct {
	ID            int64 `json:"id"`
	ActivityID    int64 `json:"activite_id"`
	ParticipantID int64 `json:"participant_id"`
	Present       bool  `json:"present"`
}

// Participant carries identity and demographic attributes. Pointer fields are
// nullable in storage.
type Participant struct {
	ID         int64      `json:"id"`
	Nom        string     `json:"nom"`
	Prenom     string     `json:"prenom"`
	BirthDate  *time.Time `json:"date_naissance,omitempty"`
	Gender     *Gender    `json:"genre,omitempty"`
	Adresse    string     `json:"adresse"`
	Ville      *string    `json:"ville,omitempty"`
	QuartierID *int64     `json:"quartier_id,omitempty"`
	Email      *string    `json:"email,omitempty"`
	Telephone  *string    `json:"telephone,omitempty"`
	TypePublic string     `json:"type_public"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Quartier is a neighbourhood a participant may live in.
type Quartier struct {
	ID   int64  `json:"id"`
	Name string `json:"nom"`
}

// ActivityQuery selects non-deleted activities. Zero values mean "no constraint".
type ActivityQuery struct {
	Secteur    string
	From       *time.Time
	To         *time.Time
	WorkshopID *int64
}

// ParticipantChange describes a committed participant edit for the audit trail.
type ParticipantChange struct {
	Fields    []string
	UpdatedBy string
}

// Repository captures the data-access operations the dashboard needs.
// GetParticipant returns (nil, nil) when the row does not exist.
type Repository interface {
	ListActivities(ctx context.Context, query ActivityQuery) ([]Activity, error)
	ListParticipations(ctx context.Context, activityIDs []int64) ([]Participation, error)
	ParticipantsByIDs(ctx context.Context, ids []int64) ([]Participant, error)
	GetParticipant(ctx context.Context, id int64) (*Participant, error)
	UpdateParticipant(ctx context.Context, participant Participant, change ParticipantChange) error
	ListSectors(ctx context.Context) ([]string, error)
	ListWorkshops(ctx context.Context, secteur string) ([]Workshop, error)
	ListQuartiers(ctx context.Context) ([]Quartier, error)
}

// EffectiveCapacity returns the declared capacity of the activity. Repositories
// resolve the workshop default into Capacity; non-positive values count as undefined.
func (a Activity) EffectiveCapacity() (int, bool) {
	if a.Capacity != nil && *a.Capacity > 0 {
		return *a.Capacity, true
	}
	return 0, false
}
