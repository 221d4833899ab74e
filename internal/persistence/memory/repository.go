// Package memory provides an in-memory domain.Repository for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/statsimpact/internal/domain"
)

// Change is an edit recorded by UpdateParticipant, the in-memory counterpart of the outbox.
type Change struct {
	ParticipantID int64
	Fields        []string
	UpdatedBy     string
	At            time.Time
}

// Repository stores dashboard records in memory.
type Repository struct {
	mu             sync.RWMutex
	workshops      map[int64]domain.Workshop
	activities     map[int64]domain.Activity
	participations []domain.Participation
	participants   map[int64]domain.Participant
	quartiers      map[int64]domain.Quartier
	changes        []Change
	updateErr      error
	now            func() time.Time
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		workshops:    make(map[int64]domain.Workshop),
		activities:   make(map[int64]domain.Activity),
		participants: make(map[int64]domain.Participant),
		quartiers:    make(map[int64]domain.Quartier),
		now:          time.Now,
	}
}

// AddWorkshop stores or replaces a workshop.
func (r *Repository) AddWorkshop(w domain.Workshop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workshops[w.ID] = w
}

// AddActivity stores or replaces an activity.
func (r *Repository) AddActivity(a domain.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities[a.ID] = a
}

// DeleteActivity soft-deletes an activity.
func (r *Repository) DeleteActivity(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.activities[id]; ok {
		a.Deleted = true
		r.activities[id] = a
	}
}

// AddParticipation records a participation.
func (r *Repository) AddParticipation(p domain.Participation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = int64(len(r.participations) + 1)
	}
	r.participations = append(r.participations, p)
}

// AddParticipant stores or replaces a participant.
func (r *Repository) AddParticipant(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

// AddQuartier stores or replaces a neighbourhood.
func (r *Repository) AddQuartier(q domain.Quartier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quartiers[q.ID] = q
}

// FailUpdates makes every following UpdateParticipant fail with err, leaving
// stored rows untouched. A nil err restores normal behaviour.
func (r *Repository) FailUpdates(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateErr = err
}

// Changes returns the edits recorded so far.
func (r *Repository) Changes() []Change {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Change(nil), r.changes...)
}

// ListActivities implements domain.Repository.
func (r *Repository) ListActivities(_ context.Context, q domain.ActivityQuery) ([]domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Activity, 0)
	for _, a := range r.activities {
		if a.Deleted {
			continue
		}
		if q.Secteur != "" && a.Secteur != q.Secteur {
			continue
		}
		if q.WorkshopID != nil && a.WorkshopID != *q.WorkshopID {
			continue
		}
		if q.From != nil && a.Date.Before(*q.From) {
			continue
		}
		if q.To != nil && dayOf(a.Date).After(*q.To) {
			continue
		}
		if a.Capacity == nil {
			if w, ok := r.workshops[a.WorkshopID]; ok && w.DefaultCapacity != nil {
				capacity := *w.DefaultCapacity
				a.Capacity = &capacity
			}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListParticipations implements domain.Repository.
func (r *Repository) ListParticipations(_ context.Context, activityIDs []int64) ([]domain.Participation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[int64]struct{}, len(activityIDs))
	for _, id := range activityIDs {
		wanted[id] = struct{}{}
	}
	out := make([]domain.Participation, 0)
	for _, p := range r.participations {
		if _, ok := wanted[p.ActivityID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// ParticipantsByIDs implements domain.Repository. Unknown IDs are skipped.
func (r *Repository) ParticipantsByIDs(_ context.Context, ids []int64) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.participants[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetParticipant implements domain.Repository.
func (r *Repository) GetParticipant(_ context.Context, id int64) (*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// UpdateParticipant replaces the participant row and records the change in one step.
func (r *Repository) UpdateParticipant(_ context.Context, p domain.Participant, change domain.ParticipantChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.participants[p.ID]; !ok {
		return domain.ErrParticipantNotFound
	}
	now := r.now().UTC()
	p.UpdatedAt = now
	r.participants[p.ID] = p
	r.changes = append(r.changes, Change{ParticipantID: p.ID, Fields: change.Fields, UpdatedBy: change.UpdatedBy, At: now})
	return nil
}

// ListSectors implements domain.Repository.
func (r *Repository) ListSectors(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, a := range r.activities {
		if a.Deleted || a.Secteur == "" {
			continue
		}
		if _, ok := seen[a.Secteur]; ok {
			continue
		}
		seen[a.Secteur] = struct{}{}
		out = append(out, a.Secteur)
	}
	sort.Strings(out)
	return out, nil
}

// ListWorkshops implements domain.Repository.
func (r *Repository) ListWorkshops(_ context.Context, secteur string) ([]domain.Workshop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Workshop, 0)
	for _, w := range r.workshops {
		if w.Deleted {
			continue
		}
		if secteur != "" && w.Secteur != secteur {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Secteur != out[j].Secteur {
			return out[i].Secteur < out[j].Secteur
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ListQuartiers implements domain.Repository.
func (r *Repository) ListQuartiers(_ context.Context) ([]domain.Quartier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Quartier, 0, len(r.quartiers))
	for _, q := range r.quartiers {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
