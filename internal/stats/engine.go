// Package stats computes the impact dashboard aggregates. Every computation
// re-reads the repository for the filter it is given; nothing is cached.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/filter"
	"example.com/statsimpact/internal/observability"
)

// UnknownLabel is the bucket used for missing categorical values.
const UnknownLabel = "unknown"

const (
	defaultUnderThreshold = 0.5
	defaultTimeout        = 10 * time.Second
)

// Engine evaluates the dashboard aggregates against a repository.
type Engine struct {
	repo           domain.Repository
	now            func() time.Time
	logger         *slog.Logger
	underThreshold float64
	timeout        time.Duration
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithClock overrides the clock used for age computation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithUnderCapacityThreshold sets the fill ratio below which an activity is
// reported as under capacity.
func WithUnderCapacityThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.underThreshold = threshold
		}
	}
}

// WithTimeout bounds Dashboard evaluation.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(repo domain.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:           repo,
		now:            time.Now,
		logger:         slog.Default(),
		underThreshold: defaultUnderThreshold,
		timeout:        defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time {
	return e.now()
}

// scope holds the records a computation aggregates over.
type scope struct {
	activities   []domain.Activity
	byID         map[int64]domain.Activity
	events       []domain.Participation
	participants map[int64]domain.Participant
}

func (e *Engine) loadActivities(ctx context.Context, f filter.Filter) ([]domain.Activity, map[int64]domain.Activity, error) {
	acts, err := e.repo.ListActivities(ctx, f.ActivityQuery())
	if err != nil {
		return nil, nil, fmt.Errorf("list activities: %w", err)
	}
	kept := make([]domain.Activity, 0, len(acts))
	byID := make(map[int64]domain.Activity, len(acts))
	for _, act := range acts {
		if act.Deleted {
			continue
		}
		kept = append(kept, act)
		byID[act.ID] = act
	}
	return kept, byID, nil
}

// presentEvents returns the participation events tied to the given activities,
// keeping one event per (activity, participant).
func (e *Engine) presentEvents(ctx context.Context, byID map[int64]domain.Activity) ([]domain.Participation, error) {
	if len(byID) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	parts, err := e.repo.ListParticipations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}

	type key struct{ activity, participant int64 }
	seen := make(map[key]struct{}, len(parts))
	events := make([]domain.Participation, 0, len(parts))
	for _, p := range parts {
		if !p.Present {
			continue
		}
		if _, ok := byID[p.ActivityID]; !ok {
			continue
		}
		k := key{p.ActivityID, p.ParticipantID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		events = append(events, p)
	}
	return events, nil
}

// loadScope resolves activities, events and the participant population for f.
// Events whose participant is missing or fails the demographic filter are dropped.
func (e *Engine) loadScope(ctx context.Context, f filter.Filter) (scope, error) {
	acts, byID, err := e.loadActivities(ctx, f)
	if err != nil {
		return scope{}, err
	}
	s := scope{activities: acts, byID: byID, participants: map[int64]domain.Participant{}}

	events, err := e.presentEvents(ctx, byID)
	if err != nil {
		return scope{}, err
	}
	if len(events) == 0 {
		return s, nil
	}

	idSet := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, ev := range events {
		if _, ok := idSet[ev.ParticipantID]; ok {
			continue
		}
		idSet[ev.ParticipantID] = struct{}{}
		ids = append(ids, ev.ParticipantID)
	}
	people, err := e.repo.ParticipantsByIDs(ctx, ids)
	if err != nil {
		return scope{}, fmt.Errorf("participants by ids: %w", err)
	}

	today := e.now()
	for _, p := range people {
		if matchesDemographics(p, f, today) {
			s.participants[p.ID] = p
		}
	}
	s.events = make([]domain.Participation, 0, len(events))
	for _, ev := range events {
		if _, ok := s.participants[ev.ParticipantID]; ok {
			s.events = append(s.events, ev)
		}
	}
	return s, nil
}

func matchesDemographics(p domain.Participant, f filter.Filter, today time.Time) bool {
	if f.Gender != nil {
		if p.Gender == nil || *p.Gender != *f.Gender {
			return false
		}
	}
	if f.AgeMin == nil && f.AgeMax == nil {
		return true
	}
	if p.BirthDate == nil {
		return false
	}
	age := AgeAt(*p.BirthDate, today)
	if f.AgeMin != nil && age < *f.AgeMin {
		return false
	}
	if f.AgeMax != nil && age > *f.AgeMax {
		return false
	}
	return true
}

// AgeAt returns the age in whole years on the given day.
func AgeAt(birth, day time.Time) int {
	age := day.Year() - birth.Year()
	if day.Month() < birth.Month() || (day.Month() == birth.Month() && day.Day() < birth.Day()) {
		age--
	}
	return age
}

func observe(name string, start time.Time) {
	observability.ObserveComputation(name, time.Since(start))
}

func sectorLabel(secteur string) string {
	if secteur == "" {
		return UnknownLabel
	}
	return secteur
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
