// Package participant implements the participant edit workflow of the impact
// dashboard. An edit is only allowed on participants the caller can currently
// see under the active filter.
package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"example.com/statsimpact/internal/auth"
	"example.com/statsimpact/internal/cache"
	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/filter"
	"example.com/statsimpact/internal/observability"
)

// Visibility resolves the participants visible under a filter.
type Visibility interface {
	VisibleParticipants(ctx context.Context, f filter.Filter) (map[int64]struct{}, error)
}

// Result describes a committed edit.
type Result struct {
	Participant   domain.Participant
	ChangedFields []string
	// StillVisible reports whether the participant remains in the filter scope
	// once the edit is applied.
	StillVisible bool
}

// Service gates participant edits behind dashboard visibility.
type Service struct {
	repo       domain.Repository
	visibility Visibility
	cache      cache.Invalidator
	logger     *slog.Logger
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a Service.
func NewService(repo domain.Repository, visibility Visibility, invalidator cache.Invalidator, opts ...Option) *Service {
	if invalidator == nil {
		invalidator = cache.NoopInvalidator{}
	}
	s := &Service{repo: repo, visibility: visibility, cache: invalidator, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateParticipant applies fields to participant id after checking that the
// participant is visible to claims under f.
func (s *Service) UpdateParticipant(ctx context.Context, claims *auth.Claims, id int64, fields Fields, f filter.Filter) (*Result, error) {
	if !claims.CanViewStats() {
		observability.RecordParticipantUpdate("forbidden")
		return nil, domain.ErrStatsForbidden
	}
	if claims.IsSectorRestricted() {
		f.Secteur = claims.Secteur
	}

	visible, err := s.visibility.VisibleParticipants(ctx, f)
	if err != nil {
		observability.RecordParticipantUpdate("error")
		return nil, fmt.Errorf("resolve visible participants: %w", err)
	}
	if _, ok := visible[id]; !ok {
		observability.RecordParticipantUpdate("forbidden")
		s.logger.WarnContext(ctx, "participant edit outside scope", "participant_id", id, "subject", claims.Subject, "secteur", f.Secteur)
		return nil, domain.ErrForbidden
	}

	current, err := s.repo.GetParticipant(ctx, id)
	if err != nil {
		observability.RecordParticipantUpdate("error")
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if current == nil {
		observability.RecordParticipantUpdate("not_found")
		return nil, domain.ErrParticipantNotFound
	}

	next, changed := Apply(*current, fields)
	if len(changed) == 0 {
		observability.RecordParticipantUpdate("unchanged")
	} else {
		change := domain.ParticipantChange{Fields: changed, UpdatedBy: claims.Subject}
		if err := s.repo.UpdateParticipant(ctx, next, change); err != nil {
			if errors.Is(err, domain.ErrParticipantNotFound) {
				observability.RecordParticipantUpdate("not_found")
				return nil, err
			}
			observability.RecordParticipantUpdate("persistence_error")
			s.logger.ErrorContext(ctx, "participant update failed", "participant_id", id, "error", err)
			return nil, &domain.PersistenceError{Op: "update participant", Err: err}
		}
		if stored, err := s.repo.GetParticipant(ctx, id); err == nil && stored != nil {
			next = *stored
		}
		observability.RecordParticipantPersisted(next.UpdatedAt)

		if err := s.cache.Invalidate(ctx, cache.Scope{Query: url.Values(f.Values()).Encode(), Secteur: f.Secteur, ParticipantID: id}); err != nil {
			s.logger.WarnContext(ctx, "dashboard cache invalidation failed", "participant_id", id, "error", err)
		}
		observability.RecordParticipantUpdate("updated")
	}

	result := &Result{Participant: next, ChangedFields: changed}
	after, err := s.visibility.VisibleParticipants(ctx, f)
	if err != nil {
		s.logger.WarnContext(ctx, "post-edit visibility check failed", "participant_id", id, "error", err)
		return result, nil
	}
	_, result.StillVisible = after[id]
	return result, nil
}
