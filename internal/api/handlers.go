// Package api exposes the impact dashboard over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/statsimpact/internal/auth"
	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/filter"
	"example.com/statsimpact/internal/participant"
	"example.com/statsimpact/internal/stats"
)

// Dashboards computes the dashboard for a filter.
type Dashboards interface {
	Dashboard(ctx context.Context, claims *auth.Claims, f filter.Filter) (*stats.Dashboard, error)
	Now() time.Time
}

// ParticipantEditor applies participant edits.
type ParticipantEditor interface {
	UpdateParticipant(ctx context.Context, claims *auth.Claims, id int64, fields participant.Fields, f filter.Filter) (*participant.Result, error)
}

// Handler serves the dashboard and participant edit endpoints.
type Handler struct {
	dashboards   Dashboards
	participants ParticipantEditor
	logger       *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(dashboards Dashboards, participants ParticipantEditor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dashboards: dashboards, participants: participants, logger: logger}
}

// Router mounts every route. authenticate guards the dashboard routes only.
func (h *Handler) Router(authenticate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if authenticate != nil {
			r.Use(authenticate)
		}
		h.Register(r)
	})
	return r
}

// Register mounts the dashboard endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/stats-impact", h.dashboard)
	r.Post("/stats-impact/participants/{participantID}", h.updateParticipant)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.InfoContext(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentification requise.")
		return
	}

	f := filter.Normalize(r.URL.Query(), claims).WithYearDefault(h.dashboards.Now())

	dash, err := h.dashboards.Dashboard(r.Context(), claims, f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (h *Handler) updateParticipant(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentification requise.")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "participantID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Identifiant de participant invalide.")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Formulaire illisible.")
		return
	}

	f := filter.Normalize(r.URL.Query(), claims).WithYearDefault(h.dashboards.Now())
	fields := participant.FieldsFromForm(r.PostForm)

	result, err := h.participants.UpdateParticipant(r.Context(), claims, id, fields, f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	message := "Participant mis à jour."
	if len(result.ChangedFields) == 0 {
		message = "Aucune modification."
	}
	writeJSON(w, http.StatusOK, UpdateParticipantResponse{
		OK:            true,
		Message:       message,
		Participant:   result.Participant,
		ChangedFields: result.ChangedFields,
		StillVisible:  result.StillVisible,
	})
}

// UpdateParticipantResponse is the body returned after a participant edit.
type UpdateParticipantResponse struct {
	OK            bool               `json:"ok"`
	Message       string             `json:"message"`
	Participant   domain.Participant `json:"participant"`
	ChangedFields []string           `json:"changed_fields"`
	StillVisible  bool               `json:"still_visible"`
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var persistErr *domain.PersistenceError
	switch {
	case errors.Is(err, domain.ErrStatsForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Accès refusé.")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Vous ne pouvez pas modifier ce participant avec les filtres actuels.")
	case errors.Is(err, domain.ErrParticipantNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Participant introuvable.")
	case errors.As(err, &persistErr):
		writeError(w, http.StatusServiceUnavailable, "persistence_error", "Erreur lors de l'enregistrement, veuillez réessayer.")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "Le calcul des statistiques a expiré.")
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Erreur interne.")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]any{
		"ok":     false,
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
