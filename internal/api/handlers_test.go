package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/statsimpact/internal/auth"
	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/filter"
	"example.com/statsimpact/internal/participant"
	"example.com/statsimpact/internal/persistence/memory"
	"example.com/statsimpact/internal/stats"
)

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *memory.Repository
	router http.Handler
}

func newFixture(t *testing.T, claims *auth.Claims) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := memory.NewRepository()
	repo.Seed(testNow.Year())
	engine := stats.NewEngine(repo, stats.WithClock(func() time.Time { return testNow }), stats.WithLogger(logger))
	service := participant.NewService(repo, engine, nil, participant.WithLogger(logger))

	withClaims := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims != nil {
				r = r.WithContext(auth.WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
	return fixture{repo: repo, router: NewHandler(engine, service, logger).Router(withClaims)}
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestDashboardDefaultsToCurrentYear(t *testing.T) {
	fx := newFixture(t, &auth.Claims{Subject: "u-1", Role: auth.RoleFinance})

	rec := serve(fx.router, httptest.NewRequest(http.MethodGet, "/stats-impact", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dash stats.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	require.Equal(t, "2024-01-01", dash.Filter.DateFrom.Format(filter.DateLayout))
	require.Equal(t, "2024-12-31", dash.Filter.DateTo.Format(filter.DateLayout))
	require.Equal(t, 4, dash.Volume.Total.Activities)
	require.Equal(t, 5, dash.Volume.Total.Events)
	require.Equal(t, []string{"Emploi", "Familles", "Jeunesse"}, dash.Sectors)
}

func TestDashboardPinsRestrictedSector(t *testing.T) {
	fx := newFixture(t, &auth.Claims{Subject: "u-2", Role: auth.RoleResponsableSecteur, Secteur: "Jeunesse"})

	rec := serve(fx.router, httptest.NewRequest(http.MethodGet, "/stats-impact?secteur=Emploi", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dash stats.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	require.Equal(t, "Jeunesse", dash.Filter.Secteur)
	require.Equal(t, 2, dash.Volume.Total.Activities)
	require.Equal(t, 3, dash.Volume.Total.Events)
	require.Empty(t, dash.Sectors)
}

func TestDashboardRejectsUnknownRole(t *testing.T) {
	fx := newFixture(t, &auth.Claims{Subject: "u-3", Role: auth.ParseRole("benevole")})

	rec := serve(fx.router, httptest.NewRequest(http.MethodGet, "/stats-impact", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDashboardRequiresIdentity(t *testing.T) {
	fx := newFixture(t, nil)

	rec := serve(fx.router, httptest.NewRequest(http.MethodGet, "/stats-impact", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(fx.router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateParticipantOutsideSectorIsForbidden(t *testing.T) {
	fx := newFixture(t, &auth.Claims{Subject: "u-2", Role: auth.RoleResponsableSecteur, Secteur: "Jeunesse"})

	rec := serve(fx.router, postForm("/stats-impact/participants/3", url.Values{"nom": {"Autre"}}))
	require.Equal(t, http.StatusForbidden, rec.Code)

	stored, err := fx.repo.GetParticipant(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, "Petit", stored.Nom)
	require.Empty(t, fx.repo.Changes())
}

func TestUpdateParticipantCommitsVisibleEdit(t *testing.T) {
	fx := newFixture(t, &auth.Claims{Subject: "u-2", Role: auth.RoleResponsableSecteur, Secteur: "Jeunesse"})

	rec := serve(fx.router, postForm("/stats-impact/participants/1", url.Values{"nom": {""}, "ville": {"Lyon"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UpdateParticipantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.True(t, resp.StillVisible)
	require.Equal(t, []string{"ville"}, resp.ChangedFields)
	require.Equal(t, "Martin", resp.Participant.Nom)
	require.Equal(t, "Lyon", *resp.Participant.Ville)
}

func TestUpdateParticipantMapsPersistenceFailure(t *testing.T) {
	fx := newFixture(t, &auth.Claims{Subject: "u-1", Role: auth.RoleDirectrice})
	fx.repo.FailUpdates(errors.New("connection reset"))

	rec := serve(fx.router, postForm("/stats-impact/participants/2", url.Values{"telephone": {"0600000000"}}))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	stored, err := fx.repo.GetParticipant(context.Background(), 2)
	require.NoError(t, err)
	require.Nil(t, stored.Telephone)
}

func TestUpdateParticipantRejectsMalformedID(t *testing.T) {
	fx := newFixture(t, &auth.Claims{Subject: "u-1", Role: auth.RoleFinance})

	rec := serve(fx.router, postForm("/stats-impact/participants/abc", url.Values{}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubEditor struct {
	err error
}

func (s stubEditor) UpdateParticipant(context.Context, *auth.Claims, int64, participant.Fields, filter.Filter) (*participant.Result, error) {
	return nil, s.err
}

type stubDashboards struct{}

func (stubDashboards) Dashboard(context.Context, *auth.Claims, filter.Filter) (*stats.Dashboard, error) {
	return &stats.Dashboard{}, nil
}

func (stubDashboards) Now() time.Time { return testNow }

func TestUpdateParticipantErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"role", domain.ErrStatsForbidden, http.StatusForbidden},
		{"not found", domain.ErrParticipantNotFound, http.StatusNotFound},
		{"persistence", &domain.PersistenceError{Op: "update participant", Err: errors.New("boom")}, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	claims := &auth.Claims{Subject: "u-1", Role: auth.RoleFinance}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(stubDashboards{}, stubEditor{err: tc.err}, slog.New(slog.NewTextHandler(io.Discard, nil)))
			router := h.Router(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
				})
			})

			rec := serve(router, postForm("/stats-impact/participants/9", url.Values{"nom": {"X"}}))
			require.Equal(t, tc.status, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, false, body["ok"])
		})
	}
}
