package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPInvalidatorPostsScope(t *testing.T) {
	var got Scope
	var path, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	inv := NewHTTPInvalidator(srv.URL+"/", "secret", time.Second)
	scope := Scope{Query: "secteur=Jeunesse", Secteur: "Jeunesse", ParticipantID: 7}
	require.NoError(t, inv.Invalidate(context.Background(), scope))
	require.Equal(t, "/purge", path)
	require.Equal(t, "Bearer secret", auth)
	require.Equal(t, scope, got)
}

func TestHTTPInvalidatorReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPInvalidator(srv.URL, "", time.Second).Invalidate(context.Background(), Scope{ParticipantID: 1})
	var purgeErr *PurgeError
	require.True(t, errors.As(err, &purgeErr))
	require.Equal(t, http.StatusBadGateway, purgeErr.Status)
	require.Equal(t, "upstream unavailable", purgeErr.Detail)
}

func TestNoopInvalidator(t *testing.T) {
	require.NoError(t, NoopInvalidator{}.Invalidate(context.Background(), Scope{}))
}
