package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "s3cret", Issuer: "statsimpact"}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	return token
}

func TestParseRoleFoldsAccentsAndCase(t *testing.T) {
	require.Equal(t, RoleFinance, ParseRole("Financière"))
	require.Equal(t, RoleFinance, ParseRole(" FINANCE "))
	require.Equal(t, RoleDirectrice, ParseRole("Directrice"))
	require.Equal(t, RoleResponsableSecteur, ParseRole("responsable_secteur"))
	require.Equal(t, Role("benevole"), ParseRole("Bénévole"))
}

func TestRolePolicy(t *testing.T) {
	cases := []struct {
		name       string
		claims     *Claims
		view, list bool
		restricted bool
	}{
		{"finance", &Claims{Role: RoleFinance}, true, true, false},
		{"directrice", &Claims{Role: RoleDirectrice}, true, true, false},
		{"admin", &Claims{Role: RoleAdminTech}, true, true, false},
		{"sector lead", &Claims{Role: RoleResponsableSecteur, Secteur: "Jeunesse"}, true, false, true},
		{"sector lead without sector", &Claims{Role: RoleResponsableSecteur}, false, false, true},
		{"unknown", &Claims{Role: "benevole"}, false, false, false},
		{"anonymous", nil, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.view, tc.claims.CanViewStats())
			require.Equal(t, tc.list, tc.claims.CanListSectors())
			require.Equal(t, tc.restricted, tc.claims.IsSectorRestricted())
		})
	}
}

func TestParseValidToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, jwt.MapClaims{
		"sub":     "user-1",
		"role":    "Financière",
		"secteur": " Emploi ",
		"iss":     testConfig.Issuer,
		"exp":     exp.Unix(),
	})

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, RoleFinance, claims.Role)
	require.Equal(t, "Emploi", claims.Secteur)
	require.True(t, exp.Equal(claims.ExpiresAt))
}

func TestParseRejectsBadTokens(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	_, err := Parse("", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = Parse(sign(t, jwt.MapClaims{"sub": "u", "role": "finance", "iss": "other", "exp": exp}), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = Parse(sign(t, jwt.MapClaims{"sub": "u", "iss": testConfig.Issuer, "exp": exp}), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = Parse(sign(t, jwt.MapClaims{"sub": "u", "role": "finance", "iss": testConfig.Issuer}), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = Parse(sign(t, jwt.MapClaims{"sub": "u", "role": "finance", "iss": testConfig.Issuer, "exp": time.Now().Add(-time.Minute).Unix()}), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticatorInjectsClaims(t *testing.T) {
	token := sign(t, jwt.MapClaims{"sub": "u-9", "role": "directrice", "iss": testConfig.Issuer, "exp": time.Now().Add(time.Hour).Unix()})

	var seen *Claims
	handler := NewAuthenticator(testConfig, slog.New(slog.NewTextHandler(io.Discard, nil))).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stats-impact", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "u-9", seen.Subject)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats-impact", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"type":"unauthenticated"`)

	basic := httptest.NewRequest(http.MethodGet, "/stats-impact", nil)
	basic.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, basic)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), ErrInvalidToken.Error())
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("bearer abc"))
	require.Equal(t, "", bearerToken(""))
	require.Equal(t, "Basic xyz", bearerToken("Basic xyz"))
}
