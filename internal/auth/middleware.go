package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying the acting identity.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the identity stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims, claims != nil
}

// Authenticator rejects requests without a valid bearer token and stores the
// identity of the others on the request context.
type Authenticator struct {
	cfg    Config
	logger *slog.Logger
}

func NewAuthenticator(cfg Config, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{cfg: cfg, logger: logger}
}

// Wrap is a chi-compatible middleware.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := Parse(bearerToken(r.Header.Get("Authorization")), a.cfg)
		if err != nil {
			if !errors.Is(err, ErrMissingToken) {
				a.logger.WarnContext(r.Context(), "bearer token rejected", "path", r.URL.Path, "error", err)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="statsimpact"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "type": "unauthenticated", "detail": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// bearerToken extracts the token from an Authorization header. A header with
// another scheme yields a non-empty garbage token so it fails as invalid, not missing.
func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found {
		return scheme
	}
	if !strings.EqualFold(scheme, "bearer") {
		return header
	}
	return token
}
