// Package auth resolves the acting identity of a request and the role policy
// applied to the impact dashboard.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the acting identity of a request.
type Claims struct {
	Subject   string
	Role      Role
	Secteur   string
	ExpiresAt time.Time
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// tokenClaims is the JWT body issued by the staff portal.
type tokenClaims struct {
	Role    string `json:"role"`
	Secteur string `json:"secteur,omitempty"`
	jwt.RegisteredClaims
}

// Parse verifies an HS256 token and maps it onto Claims. Tokens must carry
// sub, role and exp, and match the configured issuer when one is set.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var body tokenClaims
	if _, err := jwt.ParseWithClaims(token, &body, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if body.Subject == "" || strings.TrimSpace(body.Role) == "" {
		return nil, fmt.Errorf("%w: sub and role are required", ErrInvalidToken)
	}
	return &Claims{
		Subject:   body.Subject,
		Role:      ParseRole(body.Role),
		Secteur:   strings.TrimSpace(body.Secteur),
		ExpiresAt: body.ExpiresAt.Time,
	}, nil
}
