// Package cache tells whatever caches rendered dashboards that a participant
// edit made some of them stale.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Scope identifies the dashboards an edit affects. Query is the encoded
// filter the edit was made under; Secteur is empty for cross-sector views.
type Scope struct {
	Query         string `json:"query"`
	Secteur       string `json:"secteur,omitempty"`
	ParticipantID int64  `json:"participant_id"`
}

// Invalidator drops cached dashboards for a scope.
type Invalidator interface {
	Invalidate(ctx context.Context, scope Scope) error
}

// NoopInvalidator is used when nothing caches dashboards.
type NoopInvalidator struct{}

func (NoopInvalidator) Invalidate(context.Context, Scope) error { return nil }

// HTTPInvalidator posts scopes to a purge endpoint, typically a reverse proxy.
type HTTPInvalidator struct {
	client   *http.Client
	endpoint string
	token    string
}

func NewHTTPInvalidator(endpoint, token string, timeout time.Duration) *HTTPInvalidator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPInvalidator{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
	}
}

// Invalidate sends the scope as JSON. Any 2xx answer counts as purged.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, scope Scope) error {
	body, err := json.Marshal(scope)
	if err != nil {
		return fmt.Errorf("encode purge scope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/purge", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("purge dashboards: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &PurgeError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}
	return nil
}

// PurgeError is returned when the purge endpoint answers with a non-2xx status.
type PurgeError struct {
	Status int
	Detail string
}

func (e *PurgeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("dashboard purge rejected: %d", e.Status)
	}
	return fmt.Sprintf("dashboard purge rejected: %d: %s", e.Status, e.Detail)
}
