// Package mirror talks to the remote attendance mirror over its REST
// surface. Writes are upserts keyed on (subject, day) so any retry
// converges on the same row.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ferrovax/gatehouse/internal/attendance"
)

// ErrUnreachable wraps transport-level failures talking to the mirror.
var ErrUnreachable = errors.New("remote mirror unreachable")

// ErrRejected is returned for a non-2xx response; the worker treats it the
// same as unreachable (retry with backoff) but logs the status.
var ErrRejected = errors.New("remote mirror rejected upsert")

// DefaultRequestTimeout bounds one mirror call.
const DefaultRequestTimeout = 10 * time.Second

// AttendanceTable is the remote table attendance rows land in.
const AttendanceTable = "student_attendance"

// ConflictKey is the natural composite key the remote deduplicates on.
const ConflictKey = "subject_id,day"

// Config holds mirror connection settings.
type Config struct {
	// BaseURL is the mirror root, e.g. https://project.example.co
	BaseURL string
	// APIKey is sent as both apikey and bearer token.
	APIKey string
	// Timeout per request; zero uses DefaultRequestTimeout.
	Timeout time.Duration
}

// Client is a RemoteMirror implementation over HTTP.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewClient creates a mirror client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		base:   cfg.BaseURL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// row is the wire shape of one attendance upsert.
type row struct {
	SubjectID  string `json:"subject_id"`
	Day        string `json:"day"`
	Outcome    string `json:"outcome"`
	Level      string `json:"level"`
	CapturedAt string `json:"captured_at"`
}

// Upsert writes one attendance record, resolving conflicts on the
// (subject, day) key so replays are idempotent.
func (c *Client) Upsert(ctx context.Context, rec attendance.Record) error {
	body, err := json.Marshal([]row{{
		SubjectID:  rec.SubjectID,
		Day:        rec.Day,
		Outcome:    string(rec.Outcome),
		Level:      string(rec.Level),
		CapturedAt: rec.CapturedAt.UTC().Format(time.RFC3339),
	}})
	if err != nil {
		return fmt.Errorf("encode mirror row: %w", err)
	}

	u := fmt.Sprintf("%s/rest/v1/%s?on_conflict=%s", c.base, AttendanceTable, url.QueryEscape(ConflictKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mirror request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

// HealthCheck probes the mirror's REST root. Implements the health.Checker
// shape consumed by the readiness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("build mirror probe: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
