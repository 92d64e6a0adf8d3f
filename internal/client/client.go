// Package client is a Go client for the quality gate HTTP API, used by
// guardctl and by callers that run the gate as a separate service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/pkg/httpretry"
	"github.com/ignite/outreach-guard/internal/rejection"
	"github.com/ignite/outreach-guard/internal/templates"
)

const apiPrefix = "/api/v1/quality-guard"

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("quality guard API: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("quality guard API: %d: %s", e.Status, e.Message)
}

// Client talks to one gate server.
type Client struct {
	baseURL string
	http    httpretry.HTTPDoer
}

// New creates a client for baseURL. A nil doer gets a RetryClient with
// default settings.
func New(baseURL string, doer httpretry.HTTPDoer) *Client {
	if doer == nil {
		doer = httpretry.NewRetryClient(&http.Client{Timeout: 10 * time.Second}, 3)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    doer,
	}
}

// Check asks the server for a verdict on draft.
func (c *Client) Check(ctx context.Context, draft domain.LeadDraft, lead *domain.EnrichedLead) (*domain.QualityGuardResult, error) {
	body := map[string]any{"draft": draft, "lead": lead}
	var res domain.QualityGuardResult
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/check", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RecordRejection stores a rejection. It returns a nil record without error
// when the server accepted but could not persist it. Each call increments
// the recipient's count, so it is sent once and never retried.
func (c *Client) RecordRejection(ctx context.Context, in rejection.RejectionInput) (*domain.RejectionRecord, error) {
	var rec domain.RejectionRecord
	status, err := c.do(httpretry.WithoutRetry(ctx), http.MethodPost, apiPrefix+"/rejections", in, &rec)
	if err != nil {
		return nil, err
	}
	if status == http.StatusAccepted {
		return nil, nil
	}
	return &rec, nil
}

// History returns the live record for email, or ErrNotFound.
func (c *Client) History(ctx context.Context, email string) (*domain.RejectionRecord, error) {
	var body struct {
		Record domain.RejectionRecord `json:"record"`
	}
	path := apiPrefix + "/recipients/" + url.PathEscape(email) + "/history"
	if _, err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return &body.Record, nil
}

// SelectTemplate picks the first template the recipient has not rejected.
func (c *Client) SelectTemplate(ctx context.Context, recipient string, ordered []string) (*templates.Selection, error) {
	req := map[string]any{"recipient": recipient, "templates": ordered}
	var sel templates.Selection
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/select-template", req, &sel); err != nil {
		return nil, err
	}
	return &sel, nil
}

// Stats returns decision counts since the given time.
func (c *Client) Stats(ctx context.Context, since time.Time) (*domain.DecisionStats, error) {
	path := apiPrefix + "/decisions/stats?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	var stats domain.DecisionStats
	if _, err := c.do(ctx, http.MethodGet, path, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	var raw []byte
	if in != nil {
		var err error
		raw, err = json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(raw)), nil
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, apiErr
	}
	if out != nil && resp.StatusCode != http.StatusAccepted {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
