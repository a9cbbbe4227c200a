// Package remote provides a memory.Driver backed by a hosted mem0-style
// memory service over its REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
)

const (
	// DefaultBaseURL is the hosted memory service endpoint.
	DefaultBaseURL = "https://api.mem0.ai"

	// defaultTimeout bounds every store call. Expiry surfaces as a
	// "timeout" error and is classified accordingly by the memory client.
	defaultTimeout = 30 * time.Second
)

// Config holds configuration for the remote driver.
type Config struct {
	// BaseURL is the memory service URL. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey authenticates against the service. Required.
	APIKey string

	// AgentID scopes search filters alongside the user ID.
	AgentID string

	// Timeout overrides the per-call HTTP timeout.
	Timeout time.Duration
}

// Driver implements memory.Driver against the service's REST API.
type Driver struct {
	baseURL    string
	apiKey     string
	agentID    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDriver creates a remote memory driver.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("memory service API key is required")
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Driver{
		baseURL: baseURL,
		apiKey:  c.APIKey,
		agentID: c.AgentID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// Add persists messages as one memory via POST /v1/memories/.
func (d *Driver) Add(ctx context.Context, messages []memory.Message, opts memory.AddOptions) (*memory.AddResult, error) {
	body := addRequest{
		Messages: messages,
		UserID:   opts.UserID,
		AgentID:  opts.AgentID,
		RunID:    opts.RunID,
		Metadata: opts.Metadata,
		Version:  "v2",
	}

	var resp addResponse
	if err := d.post(ctx, "/v1/memories/", body, &resp); err != nil {
		return nil, err
	}

	// The v2 API returns a result list; take the first assigned ID.
	id := resp.ID
	if id == "" && len(resp.Results) > 0 {
		id = resp.Results[0].ID
	}

	return &memory.AddResult{ID: id}, nil
}

// Search runs a semantic query via POST /v2/memories/search/.
// The v2 API requires a filters object carrying the identity scope.
func (d *Driver) Search(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Memory, error) {
	filters := map[string]any{"user_id": opts.UserID}
	if d.agentID != "" {
		filters["agent_id"] = d.agentID
	}

	body := searchRequest{
		Query:   query,
		Filters: filters,
		TopK:    opts.Limit,
	}

	var resp listResponse
	if err := d.post(ctx, "/v2/memories/search/", body, &resp); err != nil {
		return nil, err
	}

	return resp.memories(), nil
}

// GetAll lists the user's memories via GET /v1/memories/.
func (d *Driver) GetAll(ctx context.Context, userID string) ([]memory.Memory, error) {
	endpoint := "/v1/memories/?user_id=" + url.QueryEscape(userID)

	var resp listResponse
	if err := d.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	return resp.memories(), nil
}

// Delete removes one memory via DELETE /v1/memories/{id}/.
func (d *Driver) Delete(ctx context.Context, id string) error {
	return d.doJSON(ctx, http.MethodDelete, "/v1/memories/"+url.PathEscape(id)+"/", nil, nil)
}

// DeleteAll removes every memory for a user via DELETE /v1/memories/.
func (d *Driver) DeleteAll(ctx context.Context, userID string) error {
	return d.doJSON(ctx, http.MethodDelete, "/v1/memories/?user_id="+url.QueryEscape(userID), nil, nil)
}

// Close releases driver resources. The shared HTTP client needs no teardown.
func (d *Driver) Close() error {
	return nil
}

// post sends a JSON body and decodes a JSON response.
func (d *Driver) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", endpoint, err)
	}
	return d.doJSON(ctx, http.MethodPost, endpoint, payload, out)
}

// doJSON performs one HTTP call against the service, mapping non-2xx
// statuses to errors whose text the memory client's classifier understands.
func (d *Driver) doJSON(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("%s: %s: %s", endpoint, statusErrorPrefix(resp.StatusCode), string(respBody))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}

	return nil
}

// statusErrorPrefix phrases an HTTP status so the classifier maps it to the
// right kind (validation for 4xx client mistakes, generic otherwise).
func statusErrorPrefix(status int) string {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Sprintf("bad request (status %d)", status)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return fmt.Sprintf("upstream timeout (status %d)", status)
	default:
		return fmt.Sprintf("unexpected status %d", status)
	}
}
