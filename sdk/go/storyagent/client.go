// Package storyagent is a small HTTP client for the StoryAgent REST API.
package storyagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Write actions may wait for a receipt, so it is longer than a plain read.
const DefaultHTTPTimeout = 3 * time.Minute

// Client wraps the HTTP interactions with the StoryAgent API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// Result is the outcome of an action. Status is "success" or "error"; the
// remaining fields depend on the action.
type Result map[string]any

// OK reports whether the action succeeded.
func (r Result) OK() bool {
	s, _ := r["status"].(string)
	return s == "success"
}

// Code returns the error code of a failed action.
func (r Result) Code() string {
	s, _ := r["code"].(string)
	return s
}

// Message returns the message of a failed action.
func (r Result) Message() string {
	s, _ := r["message"].(string)
	return s
}

// ActionInfo describes an action exposed by the server.
type ActionInfo struct {
	Name        string          `json:"name"`
	ToolName    string          `json:"toolName"`
	Similes     []string        `json:"similes"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// TaskSubmission creates an asynchronous invocation. ID is optional and makes
// the submission idempotent.
type TaskSubmission struct {
	ID     string         `json:"id,omitempty"`
	Action string         `json:"action"`
	Input  map[string]any `json:"input,omitempty"`
}

// Task is the server side view of an asynchronous invocation.
type Task struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Input     map[string]any `json:"input,omitempty"`
	Status    string         `json:"status"`
	Result    Result         `json:"result,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// Done reports whether the task reached a terminal status.
func (t Task) Done() bool {
	return t.Status == "succeeded" || t.Status == "failed"
}

// Invocation is one entry of the invocation journal.
type Invocation struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Input      map[string]any `json:"input,omitempty"`
	Status     string         `json:"status"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  int64          `json:"created_at"`
}

// APIError is returned for non 2xx responses.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("storyagent api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("storyagent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the API rooted at rawURL.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	c := &Client{baseURL: parsed, httpClient: &http.Client{Timeout: DefaultHTTPTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListActions returns every action the server exposes.
func (c *Client) ListActions(ctx context.Context) ([]ActionInfo, error) {
	var out struct {
		Actions []ActionInfo `json:"actions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/actions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

// Invoke runs an action synchronously. A failed action is not an error: the
// returned Result carries status "error" together with its code.
func (c *Client) Invoke(ctx context.Context, name string, input map[string]any) (Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodPost, "/api/v1/actions/"+url.PathEscape(name), nil, input, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitTask queues an action for asynchronous execution.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", nil, submission, &out); err != nil {
		return Task{}, err
	}
	return out, nil
}

// GetTask fetches a task by identifier.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Task{}, err
	}
	return out, nil
}

// WaitTask polls a task until it finishes or ctx is done.
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		t, err := c.GetTask(ctx, id)
		if err != nil {
			return Task{}, err
		}
		if t.Done() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}

// History returns the most recent invocations, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]Invocation, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	var out struct {
		Invocations []Invocation `json:"invocations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/invocations", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Invocations, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(rel).String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
