package logvault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound matches an APIError with status 404.
var ErrNotFound = errors.New("log not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("logvault: HTTP %d: %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("logvault: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the logvault REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client, which has a 10s timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the server at baseURL. apiKey may be empty
// when the server runs without auth.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Error, Detail: env.Message}
		if decodeErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}
	if decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		return nil, fmt.Errorf("logvault: decode response: %w", decodeErr)
	}
	return &env, nil
}

func decodeData[T any](env *envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("logvault: decode data: %w", err)
	}
	return v, nil
}

// Ingest stores one record and returns it with its assigned id and timestamp.
func (c *Client) Ingest(ctx context.Context, in LogInput) (Log, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/logs", in)
	if err != nil {
		return Log{}, err
	}
	return decodeData[Log](env)
}

// BulkIngest stores many records atomically: one invalid record rejects all.
func (c *Client) BulkIngest(ctx context.Context, logs []LogInput) (BulkResult, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/logs/bulk", map[string]any{"logs": logs})
	if err != nil {
		return BulkResult{}, err
	}
	return decodeData[BulkResult](env)
}

func (c *Client) Get(ctx context.Context, id string) (Log, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/logs/"+url.PathEscape(id), nil)
	if err != nil {
		return Log{}, err
	}
	return decodeData[Log](env)
}

// Update merges fields into the record. id and timestamp cannot be changed.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) (Log, error) {
	env, err := c.do(ctx, http.MethodPut, "/api/logs/"+url.PathEscape(id), fields)
	if err != nil {
		return Log{}, err
	}
	return decodeData[Log](env)
}

// Delete removes the record and returns it.
func (c *Client) Delete(ctx context.Context, id string) (Log, error) {
	env, err := c.do(ctx, http.MethodDelete, "/api/logs/"+url.PathEscape(id), nil)
	if err != nil {
		return Log{}, err
	}
	return decodeData[Log](env)
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/logs/stats/overview", nil)
	if err != nil {
		return Stats{}, err
	}
	return decodeData[Stats](env)
}

// ListOptions are the list query parameters. Zero values are omitted and the
// server defaults apply.
type ListOptions struct {
	Level      string
	Service    string
	ResourceID string
	Search     string
	Query      string
	StartDate  time.Time
	EndDate    time.Time
	SortBy     string
	SortOrder  string
	Page       int
	Limit      int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("level", o.Level)
	set("service", o.Service)
	set("resourceId", o.ResourceID)
	set("search", o.Search)
	set("q", o.Query)
	set("sortBy", o.SortBy)
	set("sortOrder", o.SortOrder)
	if !o.StartDate.IsZero() {
		v.Set("startDate", o.StartDate.UTC().Format(time.RFC3339Nano))
	}
	if !o.EndDate.IsZero() {
		v.Set("endDate", o.EndDate.UTC().Format(time.RFC3339Nano))
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	return v
}

func (c *Client) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	path := "/api/logs"
	if q := opts.values().Encode(); q != "" {
		path += "?" + q
	}
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return ListResult{}, err
	}
	logs, err := decodeData[[]Log](env)
	if err != nil {
		return ListResult{}, err
	}
	res := ListResult{Logs: logs}
	if env.Pagination != nil {
		res.Pagination = *env.Pagination
	}
	return res, nil
}
