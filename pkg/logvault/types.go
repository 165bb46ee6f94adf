package logvault

import (
	"encoding/json"
	"time"
)

// Levels accepted by the server.
const (
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
	LevelDebug = "debug"
	LevelTrace = "trace"
)

// Log is a stored record as returned by the server.
type Log struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Level       string          `json:"level"`
	Message     string          `json:"message"`
	Service     string          `json:"service,omitempty"`
	Source      string          `json:"source,omitempty"`
	Environment string          `json:"environment,omitempty"`
	IP          string          `json:"ip,omitempty"`
	UserAgent   string          `json:"userAgent,omitempty"`
	ResourceID  string          `json:"resourceId,omitempty"`
	TraceID     string          `json:"traceId,omitempty"`
	SpanID      string          `json:"spanId,omitempty"`
	Commit      string          `json:"commit,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Duration    *float64        `json:"duration,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// LogInput is a new record. Level and Message are required.
type LogInput struct {
	Level       string   `json:"level"`
	Message     string   `json:"message"`
	Service     string   `json:"service,omitempty"`
	Source      string   `json:"source,omitempty"`
	Environment string   `json:"environment,omitempty"`
	IP          string   `json:"ip,omitempty"`
	UserAgent   string   `json:"userAgent,omitempty"`
	ResourceID  string   `json:"resourceId,omitempty"`
	TraceID     string   `json:"traceId,omitempty"`
	SpanID      string   `json:"spanId,omitempty"`
	Commit      string   `json:"commit,omitempty"`
	Metadata    any      `json:"metadata,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
}

type BulkResult struct {
	Inserted int `json:"inserted"`
	Total    int `json:"total"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ListResult is one page of a list query.
type ListResult struct {
	Logs       []Log
	Pagination Pagination
}

type Stats struct {
	Total          int            `json:"total"`
	ByLevel        map[string]int `json:"byLevel"`
	ByService      map[string]int `json:"byService"`
	RecentActivity struct {
		Last24h int `json:"last24h"`
		Last7d  int `json:"last7d"`
		Last30d int `json:"last30d"`
	} `json:"recentActivity"`
}
