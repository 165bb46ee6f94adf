package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// LogRecord is a single persisted log entry.
// ID and Timestamp are assigned by the store at creation and never change.
type LogRecord struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Level       Level           `json:"level"`
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

// LogInput is the caller-supplied part of a new record.
type LogInput struct {
	Level       Level           `json:"level"`
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
}

// NewRecord builds a record from input with the given identity.
// An explicit JSON null metadata is stored as absent.
func NewRecord(id string, ts time.Time, in LogInput) LogRecord {
	if string(in.Metadata) == "null" {
		in.Metadata = nil
	}
	return LogRecord{
		ID:          id,
		Timestamp:   ts,
		Level:       in.Level,
		Message:     in.Message,
		Service:     in.Service,
		Source:      in.Source,
		Environment: in.Environment,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		ResourceID:  in.ResourceID,
		TraceID:     in.TraceID,
		SpanID:      in.SpanID,
		Commit:      in.Commit,
		Metadata:    in.Metadata,
		Tags:        in.Tags,
		Duration:    in.Duration,
	}
}

// Validate checks the required fields and the level enum.
func (in LogInput) Validate() error {
	if in.Level == "" || in.Message == "" {
		return &ValidationError{Index: -1, Reason: "missing required fields: level and message are required"}
	}
	if !in.Level.Valid() {
		return &ValidationError{Index: -1, Field: "level", Reason: invalidLevelReason()}
	}
	return nil
}

// LogPatch holds the fields supplied to an update. Nil fields are left untouched.
// It carries no ID or Timestamp, so an update can never change them.
type LogPatch struct {
	Level       *Level          `json:"level,omitempty"`
	Message     *string         `json:"message,omitempty"`
	Service     *string         `json:"service,omitempty"`
	Source      *string         `json:"source,omitempty"`
	Environment *string         `json:"environment,omitempty"`
	IP          *string         `json:"ip,omitempty"`
	UserAgent   *string         `json:"userAgent,omitempty"`
	ResourceID  *string         `json:"resourceId,omitempty"`
	TraceID     *string         `json:"traceId,omitempty"`
	SpanID      *string         `json:"spanId,omitempty"`
	Commit      *string         `json:"commit,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
	Duration    *float64        `json:"duration,omitempty"`
}

// Validate rejects a level outside the enum and an explicitly emptied message.
func (p LogPatch) Validate() error {
	if p.Level != nil && !p.Level.Valid() {
		return &ValidationError{Index: -1, Field: "level", Reason: invalidLevelReason()}
	}
	if p.Message != nil && *p.Message == "" {
		return &ValidationError{Index: -1, Field: "message", Reason: "message cannot be empty"}
	}
	return nil
}

// ApplyTo shallow-merges the supplied fields into r.
func (p LogPatch) ApplyTo(r *LogRecord) {
	if p.Level != nil {
		r.Level = *p.Level
	}
	setString(&r.Message, p.Message)
	setString(&r.Service, p.Service)
	setString(&r.Source, p.Source)
	setString(&r.Environment, p.Environment)
	setString(&r.IP, p.IP)
	setString(&r.UserAgent, p.UserAgent)
	setString(&r.ResourceID, p.ResourceID)
	setString(&r.TraceID, p.TraceID)
	setString(&r.SpanID, p.SpanID)
	setString(&r.Commit, p.Commit)
	if p.Metadata != nil {
		if string(p.Metadata) == "null" {
			r.Metadata = nil
		} else {
			r.Metadata = p.Metadata
		}
	}
	if p.Tags != nil {
		r.Tags = *p.Tags
	}
	if p.Duration != nil {
		r.Duration = p.Duration
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// CanonicalField maps a field name or alias to its JSON name.
// It returns "" for unknown names.
func CanonicalField(name string) string {
	switch strings.ToLower(name) {
	case "id":
		return "id"
	case "timestamp", "ts", "time":
		return "timestamp"
	case "level", "lvl":
		return "level"
	case "message", "msg":
		return "message"
	case "service", "svc":
		return "service"
	case "source", "src":
		return "source"
	case "environment", "env":
		return "environment"
	case "ip", "host":
		return "ip"
	case "useragent", "ua":
		return "userAgent"
	case "resourceid", "resource":
		return "resourceId"
	case "traceid", "trace":
		return "traceId"
	case "spanid", "span":
		return "spanId"
	case "commit":
		return "commit"
	case "tag", "tags":
		return "tags"
	case "duration":
		return "duration"
	case "updatedat":
		return "updatedAt"
	default:
		return ""
	}
}

// FieldValues returns the string view of a named field. Tags yield one value per tag;
// absent optional fields yield nothing.
func (r *LogRecord) FieldValues(name string) []string {
	var v string
	switch CanonicalField(name) {
	case "id":
		v = r.ID
	case "timestamp":
		v = r.Timestamp.UTC().Format(TimeFormat)
	case "level":
		v = string(r.Level)
	case "message":
		v = r.Message
	case "service":
		v = r.Service
	case "source":
		v = r.Source
	case "environment":
		v = r.Environment
	case "ip":
		v = r.IP
	case "userAgent":
		v = r.UserAgent
	case "resourceId":
		v = r.ResourceID
	case "traceId":
		v = r.TraceID
	case "spanId":
		v = r.SpanID
	case "commit":
		v = r.Commit
	case "tags":
		return r.Tags
	case "duration":
		if r.Duration == nil {
			return nil
		}
		v = strconv.FormatFloat(*r.Duration, 'f', -1, 64)
	case "updatedAt":
		if r.UpdatedAt == nil {
			return nil
		}
		v = r.UpdatedAt.UTC().Format(TimeFormat)
	}
	if v == "" {
		return nil
	}
	return []string{v}
}

// TimeFormat is the ISO-8601 layout used for timestamps on the wire.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Now returns the current time truncated to the millisecond precision that
// timestamps are persisted with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
