package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/logvault/internal/engine"
	"github.com/coffersTech/logvault/internal/metrics"
	"github.com/coffersTech/logvault/internal/model"
)

const defaultHistogramInterval = time.Hour

// handleCreate processes POST /api/logs.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.ingestBody(w, r)
	if !ok {
		return
	}

	in, err := s.parseSingle(body)
	if err != nil {
		s.writeFailure(w, err, "Failed to ingest log")
		return
	}

	rec, err := s.store.Insert(in)
	if err != nil {
		s.writeFailure(w, err, "Failed to ingest log")
		return
	}

	metrics.RecordIngested(string(rec.Level), "http")
	s.publish(rec)
	writeData(w, http.StatusCreated, rec)
}

// handleBulk processes POST /api/logs/bulk.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	body, ok := s.ingestBody(w, r)
	if !ok {
		return
	}

	inputs, err := s.parseBulk(body)
	if err != nil {
		s.writeFailure(w, err, "Failed to bulk insert logs")
		return
	}

	result, added, err := s.store.BulkInsert(inputs)
	if err != nil {
		s.writeFailure(w, err, "Failed to bulk insert logs")
		return
	}

	for i := range added {
		metrics.RecordIngested(string(added[i].Level), "bulk")
	}
	s.publish(added...)
	writeData(w, http.StatusCreated, result)
}

func (s *Server) ingestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := s.readBody(w, r)
	if err == nil {
		return body, true
	}
	if errors.Is(err, errBodyTooLarge) {
		countRejected("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", "")
		return nil, false
	}
	writeError(w, http.StatusBadRequest, "Failed to read body", err.Error())
	return nil, false
}

func (s *Server) publish(records ...model.LogRecord) {
	if s.hub != nil && len(records) > 0 {
		s.hub.Publish(records...)
	}
}

// handleList processes GET /api/logs.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	page, err := s.store.Query(q)
	if err != nil {
		s.writeFailure(w, err, "Failed to fetch logs")
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       page.Records,
		Pagination: &page.Pagination,
	})
}

// handleGet processes GET /api/logs/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetByID(r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err, "Failed to fetch log")
		return
	}
	writeData(w, http.StatusOK, rec)
}

// handleUpdate processes PUT /api/logs/{id}. id and timestamp in the body
// have no LogPatch counterpart and are ignored.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to read body", err.Error())
		return
	}

	var patch model.LogPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := patch.Validate(); err != nil {
		s.writeFailure(w, err, "Failed to update log")
		return
	}

	rec, err := s.store.Update(r.PathValue("id"), patch)
	if err != nil {
		s.writeFailure(w, err, "Failed to update log")
		return
	}
	writeData(w, http.StatusOK, rec)
}

// handleDelete processes DELETE /api/logs/{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Delete(r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err, "Failed to delete log")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Log deleted successfully",
		Data:    rec,
	})
}

// handleStats processes GET /api/logs/stats/overview.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.writeFailure(w, err, "Failed to fetch statistics")
		return
	}
	writeData(w, http.StatusOK, stats)
}

// handleHistogram processes GET /api/logs/stats/histogram.
// interval accepts a Go duration ("5m") or a number of seconds.
func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	filter, err := parseFilter(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	interval := defaultHistogramInterval
	if v := params.Get("interval"); v != "" {
		interval, err = parseInterval(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
	}

	points, err := s.store.Histogram(filter, interval)
	if err != nil {
		s.writeFailure(w, err, "Failed to compute histogram")
		return
	}
	writeData(w, http.StatusOK, points)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": model.Now().Format(model.TimeFormat),
	})
}

func parseListQuery(params url.Values) (engine.Query, error) {
	filter, err := parseFilter(params)
	if err != nil {
		return engine.Query{}, err
	}
	q := engine.Query{Filter: filter}

	if v := params.Get("sortBy"); v != "" {
		field, err := engine.ParseSortField(v)
		if err != nil {
			return engine.Query{}, fmt.Errorf("%w: %q", err, v)
		}
		q.SortBy = field
	}
	if v := params.Get("sortOrder"); v != "" {
		switch order := engine.SortOrder(strings.ToLower(v)); order {
		case engine.SortAsc, engine.SortDesc:
			q.SortOrder = order
		default:
			return engine.Query{}, fmt.Errorf("invalid sortOrder %q: must be asc or desc", v)
		}
	}
	if q.Page, err = parsePositiveInt(params, "page"); err != nil {
		return engine.Query{}, err
	}
	if q.Limit, err = parsePositiveInt(params, "limit"); err != nil {
		return engine.Query{}, err
	}
	return q, nil
}

func parseFilter(params url.Values) (engine.Filter, error) {
	f := engine.Filter{
		Service:    params.Get("service"),
		ResourceID: params.Get("resourceId"),
		Search:     params.Get("search"),
		Query:      params.Get("q"),
	}

	if v := params.Get("level"); v != "" {
		lvl := model.Level(v)
		if !lvl.Valid() {
			return f, fmt.Errorf("invalid level %q", v)
		}
		f.Level = lvl
	}

	var err error
	if f.StartDate, err = parseTimeParam(params, "startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = parseTimeParam(params, "endDate"); err != nil {
		return f, err
	}
	return f, nil
}

// parsePositiveInt returns 0 for an absent parameter so engine defaults apply.
func parsePositiveInt(params url.Values, key string) (int, error) {
	v := params.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, v)
	}
	return n, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimeParam accepts ISO-8601 timestamps, plain dates and unix milliseconds.
// Values without a zone are read as UTC.
func parseTimeParam(params url.Values, key string) (time.Time, error) {
	v := params.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid %s %q", key, v)
}

func parseInterval(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 && secs <= math.MaxInt64/int64(time.Second) {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid interval %q", v)
}
