package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coffersTech/logvault/internal/hub"
	"github.com/coffersTech/logvault/internal/model"
	"github.com/coffersTech/logvault/internal/storage"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns a later instant on every call so inserts get distinct timestamps.
func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	ts    *httptest.Server
	store *storage.Store
	hub   *hub.Hub
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	store, err := storage.New(filepath.Join(t.TempDir(), "logs.json"), storage.WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := hub.New()
	srv := NewServer(store, h, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, store: store, hub: h}
}

type response struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
	Error string `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, response) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out response
	data, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s %s: bad response body %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode, out
}

func decodeRecord(t *testing.T, raw json.RawMessage) model.LogRecord {
	t.Helper()
	var rec model.LogRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func decodeRecords(t *testing.T, raw json.RawMessage) []model.LogRecord {
	t.Helper()
	var recs []model.LogRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestExampleScenario(t *testing.T) {
	f := newFixture(t, Options{})

	code, resp := f.do(t, "POST", "/api/logs", `{"level":"error","message":"db down"}`)
	if code != http.StatusCreated || !resp.Success {
		t.Fatalf("create A: %d %+v", code, resp)
	}
	a := decodeRecord(t, resp.Data)
	if a.ID == "" || a.Timestamp.IsZero() {
		t.Fatalf("identity not assigned: %+v", a)
	}

	code, resp = f.do(t, "POST", "/api/logs", `{"level":"info","message":"ok"}`)
	if code != http.StatusCreated {
		t.Fatalf("create B: %d", code)
	}
	b := decodeRecord(t, resp.Data)

	_, resp = f.do(t, "GET", "/api/logs?level=error", "")
	if got := decodeRecords(t, resp.Data); len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("level=error returned %+v", got)
	}

	_, resp = f.do(t, "GET", "/api/logs?search=ok", "")
	if got := decodeRecords(t, resp.Data); len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("search=ok returned %+v", got)
	}

	code, resp = f.do(t, "GET", "/api/logs?sortBy=timestamp&sortOrder=asc&page=1&limit=1", "")
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	if got := decodeRecords(t, resp.Data); len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("page 1 returned %+v", got)
	}
	p := resp.Pagination
	if p == nil || p.Page != 1 || p.Limit != 1 || p.Total != 2 || p.TotalPages != 2 {
		t.Errorf("pagination = %+v", p)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing message", `{"level":"info"}`, "missing required fields: level and message are required"},
		{"missing level", `{"message":"x"}`, "missing required fields: level and message are required"},
		{"bad level", `{"level":"fatal","message":"x"}`, "invalid log level. Must be one of: error, warn, info, debug, trace"},
		{"not an object", `[1,2]`, "log must be a JSON object"},
		{"malformed", `{"level":`, "invalid JSON"},
		{"tags type", `{"level":"info","message":"x","tags":"a"}`, "tags must be an array of strings"},
		{"duration type", `{"level":"info","message":"x","duration":"slow"}`, "duration must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := f.do(t, "POST", "/api/logs", tt.body)
			if code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", code)
			}
			if !strings.HasPrefix(resp.Error, tt.want) {
				t.Errorf("error = %q, want prefix %q", resp.Error, tt.want)
			}
		})
	}

	if n, _ := f.store.Count(); n != 0 {
		t.Errorf("rejected input was stored: %d records", n)
	}
}

func TestCreateKeepsOptionalFields(t *testing.T) {
	f := newFixture(t, Options{})
	body := `{"level":"warn","message":"slow","service":"api","metadata":{"a":[1,{"b":null}]},"tags":["x","y"],"duration":12.5,"unknown":"dropped"}`
	code, resp := f.do(t, "POST", "/api/logs", body)
	if code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", code, resp.Error)
	}
	rec := decodeRecord(t, resp.Data)
	if string(rec.Metadata) != `{"a":[1,{"b":null}]}` {
		t.Errorf("metadata = %s", rec.Metadata)
	}
	if len(rec.Tags) != 2 || rec.Duration == nil || *rec.Duration != 12.5 {
		t.Errorf("record = %+v", rec)
	}
	if strings.Contains(string(resp.Data), "unknown") {
		t.Error("unknown field should not be stored")
	}
}

func TestBulk(t *testing.T) {
	f := newFixture(t, Options{})

	code, resp := f.do(t, "POST", "/api/logs/bulk", `{"logs":[{"level":"info","message":"a"},{"level":"debug","message":"b"}]}`)
	if code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", code, resp.Error)
	}
	var result storage.BulkResult
	json.Unmarshal(resp.Data, &result)
	if result.Inserted != 2 || result.Total != 2 {
		t.Errorf("result = %+v", result)
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not array", `{"logs":{}}`, "logs must be an array"},
		{"missing", `{}`, "logs must be an array"},
		{"empty", `{"logs":[]}`, "logs array cannot be empty"},
		{"invalid element", `{"logs":[{"level":"info","message":"ok"},{"level":"info"}]}`, "log at index 1:"},
		{"bad level element", `{"logs":[{"level":"nope","message":"x"}]}`, "log at index 0: invalid log level"},
		{"type error element", `{"logs":[{"level":"info","message":"x"},{"level":"info","message":5}]}`, "log at index 1: message must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := f.do(t, "POST", "/api/logs/bulk", tt.body)
			if code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", code)
			}
			if !strings.HasPrefix(resp.Error, tt.want) {
				t.Errorf("error = %q, want prefix %q", resp.Error, tt.want)
			}
		})
	}

	if n, _ := f.store.Count(); n != 2 {
		t.Errorf("failed batches must write nothing, count = %d", n)
	}
}

func TestGetUpdateDelete(t *testing.T) {
	f := newFixture(t, Options{})
	_, resp := f.do(t, "POST", "/api/logs", `{"level":"info","message":"before","service":"api"}`)
	created := decodeRecord(t, resp.Data)

	code, resp := f.do(t, "GET", "/api/logs/"+created.ID, "")
	if code != http.StatusOK || decodeRecord(t, resp.Data).Message != "before" {
		t.Fatalf("get: %d %s", code, resp.Data)
	}

	code, resp = f.do(t, "PUT", "/api/logs/"+created.ID,
		`{"id":"hijack","timestamp":"2000-01-01T00:00:00Z","message":"x"}`)
	if code != http.StatusOK {
		t.Fatalf("update: %d %s", code, resp.Error)
	}
	updated := decodeRecord(t, resp.Data)
	if updated.ID != created.ID || !updated.Timestamp.Equal(created.Timestamp) {
		t.Errorf("identity changed: %+v", updated)
	}
	if updated.Message != "x" || updated.Service != "api" || updated.UpdatedAt == nil {
		t.Errorf("merge wrong: %+v", updated)
	}

	if code, _ := f.do(t, "PUT", "/api/logs/"+created.ID, `{"level":"loud"}`); code != http.StatusBadRequest {
		t.Errorf("invalid patch level: %d", code)
	}
	if code, _ := f.do(t, "PUT", "/api/logs/"+created.ID, `{"message":`); code != http.StatusBadRequest {
		t.Errorf("malformed patch: %d", code)
	}

	code, resp = f.do(t, "DELETE", "/api/logs/"+created.ID, "")
	if code != http.StatusOK || resp.Message != "Log deleted successfully" {
		t.Fatalf("delete: %d %+v", code, resp)
	}
	if decodeRecord(t, resp.Data).ID != created.ID {
		t.Error("delete should return the removed record")
	}

	for _, method := range []string{"GET", "PUT", "DELETE"} {
		body := ""
		if method == "PUT" {
			body = `{"message":"y"}`
		}
		code, resp := f.do(t, method, "/api/logs/"+created.ID, body)
		if code != http.StatusNotFound || resp.Error != "Log not found" {
			t.Errorf("%s after delete: %d %q", method, code, resp.Error)
		}
	}
}

func TestListParamErrors(t *testing.T) {
	f := newFixture(t, Options{})
	for _, q := range []string{
		"sortBy=bogus",
		"sortOrder=sideways",
		"page=0",
		"limit=abc",
		"level=fatal",
		"startDate=yesterday",
		"q=(level:error",
	} {
		if code, _ := f.do(t, "GET", "/api/logs?"+q, ""); code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, code)
		}
	}
}

func TestListHugePageAndLimit(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, "POST", "/api/logs/bulk", `{"logs":[
		{"level":"info","message":"a"},
		{"level":"info","message":"b"}
	]}`)

	tests := []struct {
		query     string
		wantLen   int
		wantPages int
	}{
		{"page=9223372036854775807&limit=2", 0, 1},
		{"page=2&limit=9223372036854775807", 0, 1},
		{"page=1&limit=9223372036854775807", 2, 1},
		{"page=4611686018427387904&limit=4", 0, 1},
	}
	for _, tt := range tests {
		code, resp := f.do(t, "GET", "/api/logs?"+tt.query, "")
		if code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", tt.query, code)
			continue
		}
		if got := len(decodeRecords(t, resp.Data)); got != tt.wantLen {
			t.Errorf("%s: %d records, want %d", tt.query, got, tt.wantLen)
		}
		if resp.Pagination == nil || resp.Pagination.Total != 2 || resp.Pagination.TotalPages != tt.wantPages {
			t.Errorf("%s: pagination = %+v", tt.query, resp.Pagination)
		}
	}
}

func TestListEmptyStore(t *testing.T) {
	f := newFixture(t, Options{})
	code, resp := f.do(t, "GET", "/api/logs", "")
	if code != http.StatusOK {
		t.Fatal(code)
	}
	if string(resp.Data) != "[]" {
		t.Errorf("data = %s, want []", resp.Data)
	}
	if resp.Pagination == nil || resp.Pagination.Total != 0 || resp.Pagination.Limit != 50 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}
}

func TestStatsAndHistogram(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, "POST", "/api/logs/bulk", `{"logs":[
		{"level":"error","message":"a","service":"api"},
		{"level":"error","message":"b","service":"api"},
		{"level":"info","message":"c"}
	]}`)

	code, resp := f.do(t, "GET", "/api/logs/stats/overview", "")
	if code != http.StatusOK {
		t.Fatal(code)
	}
	var stats struct {
		Total          int            `json:"total"`
		ByLevel        map[string]int `json:"byLevel"`
		ByService      map[string]int `json:"byService"`
		RecentActivity map[string]int `json:"recentActivity"`
	}
	if err := json.Unmarshal(resp.Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.ByLevel["error"] != 2 || stats.ByService["api"] != 2 || len(stats.ByService) != 1 {
		t.Errorf("stats = %+v", stats)
	}

	code, resp = f.do(t, "GET", "/api/logs/stats/histogram?interval=1h&level=error", "")
	if code != http.StatusOK {
		t.Fatalf("histogram: %d %s", code, resp.Error)
	}
	var points []struct {
		Count int `json:"count"`
	}
	json.Unmarshal(resp.Data, &points)
	if len(points) != 1 || points[0].Count != 2 {
		t.Errorf("points = %+v", points)
	}

	for _, iv := range []string{"-5m", "9223372036854775807", "9223372037"} {
		if code, _ := f.do(t, "GET", "/api/logs/stats/histogram?interval="+iv, ""); code != http.StatusBadRequest {
			t.Errorf("interval=%s: %d, want 400", iv, code)
		}
	}
	if code, _ := f.do(t, "GET", "/api/logs/stats/histogram?interval=9223372036", ""); code != http.StatusOK {
		t.Errorf("largest whole-second interval: %d, want 200", code)
	}
}

func TestStorageFailureIs500(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	os.WriteFile(blocker, nil, 0644)
	store, _ := storage.New(filepath.Join(blocker, "logs.json"))
	srv := NewServer(store, nil, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/logs", "application/json", strings.NewReader(`{"level":"info","message":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body errorBody
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != "Failed to ingest log" || body.Message == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, Options{APIKeyHash: string(hash)})

	get := func(path, bearer string) int {
		req, _ := http.NewRequest("GET", f.ts.URL+path, nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get("/api/logs", ""); code != http.StatusUnauthorized {
		t.Errorf("no token: %d", code)
	}
	if code := get("/api/logs", "wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong token: %d", code)
	}
	if code := get("/api/logs", "s3cret"); code != http.StatusOK {
		t.Errorf("bearer token: %d", code)
	}
	if code := get("/api/logs?token=s3cret", ""); code != http.StatusOK {
		t.Errorf("query token: %d", code)
	}
	if code := get("/health", ""); code != http.StatusOK {
		t.Errorf("health must stay public: %d", code)
	}
}

func TestIngestRateLimit(t *testing.T) {
	f := newFixture(t, Options{IngestRate: 0.001, IngestBurst: 1})

	if code, _ := f.do(t, "POST", "/api/logs", `{"level":"info","message":"a"}`); code != http.StatusCreated {
		t.Fatalf("first: %d", code)
	}
	if code, _ := f.do(t, "POST", "/api/logs", `{"level":"info","message":"b"}`); code != http.StatusTooManyRequests {
		t.Fatalf("second: %d, want 429", code)
	}
	if code, _ := f.do(t, "GET", "/api/logs", ""); code != http.StatusOK {
		t.Errorf("reads are not rate limited: %d", code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	f := newFixture(t, Options{MaxBodyBytes: 64})
	body := `{"level":"info","message":"` + strings.Repeat("x", 100) + `"}`
	if code, _ := f.do(t, "POST", "/api/logs", body); code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, Options{})

	resp, err := http.Get(f.ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]string
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" || health["timestamp"] == "" {
		t.Errorf("health = %v", health)
	}

	f.do(t, "GET", "/api/logs", "")
	resp, err = http.Get(f.ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), `logvault_http_requests_total{method="GET",route="GET /api/logs",status="200"}`) {
		t.Error("request metric missing from exposition")
	}
}

func TestStream(t *testing.T) {
	f := newFixture(t, Options{})

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/logs/stream?level=error"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	f.do(t, "POST", "/api/logs/bulk", `{"logs":[{"level":"info","message":"skip me"},{"level":"error","message":"disk full"}]}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rec model.LogRecord
	if err := conn.ReadJSON(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.Level != model.LevelError || rec.Message != "disk full" {
		t.Errorf("streamed %+v", rec)
	}
}
