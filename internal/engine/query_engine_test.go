package engine

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/coffersTech/logvault/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, level model.Level, msg string, at time.Time) model.LogRecord {
	return model.LogRecord{ID: id, Level: level, Message: msg, Timestamp: at}
}

func ids(records []model.LogRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func sameIDs(t *testing.T, got []model.LogRecord, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("got ids %v, want %v", g, want)
	}
	for i := range g {
		if g[i] != want[i] {
			t.Fatalf("got ids %v, want %v", g, want)
		}
	}
}

func TestExecuteExampleScenario(t *testing.T) {
	records := []model.LogRecord{
		rec("A", model.LevelError, "db down", t0),
		rec("B", model.LevelInfo, "ok", t0.Add(time.Hour)),
	}

	page, err := Execute(records, Query{Filter: Filter{Level: model.LevelError}})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, page.Records, "A")

	page, err = Execute(records, Query{Filter: Filter{Search: "ok"}})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, page.Records, "B")

	page, err = Execute(records, Query{SortBy: "timestamp", SortOrder: SortAsc, Page: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, page.Records, "A")
	want := Pagination{Page: 1, Limit: 1, Total: 2, TotalPages: 2}
	if page.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", page.Pagination, want)
	}
}

func TestExecuteDefaults(t *testing.T) {
	records := []model.LogRecord{
		rec("old", model.LevelInfo, "a", t0),
		rec("new", model.LevelInfo, "b", t0.Add(time.Minute)),
	}
	page, err := Execute(records, Query{})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, page.Records, "new", "old")
	if page.Pagination.Page != DefaultPage || page.Pagination.Limit != DefaultLimit {
		t.Errorf("defaults not applied: %+v", page.Pagination)
	}
}

func TestFilterConjunction(t *testing.T) {
	records := []model.LogRecord{
		{ID: "1", Level: model.LevelError, Message: "Payment FAILED", Service: "billing-api", ResourceID: "pod-1", Timestamp: t0},
		{ID: "2", Level: model.LevelError, Message: "payment failed", Service: "auth", ResourceID: "pod-2", Timestamp: t0.Add(time.Hour)},
		{ID: "3", Level: model.LevelInfo, Message: "payment failed", Service: "Billing-Worker", ResourceID: "pod-1", Timestamp: t0.Add(2 * time.Hour)},
		{ID: "4", Level: model.LevelError, Message: "timeout", Service: "billing-api", Timestamp: t0.Add(3 * time.Hour)},
		{ID: "5", Level: model.LevelError, Message: "payment failed", Timestamp: t0.Add(4 * time.Hour)},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"level", Filter{Level: model.LevelError}, []string{"1", "2", "4", "5"}},
		{"service substring ignores case", Filter{Service: "BILLING"}, []string{"1", "3", "4"}},
		{"resource substring", Filter{ResourceID: "POD-1"}, []string{"1", "3"}},
		{"search ignores case", Filter{Search: "payment"}, []string{"1", "2", "3", "5"}},
		{"start inclusive", Filter{StartDate: t0.Add(3 * time.Hour)}, []string{"4", "5"}},
		{"end inclusive", Filter{EndDate: t0.Add(time.Hour)}, []string{"1", "2"}},
		{"all clauses", Filter{
			Level:     model.LevelError,
			Service:   "billing",
			Search:    "payment",
			StartDate: t0,
			EndDate:   t0.Add(4 * time.Hour),
		}, []string{"1"}},
		{"query language", Filter{Query: "service:auth OR resource:pod-1"}, []string{"1", "2", "3"}},
		{"query combined with level", Filter{Level: model.LevelInfo, Query: `"failed"`}, []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(records, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			sameIDs(t, got, tt.want...)
		})
	}
}

func TestApplyInvalidQuery(t *testing.T) {
	_, err := Apply(nil, Filter{Query: "(level:error"})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSortStableAndDirection(t *testing.T) {
	records := []model.LogRecord{
		{ID: "a", Level: model.LevelWarn, Message: "m", Timestamp: t0},
		{ID: "b", Level: model.LevelError, Message: "m", Timestamp: t0},
		{ID: "c", Level: model.LevelWarn, Message: "m", Timestamp: t0.Add(time.Second)},
		{ID: "d", Level: model.LevelError, Message: "m", Timestamp: t0},
	}

	page, err := Execute(records, Query{SortBy: "level", SortOrder: SortAsc})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, page.Records, "b", "d", "a", "c")

	page, err = Execute(records, Query{SortBy: "level", SortOrder: SortDesc})
	if err != nil {
		t.Fatal(err)
	}
	// equal keys keep their input order in both directions
	sameIDs(t, page.Records, "a", "c", "b", "d")

	page, err = Execute(records, Query{SortBy: "timestamp", SortOrder: SortDesc})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, page.Records, "c", "a", "b", "d")
}

func TestSortByDurationAndMissingValues(t *testing.T) {
	d := func(v float64) *float64 { return &v }
	records := []model.LogRecord{
		{ID: "slow", Duration: d(900), Timestamp: t0},
		{ID: "none", Timestamp: t0},
		{ID: "fast", Duration: d(2.5), Timestamp: t0},
		{ID: "mid", Duration: d(10), Timestamp: t0},
	}
	page, err := Execute(records, Query{SortBy: "duration", SortOrder: SortAsc})
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, page.Records, "none", "fast", "mid", "slow")
}

func TestSortInvalidField(t *testing.T) {
	_, err := Execute(nil, Query{SortBy: "bogus"})
	if !errors.Is(err, ErrInvalidSortField) {
		t.Fatalf("expected ErrInvalidSortField, got %v", err)
	}
	if f, err := ParseSortField("svc"); err != nil || f != "service" {
		t.Errorf("ParseSortField(svc) = %q, %v", f, err)
	}
}

func TestPaginationLaw(t *testing.T) {
	for _, total := range []int{0, 1, 7, 10, 23} {
		records := make([]model.LogRecord, total)
		for i := range records {
			records[i] = rec(fmt.Sprintf("r%02d", i), model.LevelInfo, "m", t0.Add(time.Duration(i)*time.Minute))
		}
		full, err := Execute(records, Query{SortOrder: SortAsc, Limit: total + 1})
		if err != nil {
			t.Fatal(err)
		}

		for _, limit := range []int{1, 3, 5, 10} {
			first, err := Execute(records, Query{SortOrder: SortAsc, Page: 1, Limit: limit})
			if err != nil {
				t.Fatal(err)
			}
			wantPages := (total + limit - 1) / limit
			if first.Pagination.TotalPages != wantPages {
				t.Errorf("total=%d limit=%d: totalPages = %d, want %d", total, limit, first.Pagination.TotalPages, wantPages)
			}

			var joined []model.LogRecord
			for p := 1; p <= wantPages; p++ {
				page, err := Execute(records, Query{SortOrder: SortAsc, Page: p, Limit: limit})
				if err != nil {
					t.Fatal(err)
				}
				joined = append(joined, page.Records...)
			}
			sameIDs(t, joined, ids(full.Records)...)

			beyond, err := Execute(records, Query{SortOrder: SortAsc, Page: wantPages + 2, Limit: limit})
			if err != nil {
				t.Fatal(err)
			}
			if len(beyond.Records) != 0 {
				t.Errorf("total=%d limit=%d: out of range page returned %d records", total, limit, len(beyond.Records))
			}
		}
	}
}

func TestPaginationExtremes(t *testing.T) {
	records := make([]model.LogRecord, 5)
	for i := range records {
		records[i] = rec(fmt.Sprintf("r%d", i), model.LevelInfo, "m", t0.Add(time.Duration(i)*time.Minute))
	}

	tests := []struct {
		name      string
		page      int
		limit     int
		wantLen   int
		wantPages int
	}{
		{"max page", math.MaxInt, 2, 0, 3},
		{"max limit first page", 1, math.MaxInt, 5, 1},
		{"max limit second page", 2, math.MaxInt, 0, 1},
		{"product overflows", math.MaxInt / 2, 4, 0, 2},
		{"both max", math.MaxInt, math.MaxInt, 0, 1},
		{"last partial page", 3, 2, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Execute(records, Query{SortOrder: SortAsc, Page: tt.page, Limit: tt.limit})
			if err != nil {
				t.Fatal(err)
			}
			if len(page.Records) != tt.wantLen {
				t.Errorf("got %d records, want %d", len(page.Records), tt.wantLen)
			}
			if page.Pagination.TotalPages != tt.wantPages {
				t.Errorf("totalPages = %d, want %d", page.Pagination.TotalPages, tt.wantPages)
			}
			if page.Pagination.Page != tt.page || page.Pagination.Limit != tt.limit {
				t.Errorf("pagination echo = %+v", page.Pagination)
			}
		})
	}
}

func TestExecuteIdempotent(t *testing.T) {
	records := []model.LogRecord{
		rec("1", model.LevelInfo, "x", t0),
		rec("2", model.LevelInfo, "x", t0),
		rec("3", model.LevelError, "y", t0.Add(time.Second)),
	}
	q := Query{Filter: Filter{Search: "x"}, Limit: 1, Page: 2}
	a, err := Execute(records, q)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Execute(records, q)
	if err != nil {
		t.Fatal(err)
	}
	sameIDs(t, a.Records, ids(b.Records)...)
	if a.Pagination != b.Pagination {
		t.Errorf("pagination differs: %+v vs %+v", a.Pagination, b.Pagination)
	}
	sameIDs(t, records, "1", "2", "3")
}
