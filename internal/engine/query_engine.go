package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/coffersTech/logvault/internal/model"
)

// ErrInvalidQuery wraps a query-language parse failure.
var ErrInvalidQuery = errors.New("invalid query syntax")

// Execute runs the list pipeline over the full record set:
// filter, then stable sort, then slice out the requested page.
// The input slice is not modified.
func Execute(records []model.LogRecord, q Query) (Page, error) {
	q = q.withDefaults()

	less, err := comparator(q.SortBy)
	if err != nil {
		return Page{}, err
	}

	matched, err := Apply(records, q.Filter)
	if err != nil {
		return Page{}, err
	}

	if q.SortOrder == SortAsc {
		sort.SliceStable(matched, func(i, j int) bool { return less(&matched[i], &matched[j]) })
	} else {
		sort.SliceStable(matched, func(i, j int) bool { return less(&matched[j], &matched[i]) })
	}

	return paginate(matched, q.Page, q.Limit), nil
}

// Apply returns the records that satisfy every clause of f, in input order.
func Apply(records []model.LogRecord, f Filter) ([]model.LogRecord, error) {
	node, err := ParseNanoQL(f.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	service := strings.ToLower(f.Service)
	resource := strings.ToLower(f.ResourceID)
	search := strings.ToLower(f.Search)

	result := make([]model.LogRecord, 0, len(records))
	for i := range records {
		rec := &records[i]

		if f.Level != "" && rec.Level != f.Level {
			continue
		}
		if service != "" && !strings.Contains(strings.ToLower(rec.Service), service) {
			continue
		}
		if resource != "" && !strings.Contains(strings.ToLower(rec.ResourceID), resource) {
			continue
		}
		if !f.StartDate.IsZero() && rec.Timestamp.Before(f.StartDate) {
			continue
		}
		if !f.EndDate.IsZero() && rec.Timestamp.After(f.EndDate) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(rec.Message), search) {
			continue
		}
		if !MatchNanoQL(node, rec) {
			continue
		}

		result = append(result, *rec)
	}
	return result, nil
}

// paginate multiplies page by limit only once the product is known to be at
// most total, so any positive page and limit is safe.
func paginate(records []model.LogRecord, page, limit int) Page {
	total := len(records)
	start := total
	if page-1 <= total/limit {
		start = min((page-1)*limit, total)
	}
	end := total
	if limit < total-start {
		end = start + limit
	}

	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}

	return Page{
		Records: records[start:end],
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}
