package engine

import (
	"time"

	"github.com/coffersTech/logvault/internal/model"
)

// Filter defines criteria for log retrieval. Zero-valued clauses are ignored;
// a record must satisfy every clause that is set.
type Filter struct {
	Level      model.Level `json:"level,omitempty"`
	Service    string      `json:"service,omitempty"`    // case-insensitive substring
	ResourceID string      `json:"resourceId,omitempty"` // case-insensitive substring
	StartDate  time.Time   `json:"startDate,omitempty"`  // inclusive
	EndDate    time.Time   `json:"endDate,omitempty"`    // inclusive
	Search     string      `json:"search,omitempty"`     // case-insensitive substring of message
	Query      string      `json:"q,omitempty"`          // query language expression
}

// SortOrder is the direction of the sort step.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultSortBy = "timestamp"
	DefaultPage   = 1
	DefaultLimit  = 50
)

// Query is a full list request: filter, sort and page selection.
type Query struct {
	Filter
	SortBy    string    `json:"sortBy,omitempty"`
	SortOrder SortOrder `json:"sortOrder,omitempty"`
	Page      int       `json:"page,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// Pagination describes the page returned by Execute.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is one slice of the filtered and sorted record set.
type Page struct {
	Records    []model.LogRecord `json:"data"`
	Pagination Pagination        `json:"pagination"`
}

// withDefaults fills unset or out-of-range values.
func (q Query) withDefaults() Query {
	if q.SortBy == "" {
		q.SortBy = DefaultSortBy
	}
	if q.SortOrder != SortAsc {
		q.SortOrder = SortDesc
	}
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	return q
}
