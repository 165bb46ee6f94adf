package engine

import (
	"time"

	"github.com/coffersTech/logvault/internal/model"
)

// Recent activity windows. Each is measured back from the current instant and
// they overlap: a record in the last 24h is also counted in 7d and 30d.
const (
	Window24h = 24 * time.Hour
	Window7d  = 7 * Window24h
	Window30d = 30 * Window24h
)

// RecentActivity counts records per trailing window.
type RecentActivity struct {
	Last24h int `json:"last24h"`
	Last7d  int `json:"last7d"`
	Last30d int `json:"last30d"`
}

// Stats is the aggregate view served by the stats overview endpoint.
type Stats struct {
	Total          int            `json:"total"`
	ByLevel        map[string]int `json:"byLevel"`
	ByService      map[string]int `json:"byService"` // records without a service are excluded
	RecentActivity RecentActivity `json:"recentActivity"`
}

// ComputeStats aggregates records in a single pass relative to now.
func ComputeStats(records []model.LogRecord, now time.Time) Stats {
	stats := Stats{
		Total:     len(records),
		ByLevel:   make(map[string]int),
		ByService: make(map[string]int),
	}

	for i := range records {
		rec := &records[i]

		stats.ByLevel[string(rec.Level)]++
		if rec.Service != "" {
			stats.ByService[rec.Service]++
		}

		age := now.Sub(rec.Timestamp)
		if age <= Window24h {
			stats.RecentActivity.Last24h++
		}
		if age <= Window7d {
			stats.RecentActivity.Last7d++
		}
		if age <= Window30d {
			stats.RecentActivity.Last30d++
		}
	}

	return stats
}
