package engine

import (
	"errors"
	"sort"
	"time"

	"github.com/coffersTech/logvault/internal/model"
)

// ErrInvalidInterval is returned for a non-positive bucket width.
var ErrInvalidInterval = errors.New("histogram interval must be positive")

type HistogramPoint struct {
	Time  time.Time `json:"time"`
	Count int       `json:"count"`
}

// ComputeHistogram counts the records matching filter per time bucket.
// Buckets are aligned to multiples of interval since the Unix epoch and
// returned in ascending order; empty buckets are omitted.
func ComputeHistogram(records []model.LogRecord, filter Filter, interval time.Duration) ([]HistogramPoint, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	matched, err := Apply(records, filter)
	if err != nil {
		return nil, err
	}

	step := interval.Milliseconds()
	if step == 0 {
		step = 1
	}

	// Map to store bucket counts: bucket start (unix ms) -> count
	buckets := make(map[int64]int)
	for i := range matched {
		ts := matched[i].Timestamp.UnixMilli()
		bucket := floorDiv(ts, step) * step
		buckets[bucket]++
	}

	points := make([]HistogramPoint, 0, len(buckets))
	for t, c := range buckets {
		points = append(points, HistogramPoint{Time: time.UnixMilli(t).UTC(), Count: c})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})

	return points, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
