package engine

import (
	"errors"
	"time"

	"github.com/coffersTech/logvault/internal/model"
)

// ErrInvalidSortField is returned for a sortBy value that names no record field.
var ErrInvalidSortField = errors.New("invalid sort field")

type lessFunc func(a, b *model.LogRecord) bool

// ParseSortField resolves a sortBy value (aliases accepted) to its canonical name.
func ParseSortField(name string) (string, error) {
	if name == "" {
		return DefaultSortBy, nil
	}
	field := model.CanonicalField(name)
	if field == "" || field == "tags" {
		return "", ErrInvalidSortField
	}
	return field, nil
}

// comparator returns the ascending ordering for a field. Instants compare as
// instants, duration numerically, everything else as strings. Missing values
// order as the zero value.
func comparator(name string) (lessFunc, error) {
	field, err := ParseSortField(name)
	if err != nil {
		return nil, err
	}

	switch field {
	case "timestamp":
		return func(a, b *model.LogRecord) bool { return a.Timestamp.Before(b.Timestamp) }, nil
	case "updatedAt":
		return func(a, b *model.LogRecord) bool { return timeOrZero(a.UpdatedAt).Before(timeOrZero(b.UpdatedAt)) }, nil
	case "duration":
		return func(a, b *model.LogRecord) bool { return floatOrZero(a.Duration) < floatOrZero(b.Duration) }, nil
	default:
		return func(a, b *model.LogRecord) bool { return firstValue(a, field) < firstValue(b, field) }, nil
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func firstValue(r *model.LogRecord, field string) string {
	if v := r.FieldValues(field); len(v) > 0 {
		return v[0]
	}
	return ""
}
