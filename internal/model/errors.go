package model

import "fmt"

// ValidationError reports caller input that cannot be stored.
type ValidationError struct {
	// Index is the position inside a bulk batch, or -1 for a single record.
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("log at index %d: %s", e.Index, e.Reason)
	}
	return e.Reason
}

// AtIndex returns a copy of e positioned inside a batch.
func (e *ValidationError) AtIndex(i int) *ValidationError {
	c := *e
	c.Index = i
	return &c
}
