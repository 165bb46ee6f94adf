package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coffersTech/logvault/internal/engine"
	"github.com/coffersTech/logvault/internal/model"
	"github.com/google/uuid"
)

// BulkResult reports the outcome of BulkInsert.
type BulkResult struct {
	Inserted int `json:"inserted"`
	Total    int `json:"total"`
}

// RestoreResult reports the outcome of Restore.
type RestoreResult struct {
	Restored int `json:"restored"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// Store owns the JSON file holding the whole record set.
// Every call re-reads the file; mutations rewrite it in full.
// A Store serializes its own read-modify-write cycles, but two Stores (or two
// processes) pointed at the same file can still lose updates.
type Store struct {
	path  string
	mu    sync.RWMutex
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and stats windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how record ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates a store for the JSON file at path. The file is created lazily on
// the first write.
func New(path string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	s := &Store{
		path:  abs,
		now:   model.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the absolute path of the backing file.
func (s *Store) Path() string {
	return s.path
}

// ReadAll loads the persisted record set. A missing file is an empty set.
func (s *Store) ReadAll() ([]model.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readLocked()
}

// WriteAll replaces the persisted record set.
func (s *Store) WriteAll(records []model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(records)
}

func (s *Store) readLocked() ([]model.LogRecord, error) {
	defer observe("read")()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.LogRecord{}, nil
		}
		return nil, &ReadError{Path: s.path, Err: err}
	}

	records := []model.LogRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &ReadError{Path: s.path, Err: err}
	}
	if records == nil {
		records = []model.LogRecord{}
	}
	return records, nil
}

// writeLocked writes to a sibling temp file and renames it over the target,
// so readers never observe a half-written array.
func (s *Store) writeLocked(records []model.LogRecord) error {
	defer observe("write")()

	if records == nil {
		records = []model.LogRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return &WriteError{Path: s.path, Err: err}
	}

	recordCount.Set(float64(len(records)))
	return nil
}

// Insert assigns a fresh id and the current timestamp to in and appends it.
// Input validation is the caller's job.
func (s *Store) Insert(in model.LogInput) (model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return model.LogRecord{}, err
	}

	rec := model.NewRecord(s.newID(), s.now(), in)
	records = append(records, rec)

	if err := s.writeLocked(records); err != nil {
		return model.LogRecord{}, err
	}
	return rec, nil
}

// BulkInsert appends many records in a single read-modify-write cycle.
func (s *Store) BulkInsert(inputs []model.LogInput) (BulkResult, []model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return BulkResult{}, nil, err
	}

	now := s.now()
	added := make([]model.LogRecord, len(inputs))
	for i, in := range inputs {
		added[i] = model.NewRecord(s.newID(), now, in)
	}
	records = append(records, added...)

	if err := s.writeLocked(records); err != nil {
		return BulkResult{}, nil, err
	}
	return BulkResult{Inserted: len(added), Total: len(records)}, added, nil
}

// GetByID returns the record with the given id.
func (s *Store) GetByID(id string) (model.LogRecord, error) {
	records, err := s.ReadAll()
	if err != nil {
		return model.LogRecord{}, err
	}
	if i := indexOf(records, id); i >= 0 {
		return records[i], nil
	}
	return model.LogRecord{}, ErrNotFound
}

// Update merges the supplied fields into the record and stamps updatedAt.
// id and timestamp are never changed.
func (s *Store) Update(id string, patch model.LogPatch) (model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return model.LogRecord{}, err
	}

	i := indexOf(records, id)
	if i < 0 {
		return model.LogRecord{}, ErrNotFound
	}

	patch.ApplyTo(&records[i])
	updatedAt := s.now()
	records[i].UpdatedAt = &updatedAt

	if err := s.writeLocked(records); err != nil {
		return model.LogRecord{}, err
	}
	return records[i], nil
}

// Delete removes the record and returns it.
func (s *Store) Delete(id string) (model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return model.LogRecord{}, err
	}

	i := indexOf(records, id)
	if i < 0 {
		return model.LogRecord{}, ErrNotFound
	}

	removed := records[i]
	records = append(records[:i], records[i+1:]...)

	if err := s.writeLocked(records); err != nil {
		return model.LogRecord{}, err
	}
	return removed, nil
}

// Query loads the record set and runs the list pipeline over it.
func (s *Store) Query(q engine.Query) (engine.Page, error) {
	records, err := s.ReadAll()
	if err != nil {
		return engine.Page{}, err
	}
	return engine.Execute(records, q)
}

// Stats aggregates the record set relative to the store clock.
func (s *Store) Stats() (engine.Stats, error) {
	records, err := s.ReadAll()
	if err != nil {
		return engine.Stats{}, err
	}
	return engine.ComputeStats(records, s.now()), nil
}

// Histogram buckets the records matching filter by interval.
func (s *Store) Histogram(filter engine.Filter, interval time.Duration) ([]engine.HistogramPoint, error) {
	records, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	return engine.ComputeHistogram(records, filter, interval)
}

// Count returns the number of persisted records.
func (s *Store) Count() (int, error) {
	records, err := s.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Restore merges previously exported records, keeping their ids and timestamps.
// Records whose id already exists are skipped.
func (s *Store) Restore(incoming []model.LogRecord) (RestoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return RestoreResult{}, err
	}

	seen := make(map[string]struct{}, len(records)+len(incoming))
	for _, r := range records {
		seen[r.ID] = struct{}{}
	}

	var result RestoreResult
	for _, r := range incoming {
		if _, ok := seen[r.ID]; ok || r.ID == "" {
			result.Skipped++
			continue
		}
		seen[r.ID] = struct{}{}
		records = append(records, r)
		result.Restored++
	}

	if result.Restored > 0 {
		if err := s.writeLocked(records); err != nil {
			return RestoreResult{}, err
		}
	}
	result.Total = len(records)
	return result, nil
}

func indexOf(records []model.LogRecord, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
