package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/logvault/internal/metrics"
	"github.com/coffersTech/logvault/internal/model"
)

const (
	filePrefix = "logs_"
	fileExt    = ".lvz"
)

// Source is the record set being archived.
type Source interface {
	ReadAll() ([]model.LogRecord, error)
}

// Archiver periodically snapshots a Source into a directory and purges
// snapshots older than the retention window. The live record set is never
// modified.
type Archiver struct {
	dir       string
	retention time.Duration
	src       Source
	writer    *Writer
	logger    *slog.Logger
	now       func() time.Time
}

func NewArchiver(dir string, retention time.Duration, src Source, logger *slog.Logger) (*Archiver, error) {
	w, err := NewWriter()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		dir:       dir,
		retention: retention,
		src:       src,
		writer:    w,
		logger:    logger.With("component", "archiver"),
		now:       time.Now,
	}, nil
}

// SnapshotName returns the file name used for a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return filePrefix + strconv.FormatInt(t.UnixMilli(), 10) + fileExt
}

// parseSnapshotName extracts the snapshot time from logs_<unixms>.lvz.
func parseSnapshotName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Snapshot writes the current record set and returns the file path.
func (a *Archiver) Snapshot() (string, error) {
	records, err := a.src.ReadAll()
	if err != nil {
		metrics.ArchiveSnapshots.WithLabelValues("error").Inc()
		return "", fmt.Errorf("archive: load records: %w", err)
	}

	path := filepath.Join(a.dir, SnapshotName(a.now()))
	if err := a.writer.WriteSnapshot(path, records); err != nil {
		metrics.ArchiveSnapshots.WithLabelValues("error").Inc()
		return "", fmt.Errorf("archive: write %s: %w", path, err)
	}

	metrics.ArchiveSnapshots.WithLabelValues("ok").Inc()
	a.logger.Info("snapshot written", "path", path, "records", len(records))
	return path, nil
}

// List returns the snapshot paths in the directory, oldest first.
func (a *Archiver) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type snap struct {
		path string
		at   time.Time
	}
	var snaps []snap
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		at, ok := parseSnapshotName(e.Name())
		if !ok {
			continue
		}
		snaps = append(snaps, snap{filepath.Join(a.dir, e.Name()), at})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].at.Before(snaps[j].at) })

	paths := make([]string, len(snaps))
	for i, s := range snaps {
		paths[i] = s.path
	}
	return paths, nil
}

// Purge removes snapshots taken before now-retention. A non-positive retention
// keeps everything. It returns the number of files removed.
func (a *Archiver) Purge() (int, error) {
	if a.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	threshold := a.now().Add(-a.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		at, ok := parseSnapshotName(e.Name())
		if !ok || !at.Before(threshold) {
			continue
		}
		path := filepath.Join(a.dir, e.Name())
		if err := os.Remove(path); err != nil {
			a.logger.Error("failed to delete expired snapshot", "path", path, "error", err)
			continue
		}
		a.logger.Info("expired snapshot deleted", "path", path)
		removed++
	}
	return removed, nil
}

// Run snapshots and purges every interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("archiver started", "dir", a.dir, "interval", interval, "retention", a.retention)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Snapshot(); err != nil {
				a.logger.Error("snapshot failed", "error", err)
			}
			if _, err := a.Purge(); err != nil {
				a.logger.Error("purge failed", "error", err)
			}
		}
	}
}
