package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one recorded conversion batch.
type Run struct {
	ID             int64
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Archives       int
	ArchivesFailed int
	Files          int
	OriginalBytes  int64
	ConvertedBytes int64
}

// Duration returns the wall-clock length of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// BytesSaved returns the space reclaimed by the run.
func (r Run) BytesSaved() int64 {
	return r.OriginalBytes - r.ConvertedBytes
}

// Lifetime aggregates every recorded run.
type Lifetime struct {
	Runs           int
	Archives       int
	ArchivesFailed int
	Files          int
	OriginalBytes  int64
	ConvertedBytes int64
	FirstRun       time.Time
	LastRun        time.Time
}

// BytesSaved returns the space reclaimed across all recorded runs.
func (l Lifetime) BytesSaved() int64 {
	return l.OriginalBytes - l.ConvertedBytes
}

// ReductionPercent returns the lifetime size reduction as a percentage of
// the original bytes, or zero when nothing was recorded.
func (l Lifetime) ReductionPercent() float64 {
	if l.OriginalBytes <= 0 {
		return 0
	}
	return float64(l.BytesSaved()) / float64(l.OriginalBytes) * 100
}

// Recorder persists batch statistics. *Store implements it; batch runners
// hold the interface so statistics can be disabled with a nil value.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) (Run, error)
}

// Store persists run statistics in an SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

const (
	busyRetries      = 5
	busyInitialDelay = 10 * time.Millisecond
	busyMaxDelay     = 200 * time.Millisecond
)

// Open connects to the stats database at path, creating the file and schema
// when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("stats database path is empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create stats directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// RecordRun inserts one batch into the runs table and returns the stored
// row. A missing RunID is generated and timestamps are stored in UTC.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = now
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()

	res, err := s.execRetry(ctx,
		`INSERT INTO runs (
            run_id, started_at, finished_at,
            archives_processed, archives_failed, files_processed,
            original_bytes, converted_bytes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.StartedAt.Format(time.RFC3339Nano),
		run.FinishedAt.Format(time.RFC3339Nano),
		run.Archives,
		run.ArchivesFailed,
		run.Files,
		run.OriginalBytes,
		run.ConvertedBytes,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Run{}, fmt.Errorf("last insert id: %w", err)
	}
	run.ID = id
	return run, nil
}

// Lifetime aggregates every recorded run. An empty database yields the zero
// Lifetime without error.
func (s *Store) Lifetime(ctx context.Context) (Lifetime, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
        COUNT(1),
        COALESCE(SUM(archives_processed), 0),
        COALESCE(SUM(archives_failed), 0),
        COALESCE(SUM(files_processed), 0),
        COALESCE(SUM(original_bytes), 0),
        COALESCE(SUM(converted_bytes), 0),
        COALESCE((SELECT started_at FROM runs ORDER BY id ASC LIMIT 1), ''),
        COALESCE((SELECT finished_at FROM runs ORDER BY id DESC LIMIT 1), '')
    FROM runs`)

	var (
		life     Lifetime
		firstRaw string
		lastRaw  string
	)
	if err := row.Scan(
		&life.Runs,
		&life.Archives,
		&life.ArchivesFailed,
		&life.Files,
		&life.OriginalBytes,
		&life.ConvertedBytes,
		&firstRaw,
		&lastRaw,
	); err != nil {
		return Lifetime{}, fmt.Errorf("aggregate runs: %w", err)
	}

	if firstRaw != "" {
		first, err := time.Parse(time.RFC3339Nano, firstRaw)
		if err != nil {
			return Lifetime{}, fmt.Errorf("parse first run time: %w", err)
		}
		life.FirstRun = first
	}
	if lastRaw != "" {
		last, err := time.Parse(time.RFC3339Nano, lastRaw)
		if err != nil {
			return Lifetime{}, fmt.Errorf("parse last run time: %w", err)
		}
		life.LastRun = last
	}
	return life, nil
}

// RecentRuns returns up to limit runs, newest first. A non-positive limit
// defaults to ten.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
        id, run_id, started_at, finished_at,
        archives_processed, archives_failed, files_processed,
        original_bytes, converted_bytes
    FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			startRaw string
			endRaw   string
		)
		if err := rows.Scan(
			&run.ID,
			&run.RunID,
			&startRaw,
			&endRaw,
			&run.Archives,
			&run.ArchivesFailed,
			&run.Files,
			&run.OriginalBytes,
			&run.ConvertedBytes,
		); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startRaw); err != nil {
			return nil, fmt.Errorf("parse run %d started_at: %w", run.ID, err)
		}
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, endRaw); err != nil {
			return nil, fmt.Errorf("parse run %d finished_at: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// execRetry retries writes that lose the race for the database lock, which
// happens when a watch daemon and a CLI invocation share one stats file.
func (s *Store) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	delay := busyInitialDelay
	var (
		res     sql.Result
		execErr error
	)
	for attempt := 0; attempt < busyRetries; attempt++ {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		if execErr == nil || !isBusy(execErr) {
			return res, execErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next := delay * 2; next <= busyMaxDelay {
			delay = next
		}
	}
	return res, execErr
}
