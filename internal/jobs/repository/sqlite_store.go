package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shopfloor_backend/internal/jobs/domain"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS production_jobs (
	id           TEXT PRIMARY KEY,
	position     INTEGER NOT NULL,
	document     TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	saved_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_production_jobs_position ON production_jobs(position);
`

// SQLiteStore keeps one row per job in an embedded database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Load(ctx context.Context) ([]*domain.Job, error) {
	var jobs []*domain.Job
	err := retryOnBusy(ctx, func() error {
		jobs = jobs[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT document FROM production_jobs ORDER BY position ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var doc string
			if err := rows.Scan(&doc); err != nil {
				return err
			}
			job, err := decodeJob([]byte(doc))
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		if errors.Is(err, ErrCorruptSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}

func (s *SQLiteStore) Save(ctx context.Context, jobs []*domain.Job) error {
	docs := make([][]byte, len(jobs))
	for i, j := range jobs {
		doc, err := encodeJob(j)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", j.ID, err)
		}
		docs[i] = doc
	}
	savedAt := s.now().Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM production_jobs`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO production_jobs (id, position, document, last_updated, saved_at)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, j := range jobs {
			if _, err := stmt.ExecContext(ctx, j.ID, i, string(docs[i]), j.LastUpdated.UTC().Format(time.RFC3339Nano), savedAt); err != nil {
				return fmt.Errorf("insert job %s: %w", j.ID, err)
			}
		}
		return tx.Commit()
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

var _ Store = (*SQLiteStore)(nil)
