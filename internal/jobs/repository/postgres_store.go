package repository

import (
	"context"
	"fmt"
	"time"

	"shopfloor_backend/internal/jobs/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var productionJobColumns = []string{"id", "position", "document", "last_updated", "saved_at"}

// PostgresStore keeps one JSONB row per job. The table is created by the
// migrations in migrations/.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore wraps an open pool. The store owns the pool from then on.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Load(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document
		FROM production_jobs
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job, err := decodeJob(doc)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return jobs, nil
}

func (s *PostgresStore) Save(ctx context.Context, jobs []*domain.Job) error {
	rows, err := copyRows(jobs, s.now())
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM production_jobs`); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"production_jobs"}, productionJobColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy jobs: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// copyRows builds the COPY input in snapshot order.
func copyRows(jobs []*domain.Job, savedAt time.Time) ([][]any, error) {
	rows := make([][]any, 0, len(jobs))
	for i, j := range jobs {
		doc, err := encodeJob(j)
		if err != nil {
			return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
		}
		rows = append(rows, []any{j.ID, int32(i), doc, j.LastUpdated.UTC(), savedAt})
	}
	return rows, nil
}

var _ Store = (*PostgresStore)(nil)
