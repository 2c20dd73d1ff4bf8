// Package repository persists the job snapshot. Every backend stores the
// same thing, the ordered Job array, and every backend treats missing data
// as an empty floor.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/platform/logger"
)

// ErrCorruptSnapshot is returned by Load when stored data cannot be decoded.
var ErrCorruptSnapshot = errors.New("job snapshot is corrupt")

// Store loads and saves the complete job list.
type Store interface {
	// Name identifies the backend in logs.
	Name() string
	// Load returns the stored jobs in order. Absent data yields an empty
	// slice and no error; unreadable data yields ErrCorruptSnapshot.
	Load(ctx context.Context) ([]*domain.Job, error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, jobs []*domain.Job) error
	Close() error
}

// LoadOrEmpty loads the snapshot and falls back to an empty cache when the
// stored data is corrupt. Other errors are returned.
func LoadOrEmpty(ctx context.Context, store Store, log *logger.Logger) ([]*domain.Job, error) {
	jobs, err := store.Load(ctx)
	if errors.Is(err, ErrCorruptSnapshot) {
		log.Error("job snapshot unreadable, starting empty", "driver", store.Name(), "error", err)
		return []*domain.Job{}, nil
	}
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}

// encodeSnapshot renders jobs as the JSON array document.
func encodeSnapshot(jobs []*domain.Job) ([]byte, error) {
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return json.MarshalIndent(jobs, "", "  ")
}

// decodeSnapshot parses the JSON array document. Empty input is an empty
// snapshot.
func decodeSnapshot(data []byte) ([]*domain.Job, error) {
	if len(data) == 0 {
		return []*domain.Job{}, nil
	}
	var jobs []*domain.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	for _, j := range jobs {
		j.Normalize()
		if err := j.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}

// encodeJob renders one job for row-per-job backends.
func encodeJob(job *domain.Job) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(data []byte) (*domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	job.Normalize()
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return &job, nil
}
