package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"shopfloor_backend/internal/adapters/storage"
	"shopfloor_backend/internal/jobs/domain"
)

// DefaultObjectKey is the snapshot object name inside the bucket.
const DefaultObjectKey = "jobs/snapshot.json"

// ObjectStore keeps the snapshot document as one object in a bucket.
type ObjectStore struct {
	storage storage.StorageService
	bucket  string
	key     string
}

// NewObjectStore creates a store writing key in bucket.
func NewObjectStore(svc storage.StorageService, bucket, key string) *ObjectStore {
	if key == "" {
		key = DefaultObjectKey
	}
	return &ObjectStore{storage: svc, bucket: bucket, key: key}
}

func (s *ObjectStore) Name() string { return "minio" }

func (s *ObjectStore) Load(ctx context.Context) ([]*domain.Job, error) {
	obj, err := s.storage.GetObject(ctx, s.bucket, s.key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return []*domain.Job{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read snapshot object: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *ObjectStore) Save(ctx context.Context, jobs []*domain.Job) error {
	data, err := encodeSnapshot(jobs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.storage.PutObject(ctx, s.bucket, s.key, "application/json", bytes.NewReader(data), int64(len(data)))
}

// Close is a no-op; the MinIO client holds no resources.
func (s *ObjectStore) Close() error { return nil }

var _ Store = (*ObjectStore)(nil)
