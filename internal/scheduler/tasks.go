package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskSnapshotPersist = "shopfloor.snapshot.persist"

// SnapshotPersistPayload records which cache version asked for the write.
// The handler always writes the newest snapshot, so the version is only
// informational.
type SnapshotPersistPayload struct {
	Version     uint64    `json:"version"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewSnapshotPersistTask(payload SnapshotPersistPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotPersist, data), nil
}

func ParseSnapshotPersistPayload(task *asynq.Task) (SnapshotPersistPayload, error) {
	var payload SnapshotPersistPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SnapshotPersistPayload{}, err
	}
	return payload, nil
}
