// Package events declares the job events the reconciler publishes: stage
// changes that drive worker notifications and snapshot writes that feed the
// sync status. The bus itself lives in platform/events.
package events

import (
	"shopfloor_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Production Floor Events
// =============================================================================

// JobStageChanged is published when the server cache accepts a job whose
// current stage differs from the cached one. New jobs report an empty From.
type JobStageChanged struct {
	BaseEvent
	JobID           string   `json:"jobId"`
	Code            string   `json:"code"`
	From            string   `json:"from,omitempty"`
	To              string   `json:"to"`
	AssignedWorkers []string `json:"assignedWorkers,omitempty"`
}

func (e JobStageChanged) EventName() string { return "jobs.stage.changed" }

// SnapshotPersisted is published after the job snapshot reached storage.
type SnapshotPersisted struct {
	BaseEvent
	Version  uint64 `json:"version"`
	JobCount int    `json:"jobCount"`
}

func (e SnapshotPersisted) EventName() string { return "jobs.snapshot.persisted" }
