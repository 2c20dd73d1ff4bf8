package events

import (
	platformevents "shopfloor_backend/platform/events"
	"shopfloor_backend/platform/logger"
)

// InMemoryBus is the bus cmd/api shares between the reconciler, which
// publishes JobStageChanged and SnapshotPersisted, and the jobs module.
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus creates the process bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
