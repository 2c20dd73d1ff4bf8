package handler

import (
	"encoding/json"

	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/realtime"
	"shopfloor_backend/internal/reconciler"
	"shopfloor_backend/platform/logger"
)

// SocketNotifier relays accepted cache changes to the connected clients.
// Creates and patches skip the connection they came from; full syncs reach
// everyone, the sender included, so the sender sees the reconciled list.
type SocketNotifier struct {
	registry *realtime.Registry
	log      *logger.Logger
}

var _ reconciler.Notifier = (*SocketNotifier)(nil)

// NewSocketNotifier creates a notifier over registry.
func NewSocketNotifier(registry *realtime.Registry, log *logger.Logger) *SocketNotifier {
	if log == nil {
		log = logger.Discard()
	}
	return &SocketNotifier{registry: registry, log: log}
}

func (n *SocketNotifier) JobCreated(job *domain.Job, origin string) {
	n.broadcast(realtime.EventJobNew, job, origin)
}

// JobPatched relays the patch exactly as it was received.
func (n *SocketNotifier) JobPatched(jobID string, patch json.RawMessage, origin string) {
	n.broadcast(realtime.EventJobUpdate, realtime.UpdatePayload{JobID: jobID, Updates: patch}, origin)
}

// JobReplaced sends the full job as the update body. Merging a whole job
// over a cached copy yields the job itself.
func (n *SocketNotifier) JobReplaced(job *domain.Job, origin string) {
	updates, err := json.Marshal(job)
	if err != nil {
		n.log.Error("failed to encode job update", "jobId", job.ID, "error", err)
		return
	}
	n.broadcast(realtime.EventJobUpdate, realtime.UpdatePayload{JobID: job.ID, Updates: updates}, origin)
}

func (n *SocketNotifier) SyncAll(jobs []*domain.Job, _ string) {
	n.broadcast(realtime.EventJobSyncAll, jobs, "")
}

func (n *SocketNotifier) broadcast(event string, payload interface{}, except string) {
	msg, err := realtime.NewMessage(event, payload)
	if err != nil {
		n.log.Error("failed to encode broadcast", "event", event, "error", err)
		return
	}
	n.registry.Broadcast(msg, except)
}
