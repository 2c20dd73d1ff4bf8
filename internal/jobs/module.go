// Package jobs provides the production jobs bounded context module.
// This file wires the reconciler, the realtime hub and the REST handlers
// into one module and registers its routes and event handlers.
package jobs

import (
	"context"
	"sync"
	"time"

	"shopfloor_backend/internal/events"
	apphttp "shopfloor_backend/internal/http"
	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/handler"
	"shopfloor_backend/internal/jobs/service"
	"shopfloor_backend/internal/jobs/transport"
	"shopfloor_backend/internal/realtime"
	"shopfloor_backend/internal/reconciler"
	"shopfloor_backend/platform/logger"
	"shopfloor_backend/platform/validator"
)

// AssignedPayload is the body of job:assigned.
type AssignedPayload struct {
	JobID string `json:"jobId"`
	Code  string `json:"code"`
	Stage string `json:"stage"`
}

// Module is the jobs bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	hub     *realtime.Hub
	rec     *reconciler.Reconciler
	log     *logger.Logger

	mu          sync.RWMutex
	persisted   uint64
	persistedAt time.Time
}

// NewModule creates the jobs module. It installs the socket notifier on rec
// and the socket dispatcher on hub.
func NewModule(rec *reconciler.Reconciler, wf *domain.JobWorkflow, hub *realtime.Hub, val *validator.Validator, log *logger.Logger) *Module {
	if log == nil {
		log = logger.Discard()
	}

	svc := service.New(rec, wf, log)
	rec.SetNotifier(handler.NewSocketNotifier(hub.Registry(), log))
	hub.SetDispatcher(handler.NewSocketDispatcher(svc, hub.Registry(), log))

	m := &Module{
		service: svc,
		hub:     hub,
		rec:     rec,
		log:     log,
	}
	m.handler = handler.New(svc, val, m)
	return m
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "jobs"
}

// Service returns the jobs service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts the jobs, sync and realtime routes on V1.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	h := m.handler
	v1 := ctx.V1

	v1.GET("/ws", m.hub.ServeWS)
	v1.GET("/events", m.hub.ServeSSE)

	v1.GET("/stages", h.ListStages)

	syncGroup := v1.Group("/sync")
	syncGroup.GET("", h.PullSync)
	syncGroup.POST("", h.PushSync)
	syncGroup.GET("/status", h.SyncStatus)

	jobs := v1.Group("/jobs")
	jobs.GET("", h.ListJobs)
	jobs.POST("", h.CreateJob)
	jobs.GET("/:id", h.GetJob)
	jobs.PATCH("/:id", h.PatchJob)
	jobs.GET("/:id/history", h.GetHistory)

	jobs.POST("/:id/skip", h.SkipStage)
	jobs.POST("/:id/qc/ready", h.MarkReadyForQC)
	jobs.POST("/:id/qc/approve", h.ApproveStageQC)
	jobs.POST("/:id/qc/reject", h.RejectStageQC)
	jobs.PUT("/:id/workers", h.AssignWorkers)

	batches := jobs.Group("/:id/batches/:batchId")
	batches.POST("/split", h.SplitBatch)
	batches.POST("/start", h.StartBatch)
	batches.POST("/pause", h.PauseBatch)
	batches.POST("/reject", h.RejectBatch)
	batches.POST("/reprocess", h.ReprocessBatch)
	batches.POST("/qc/approve", h.ApproveBatchQC)
	batches.POST("/qc/reject", h.RejectBatchQC)
	batches.POST("/skip", h.SkipBatchStage)

	jobs.POST("/:id/returns", h.RecordReturn)
	jobs.POST("/:id/returns/:batchId/resolve", h.ResolveReturn)

	jobs.POST("/:id/dispatch/ready", h.SetDispatchReady)
	jobs.POST("/:id/dispatch", h.Dispatch)
	jobs.POST("/:id/dispatch/invoice", h.RecordInvoice)
	jobs.POST("/:id/dispatch/payment", h.RecordPayment)
	jobs.POST("/:id/dispatch/close", h.CloseOrder)
}

// RegisterHandlers subscribes to the job events on the event bus.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.JobStageChanged{}.EventName(), m)
	bus.Subscribe(events.SnapshotPersisted{}.EventName(), m)

	m.log.Info("jobs module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.JobStageChanged:
		m.handleJobStageChanged(ctx, e)
	case events.SnapshotPersisted:
		m.handleSnapshotPersisted(e)
	}
	return nil
}

func (m *Module) handleJobStageChanged(ctx context.Context, e events.JobStageChanged) {
	if len(e.AssignedWorkers) == 0 {
		return
	}
	msg, err := realtime.NewMessage(realtime.EventJobAssigned, AssignedPayload{JobID: e.JobID, Code: e.Code, Stage: e.To})
	if err != nil {
		m.log.WithContext(ctx).Error("failed to encode assignment", "jobId", e.JobID, "error", err)
		return
	}
	registry := m.hub.Registry()
	for _, worker := range e.AssignedWorkers {
		if registry.SendToUser(worker, msg) == 0 {
			m.log.WithContext(ctx).Debug("assigned worker not connected", "jobId", e.JobID, "worker", worker, "stage", e.To)
		}
	}
}

func (m *Module) handleSnapshotPersisted(e events.SnapshotPersisted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Version >= m.persisted {
		m.persisted = e.Version
		m.persistedAt = e.OccurredAt()
	}
}

// SyncStatus reports cache and persistence state.
func (m *Module) SyncStatus() transport.SyncStatusResponse {
	registry := m.hub.Registry()
	resp := transport.SyncStatusResponse{
		Version:     m.rec.Version(),
		JobCount:    m.rec.Len(),
		Connections: registry.Count(),
		Users:       registry.Users(),
	}

	m.mu.RLock()
	resp.PersistedVersion = m.persisted
	if !m.persistedAt.IsZero() {
		at := m.persistedAt
		resp.PersistedAt = &at
	}
	m.mu.RUnlock()
	return resp
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
