package handler

import (
	"encoding/json"
	"net/http"

	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/service"
	"shopfloor_backend/internal/jobs/transport"
	"shopfloor_backend/platform/httpkit"
	"shopfloor_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for production jobs.
type Handler struct {
	svc    *service.Service
	val    *validator.Validator
	status StatusSource
}

// StatusSource reports sync and persistence state for GET /sync/status.
type StatusSource interface {
	SyncStatus() transport.SyncStatusResponse
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// New creates a new jobs handler.
func New(svc *service.Service, val *validator.Validator, status StatusSource) *Handler {
	return &Handler{svc: svc, val: val, status: status}
}

// bind decodes the JSON body into req and validates it. An empty body is
// accepted for requests whose fields are all optional.
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return false
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

// ListStages returns the pipeline.
// GET /api/v1/stages
func (h *Handler) ListStages(c *gin.Context) {
	httpkit.OK(c, h.svc.Stages())
}

// ListJobs lists cached jobs.
// GET /api/v1/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	var req transport.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.List(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetJob returns one job.
// GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// GetHistory returns the job's timeline.
// GET /api/v1/jobs/:id/history
func (h *Handler) GetHistory(c *gin.Context) {
	result, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateJob creates a job with its initial batch.
// POST /api/v1/jobs
func (h *Handler) CreateJob(c *gin.Context) {
	var req transport.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	job, err := h.svc.CreateJob(c.Request.Context(), req, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, job)
}

// PatchJob applies an incremental update.
// PATCH /api/v1/jobs/:id
func (h *Handler) PatchJob(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || !json.Valid(raw) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	job, err := h.svc.PatchJob(c.Request.Context(), c.Param("id"), raw, "")
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// PushSync reconciles a full job list.
// POST /api/v1/sync
func (h *Handler) PushSync(c *gin.Context) {
	var jobs []*domain.Job
	if err := c.ShouldBindJSON(&jobs); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.PushAll(c.Request.Context(), jobs, "")
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PullSync returns the whole cache.
// GET /api/v1/sync
func (h *Handler) PullSync(c *gin.Context) {
	httpkit.OK(c, h.svc.PullAll(c.Request.Context()))
}

// SyncStatus reports cache and persistence versions.
// GET /api/v1/sync/status
func (h *Handler) SyncStatus(c *gin.Context) {
	httpkit.OK(c, h.status.SyncStatus())
}

// Batch lifecycle

// SplitBatch moves part of a batch forward.
// POST /api/v1/jobs/:id/batches/:batchId/split
func (h *Handler) SplitBatch(c *gin.Context) {
	var req transport.SplitBatchRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.SplitBatch(c.Request.Context(), c.Param("id"), c.Param("batchId"), req.Quantity, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// StartBatch puts a batch in progress.
// POST /api/v1/jobs/:id/batches/:batchId/start
func (h *Handler) StartBatch(c *gin.Context) {
	var req transport.ActorRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.StartBatch(c.Request.Context(), c.Param("id"), c.Param("batchId"), httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// PauseBatch returns a batch to pending.
// POST /api/v1/jobs/:id/batches/:batchId/pause
func (h *Handler) PauseBatch(c *gin.Context) {
	var req transport.ActorRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.PauseBatch(c.Request.Context(), c.Param("id"), c.Param("batchId"), httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// RejectBatch rejects a batch.
// POST /api/v1/jobs/:id/batches/:batchId/reject
func (h *Handler) RejectBatch(c *gin.Context) {
	var req transport.ReasonRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RejectBatch(c.Request.Context(), c.Param("id"), c.Param("batchId"), req.Reason, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// ReprocessBatch sends a rejected batch back to work.
// POST /api/v1/jobs/:id/batches/:batchId/reprocess
func (h *Handler) ReprocessBatch(c *gin.Context) {
	var req transport.ActorRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.ReprocessBatch(c.Request.Context(), c.Param("id"), c.Param("batchId"), httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// ApproveBatchQC passes a completed batch.
// POST /api/v1/jobs/:id/batches/:batchId/qc/approve
func (h *Handler) ApproveBatchQC(c *gin.Context) {
	var req transport.ApproveQCRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.ApproveBatchQC(c.Request.Context(), c.Param("id"), c.Param("batchId"), httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// RejectBatchQC fails a completed batch.
// POST /api/v1/jobs/:id/batches/:batchId/qc/reject
func (h *Handler) RejectBatchQC(c *gin.Context) {
	var req transport.ReasonRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RejectBatchQC(c.Request.Context(), c.Param("id"), c.Param("batchId"), httpkit.ActorOr(c, req.Actor), req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// SkipBatchStage advances one batch past its stage.
// POST /api/v1/jobs/:id/batches/:batchId/skip
func (h *Handler) SkipBatchStage(c *gin.Context) {
	var req transport.ReasonRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.SkipBatchStage(c.Request.Context(), c.Param("id"), c.Param("batchId"), req.Reason, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// RecordReturn books a customer return.
// POST /api/v1/jobs/:id/returns
func (h *Handler) RecordReturn(c *gin.Context) {
	var req transport.CustomerReturnRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RecordCustomerReturn(c.Request.Context(), c.Param("id"), req, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, job)
}

// ResolveReturn reprocesses or scraps a returned batch.
// POST /api/v1/jobs/:id/returns/:batchId/resolve
func (h *Handler) ResolveReturn(c *gin.Context) {
	var req transport.ResolveReturnRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.ResolveReturn(c.Request.Context(), c.Param("id"), c.Param("batchId"), req, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// Job workflow

// SkipStage skips the job's current stage.
// POST /api/v1/jobs/:id/skip
func (h *Handler) SkipStage(c *gin.Context) {
	var req transport.ReasonRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.SkipStage(c.Request.Context(), c.Param("id"), req.Reason, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// MarkReadyForQC submits the current stage for review.
// POST /api/v1/jobs/:id/qc/ready
func (h *Handler) MarkReadyForQC(c *gin.Context) {
	var req transport.ActorRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.MarkReadyForQC(c.Request.Context(), c.Param("id"), httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// ApproveStageQC approves the current stage.
// POST /api/v1/jobs/:id/qc/approve
func (h *Handler) ApproveStageQC(c *gin.Context) {
	var req transport.ApproveQCRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.ApproveStageQC(c.Request.Context(), c.Param("id"), httpkit.ActorOr(c, req.Actor), req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// RejectStageQC rejects the current stage.
// POST /api/v1/jobs/:id/qc/reject
func (h *Handler) RejectStageQC(c *gin.Context) {
	var req transport.ReasonRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RejectStageQC(c.Request.Context(), c.Param("id"), httpkit.ActorOr(c, req.Actor), req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// AssignWorkers assigns workers to a stage.
// PUT /api/v1/jobs/:id/workers
func (h *Handler) AssignWorkers(c *gin.Context) {
	var req transport.AssignWorkersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	job, err := h.svc.AssignWorkers(c.Request.Context(), c.Param("id"), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// Dispatch chain

// SetDispatchReady records dispatch metadata.
// POST /api/v1/jobs/:id/dispatch/ready
func (h *Handler) SetDispatchReady(c *gin.Context) {
	var req transport.DispatchReadyRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.SetDispatchReady(c.Request.Context(), c.Param("id"), req, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// Dispatch marks the goods dispatched.
// POST /api/v1/jobs/:id/dispatch
func (h *Handler) Dispatch(c *gin.Context) {
	var req transport.ActorRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.Dispatch(c.Request.Context(), c.Param("id"), httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// RecordInvoice records the invoice.
// POST /api/v1/jobs/:id/dispatch/invoice
func (h *Handler) RecordInvoice(c *gin.Context) {
	var req transport.InvoiceRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RecordInvoice(c.Request.Context(), c.Param("id"), req, httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// RecordPayment records the payment.
// POST /api/v1/jobs/:id/dispatch/payment
func (h *Handler) RecordPayment(c *gin.Context) {
	var req transport.ActorRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RecordPayment(c.Request.Context(), c.Param("id"), httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

// CloseOrder closes the order.
// POST /api/v1/jobs/:id/dispatch/close
func (h *Handler) CloseOrder(c *gin.Context) {
	var req transport.ActorRequest
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.CloseOrder(c.Request.Context(), c.Param("id"), httpkit.ActorOr(c, req.Actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}
