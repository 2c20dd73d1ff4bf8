package transport

import (
	"time"

	"shopfloor_backend/internal/jobs/domain"
)

// Jobs

type CreateJobRequest struct {
	ID       string `json:"id,omitempty" validate:"omitempty,max=100"`
	Customer string `json:"customer" validate:"required,notblank,max=200"`
	Code     string `json:"code" validate:"required,notblank,max=100"`
	TotalQty int    `json:"totalQty" validate:"required,min=1"`
	Stage    string `json:"stage,omitempty" validate:"omitempty,max=50"`
	Actor    string `json:"actor,omitempty" validate:"omitempty,max=100"`
}

type ListJobsRequest struct {
	Stage     string `form:"stage" validate:"omitempty,max=50"`
	Customer  string `form:"customer" validate:"omitempty,max=200"`
	Completed string `form:"completed" validate:"omitempty,oneof=true false"`
}

type JobListResponse struct {
	Items []*domain.Job `json:"items"`
	Total int           `json:"total"`
}

type HistoryResponse struct {
	JobID  string                `json:"jobId"`
	Events []domain.HistoryEvent `json:"events"`
}

type StagesResponse struct {
	Stages      []domain.Stage `json:"stages"`
	Checkpoints []domain.Stage `json:"checkpoints"`
}

// Actions

// ActorRequest is the body of actions that need nothing but an actor. The
// resolved caller identity takes precedence over the body.
type ActorRequest struct {
	Actor string `json:"actor,omitempty" validate:"omitempty,max=100"`
}

// ReasonRequest carries a free-text reason. Emptiness is checked by the
// workflow so the MISSING_REASON code reaches the client.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
	Actor  string `json:"actor,omitempty" validate:"omitempty,max=100"`
}

type ApproveQCRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=500"`
	Actor string `json:"actor,omitempty" validate:"omitempty,max=100"`
}

type AssignWorkersRequest struct {
	Stage   string   `json:"stage" validate:"required,max=50"`
	Workers []string `json:"workers" validate:"required,min=1,max=50,dive,notblank,max=100"`
}

// Batches

// SplitBatchRequest moves quantity units to the next stage. Range checks
// happen in the workflow so INVALID_QUANTITY is reported consistently.
type SplitBatchRequest struct {
	Quantity int    `json:"quantity"`
	Actor    string `json:"actor,omitempty" validate:"omitempty,max=100"`
}

type CustomerReturnRequest struct {
	OriginBatchID string `json:"originBatchId" validate:"required,max=100"`
	Quantity      int    `json:"quantity"`
	Reason        string `json:"reason" validate:"max=500"`
	OriginStage   string `json:"originStage,omitempty" validate:"omitempty,max=50"`
	Actor         string `json:"actor,omitempty" validate:"omitempty,max=100"`
}

type ResolveReturnRequest struct {
	Action string `json:"action" validate:"required,oneof=reprocess scrap"`
	Stage  string `json:"stage,omitempty" validate:"omitempty,max=50"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
	Actor  string `json:"actor,omitempty" validate:"omitempty,max=100"`
}

type SplitBatchResponse struct {
	Job      *domain.Job   `json:"job"`
	Moved    *domain.Batch `json:"moved"`
	Residual *domain.Batch `json:"residual,omitempty"`
}

// Dispatch

type DispatchReadyRequest struct {
	Vehicle        string `json:"vehicle" validate:"max=100"`
	Challan        string `json:"challan,omitempty" validate:"max=100"`
	DispatcherName string `json:"dispatcherName" validate:"max=100"`
	Actor          string `json:"actor,omitempty" validate:"omitempty,max=100"`
}

type InvoiceRequest struct {
	InvoiceNumber string  `json:"invoiceNumber" validate:"max=100"`
	Amount        float64 `json:"amount"`
	Actor         string  `json:"actor,omitempty" validate:"omitempty,max=100"`
}

// Sync

type SyncStatusResponse struct {
	Version          uint64     `json:"version"`
	PersistedVersion uint64     `json:"persistedVersion"`
	PersistedAt      *time.Time `json:"persistedAt,omitempty"`
	JobCount         int        `json:"jobCount"`
	Connections      int        `json:"connections"`
	Users            []string   `json:"users"`
}
