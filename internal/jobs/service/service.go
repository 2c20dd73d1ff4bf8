// Package service exposes the production workflow to transports. Every
// mutation runs inside the reconciler so it is serialized per job, broadcast
// and persisted like any client push.
package service

import (
	"context"
	"encoding/json"
	"strings"

	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/transport"
	"shopfloor_backend/internal/reconciler"
	"shopfloor_backend/platform/logger"
	"shopfloor_backend/platform/sanitize"
)

// Service runs workflow operations against the server cache.
type Service struct {
	rec *reconciler.Reconciler
	wf  *domain.JobWorkflow
	log *logger.Logger
}

// New creates a service. The workflow's ledger supplies ids and timestamps.
func New(rec *reconciler.Reconciler, wf *domain.JobWorkflow, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{rec: rec, wf: wf, log: log}
}

// Reads

// Get returns one job.
func (s *Service) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.rec.Get(jobID)
}

// List returns the cached jobs matching the filter, in cache order.
func (s *Service) List(ctx context.Context, req transport.ListJobsRequest) (transport.JobListResponse, error) {
	var stage domain.Stage
	if req.Stage != "" {
		stage = domain.Stage(req.Stage)
		if !stage.IsValid() {
			return transport.JobListResponse{}, domain.ErrInvalidStage.Withf("unknown stage %q", req.Stage)
		}
	}

	items := make([]*domain.Job, 0)
	for _, j := range s.rec.RequestSync() {
		if stage != "" && j.CurrentStage != stage && !hasBatchAt(j, stage) {
			continue
		}
		if req.Customer != "" && !strings.EqualFold(j.Customer, req.Customer) {
			continue
		}
		if req.Completed != "" && j.IsCompleted != (req.Completed == "true") {
			continue
		}
		items = append(items, j)
	}
	return transport.JobListResponse{Items: items, Total: len(items)}, nil
}

// History returns the job's merged job and batch timeline.
func (s *Service) History(ctx context.Context, jobID string) (transport.HistoryResponse, error) {
	job, err := s.rec.Get(jobID)
	if err != nil {
		return transport.HistoryResponse{}, err
	}
	return transport.HistoryResponse{JobID: job.ID, Events: s.wf.Ledger().Timeline(job)}, nil
}

// Stages returns the pipeline and checkpoints.
func (s *Service) Stages() transport.StagesResponse {
	return transport.StagesResponse{Stages: domain.Stages(), Checkpoints: domain.Checkpoints()}
}

// Sync

// CreateJob builds a new job with its initial batch and adds it to the cache.
func (s *Service) CreateJob(ctx context.Context, req transport.CreateJobRequest, actor string) (*domain.Job, error) {
	job, err := s.wf.NewJob(domain.NewJobParams{
		ID:       req.ID,
		Customer: sanitize.Text(req.Customer),
		Code:     sanitize.Text(req.Code),
		TotalQty: req.TotalQty,
		Stage:    domain.Stage(req.Stage),
	}, actor)
	if err != nil {
		return nil, err
	}
	created, err := s.rec.Insert(ctx, job, "")
	if err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).Info("job created", "jobId", created.ID, "code", created.Code, "totalQty", created.TotalQty)
	return created, nil
}

// PushJob accepts a complete job built by a client.
func (s *Service) PushJob(ctx context.Context, job *domain.Job, origin string) (*domain.Job, error) {
	return s.rec.CreateJob(ctx, job, origin)
}

// PatchJob applies an incremental update.
func (s *Service) PatchJob(ctx context.Context, jobID string, patch json.RawMessage, origin string) (*domain.Job, error) {
	return s.rec.ApplyIncrementalUpdate(ctx, jobID, patch, origin)
}

// PushAll reconciles a full job list.
func (s *Service) PushAll(ctx context.Context, jobs []*domain.Job, origin string) ([]*domain.Job, error) {
	for _, j := range jobs {
		if j == nil {
			return nil, domain.ErrInvalidJob.Withf("job list contains null")
		}
	}
	result, err := s.rec.ApplyFullSync(ctx, jobs, origin)
	if err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).Info("full sync applied", "pushed", len(jobs), "cached", len(result))
	return result, nil
}

// PullAll returns the whole cache.
func (s *Service) PullAll(ctx context.Context) []*domain.Job {
	return s.rec.RequestSync()
}

// Batch lifecycle

// SplitBatch moves quantity units of a batch to the next stage.
func (s *Service) SplitBatch(ctx context.Context, jobID, batchID string, quantity int, actor string) (transport.SplitBatchResponse, error) {
	var res domain.SplitResult
	job, err := s.rec.Mutate(ctx, jobID, "", func(j *domain.Job) error {
		var err error
		res, err = s.wf.Batches().Split(j, batchID, quantity, actor)
		return err
	})
	if err != nil {
		return transport.SplitBatchResponse{}, err
	}
	return transport.SplitBatchResponse{Job: job, Moved: res.Moved.Clone(), Residual: res.Residual.Clone()}, nil
}

// StartBatch puts a batch in progress.
func (s *Service) StartBatch(ctx context.Context, jobID, batchID, actor string) (*domain.Job, error) {
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().Start(j, batchID, actor)
	})
}

// PauseBatch returns an in-progress batch to pending.
func (s *Service) PauseBatch(ctx context.Context, jobID, batchID, actor string) (*domain.Job, error) {
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().Pause(j, batchID, actor)
	})
}

// RejectBatch rejects a batch on the shop floor.
func (s *Service) RejectBatch(ctx context.Context, jobID, batchID, reason, actor string) (*domain.Job, error) {
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().Reject(j, batchID, sanitize.Text(reason), actor)
	})
}

// ReprocessBatch sends a rejected batch back to work.
func (s *Service) ReprocessBatch(ctx context.Context, jobID, batchID, actor string) (*domain.Job, error) {
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().Reprocess(j, batchID, actor)
	})
}

// ApproveBatchQC passes a completed batch.
func (s *Service) ApproveBatchQC(ctx context.Context, jobID, batchID, reviewer string) (*domain.Job, error) {
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().ApproveQC(j, batchID, reviewer)
	})
}

// RejectBatchQC fails a completed batch.
func (s *Service) RejectBatchQC(ctx context.Context, jobID, batchID, reviewer, reason string) (*domain.Job, error) {
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().RejectQC(j, batchID, reviewer, sanitize.Text(reason))
	})
}

// SkipBatchStage advances one batch past its stage.
func (s *Service) SkipBatchStage(ctx context.Context, jobID, batchID, reason, actor string) (*domain.Job, error) {
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().SkipStage(j, batchID, sanitize.Text(reason), actor)
	})
}

// RecordCustomerReturn books returned goods as a new batch.
func (s *Service) RecordCustomerReturn(ctx context.Context, jobID string, req transport.CustomerReturnRequest, actor string) (*domain.Job, error) {
	ret := domain.CustomerReturn{
		OriginBatchID: req.OriginBatchID,
		Quantity:      req.Quantity,
		Reason:        sanitize.Text(req.Reason),
		OriginStage:   domain.Stage(req.OriginStage),
	}
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().RecordCustomerReturn(j, ret, actor)
	})
}

// ResolveReturn reprocesses or scraps a returned batch.
func (s *Service) ResolveReturn(ctx context.Context, jobID, batchID string, req transport.ResolveReturnRequest, actor string) (*domain.Job, error) {
	res := domain.ScrapFor(sanitize.Text(req.Reason))
	if req.Action == "reprocess" {
		res = domain.ReprocessAt(domain.Stage(req.Stage))
	}
	return s.batchOp(ctx, jobID, func(j *domain.Job) (*domain.Batch, error) {
		return s.wf.Batches().ResolveReturn(j, batchID, res, actor)
	})
}

// Job workflow

// SkipStage advances the whole job past its current stage.
func (s *Service) SkipStage(ctx context.Context, jobID, reason, actor string) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.SkipStage(j, sanitize.Text(reason), actor)
	})
}

// MarkReadyForQC submits the current stage for review.
func (s *Service) MarkReadyForQC(ctx context.Context, jobID, actor string) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.MarkReadyForQC(j, actor)
	})
}

// ApproveStageQC approves the current stage.
func (s *Service) ApproveStageQC(ctx context.Context, jobID, reviewer, notes string) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.ApproveStageQC(j, reviewer, sanitize.Text(notes))
	})
}

// RejectStageQC rejects the current stage.
func (s *Service) RejectStageQC(ctx context.Context, jobID, reviewer, reason string) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.RejectStageQC(j, reviewer, sanitize.Text(reason))
	})
}

// AssignWorkers records the workers responsible for a stage.
func (s *Service) AssignWorkers(ctx context.Context, jobID string, req transport.AssignWorkersRequest) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.AssignWorkers(j, domain.Stage(req.Stage), sanitize.Names(req.Workers))
	})
}

// Dispatch chain

// SetDispatchReady records vehicle and dispatcher details.
func (s *Service) SetDispatchReady(ctx context.Context, jobID string, req transport.DispatchReadyRequest, actor string) (*domain.Job, error) {
	info := domain.DispatchReady{
		Vehicle:        sanitize.Text(req.Vehicle),
		Challan:        sanitize.Text(req.Challan),
		DispatcherName: sanitize.Text(req.DispatcherName),
	}
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.SetDispatchReady(j, info, actor)
	})
}

// Dispatch marks the goods as dispatched.
func (s *Service) Dispatch(ctx context.Context, jobID, actor string) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.Dispatch(j, actor)
	})
}

// RecordInvoice records the invoice.
func (s *Service) RecordInvoice(ctx context.Context, jobID string, req transport.InvoiceRequest, actor string) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.RecordInvoice(j, sanitize.Text(req.InvoiceNumber), req.Amount, actor)
	})
}

// RecordPayment records the payment.
func (s *Service) RecordPayment(ctx context.Context, jobID, actor string) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.RecordPayment(j, actor)
	})
}

// CloseOrder closes the order.
func (s *Service) CloseOrder(ctx context.Context, jobID, actor string) (*domain.Job, error) {
	return s.jobOp(ctx, jobID, func(j *domain.Job) error {
		return s.wf.CloseOrder(j, actor)
	})
}

func (s *Service) jobOp(ctx context.Context, jobID string, fn func(j *domain.Job) error) (*domain.Job, error) {
	return s.rec.Mutate(ctx, jobID, "", fn)
}

func (s *Service) batchOp(ctx context.Context, jobID string, fn func(j *domain.Job) (*domain.Batch, error)) (*domain.Job, error) {
	return s.rec.Mutate(ctx, jobID, "", func(j *domain.Job) error {
		_, err := fn(j)
		return err
	})
}

func hasBatchAt(j *domain.Job, stage domain.Stage) bool {
	for _, b := range j.Batches {
		if b.Stage == stage {
			return true
		}
	}
	return false
}
