package domain

import (
	"strings"
	"time"
)

// JobWorkflow owns job-level transitions: creation, stage skip, stage QC,
// worker assignment and the dispatch chain.
type JobWorkflow struct {
	ledger  *Ledger
	batches *BatchLifecycle
}

// NewJobWorkflow creates a JobWorkflow recording into ledger.
func NewJobWorkflow(ledger *Ledger) *JobWorkflow {
	return &JobWorkflow{ledger: ledger, batches: NewBatchLifecycle(ledger)}
}

// Batches returns the batch rules sharing this workflow's ledger.
func (w *JobWorkflow) Batches() *BatchLifecycle { return w.batches }

// Ledger returns the ledger used for every append.
func (w *JobWorkflow) Ledger() *Ledger { return w.ledger }

// NewJobParams describes a job to create.
type NewJobParams struct {
	ID       string
	Customer string
	Code     string
	TotalQty int
	Stage    Stage
}

// NewJob builds a job at its entry stage with one batch covering totalQty.
func (w *JobWorkflow) NewJob(p NewJobParams, actor string) (*Job, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Customer) == "" || strings.TrimSpace(p.Code) == "" {
		return nil, ErrInvalidJob.Withf("customer and code are required")
	}
	if p.TotalQty < 1 {
		return nil, ErrInvalidQuantity.Withf("totalQty must be at least 1, got %d", p.TotalQty)
	}
	stage := p.Stage
	if stage == "" {
		stage = FirstStage()
	}
	if !stage.IsProduction() {
		return nil, ErrInvalidStage.Withf("%q is not a production stage", stage)
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = w.ledger.NewID()
	}

	now := w.ledger.Now()
	job := &Job{
		ID:             id,
		Customer:       strings.TrimSpace(p.Customer),
		Code:           strings.TrimSpace(p.Code),
		TotalQty:       p.TotalQty,
		QCStatus:       QCPending,
		SkippedStages:  []Stage{},
		StageStatus:    make(map[Stage]*StageStatus),
		DispatchStatus: DispatchPending,
		StartTime:      now,
		LastUpdated:    now,
		Batches:        []*Batch{},
	}
	job.enterStage(stage, now)
	w.record(job, stage, ActionCreate, actor, "job created", now)
	if _, err := w.batches.CreateInitialBatch(job, actor); err != nil {
		return nil, err
	}
	return job, nil
}

// SkipStage marks the job's current stage as skipped and advances to the
// next stage.
func (w *JobWorkflow) SkipStage(job *Job, reason, actor string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrMissingReason.Withf("skipping a stage requires a reason")
	}
	if err := requireActor(actor); err != nil {
		return err
	}
	if job.IsCompleted {
		return ErrJobCompleted.Withf("job %s is completed", job.ID)
	}
	next, ok := job.CurrentStage.Next()
	if !ok {
		return ErrInvalidStageTransition.Withf("job %s is at %s", job.ID, job.CurrentStage)
	}

	now := w.ledger.Now()
	from := job.CurrentStage
	ss := job.stageStatus(from)
	ss.Status = StageStateSkipped
	ss.SkipReason = reason
	ss.EndTime = timePtr(now)
	job.SkippedStages = append(job.SkippedStages, from)
	job.QCStatus = QCPending
	job.QCRejectionReason = ""
	job.enterStage(next, now)
	w.record(job, from, ActionSkip, actor, reason, now)
	job.LastUpdated = now
	return nil
}

// MarkReadyForQC submits the current stage for QC review.
func (w *JobWorkflow) MarkReadyForQC(job *Job, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if job.IsCompleted {
		return ErrJobCompleted.Withf("job %s is completed", job.ID)
	}
	if job.QCStatus == QCReadyForQC {
		return ErrInvalidQCTransition.Withf("job %s is already awaiting QC", job.ID)
	}

	now := w.ledger.Now()
	job.QCStatus = QCReadyForQC
	job.stageStatus(job.CurrentStage).QCStatus = QCReadyForQC
	w.record(job, job.CurrentStage, ActionComplete, actor, "ready for QC", now)
	job.LastUpdated = now
	return nil
}

// ApproveStageQC passes the current stage. The job advances to the next
// stage, or is completed when the current stage is the last one.
func (w *JobWorkflow) ApproveStageQC(job *Job, reviewer, notes string) error {
	if err := requireActor(reviewer); err != nil {
		return err
	}
	if job.QCStatus != QCReadyForQC {
		return ErrInvalidQCTransition.Withf("job %s is %s, not ReadyForQC", job.ID, job.QCStatus)
	}
	next, hasNext := job.CurrentStage.Next()
	if !hasNext {
		if ids := job.UnsettledBatches(); len(ids) > 0 {
			return ErrUnsettledBatches.Withf("job %s has unsettled batches", job.ID).WithDetails(ids)
		}
	}

	now := w.ledger.Now()
	from := job.CurrentStage
	ss := job.stageStatus(from)
	ss.Status = StageStateCompleted
	ss.QCStatus = QCApproved
	ss.QCReviewer = strings.TrimSpace(reviewer)
	ss.QCNotes = strings.TrimSpace(notes)
	ss.EndTime = timePtr(now)
	job.QCRejectionReason = ""

	if hasNext {
		job.QCStatus = QCPending
		job.enterStage(next, now)
	} else {
		job.QCStatus = QCApproved
		job.IsCompleted = true
		job.CompletedAt = timePtr(now)
	}
	w.record(job, from, ActionQcApprove, reviewer, ss.QCNotes, now)
	job.LastUpdated = now
	return nil
}

// RejectStageQC fails the current stage; the job stays there for rework.
func (w *JobWorkflow) RejectStageQC(job *Job, reviewer, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrMissingReason.Withf("rejecting QC requires a reason")
	}
	if err := requireActor(reviewer); err != nil {
		return err
	}
	if job.QCStatus != QCReadyForQC {
		return ErrInvalidQCTransition.Withf("job %s is %s, not ReadyForQC", job.ID, job.QCStatus)
	}

	now := w.ledger.Now()
	ss := job.stageStatus(job.CurrentStage)
	ss.QCStatus = QCRejected
	ss.QCReviewer = strings.TrimSpace(reviewer)
	ss.QCNotes = reason
	job.QCStatus = QCRejected
	job.QCRejectionReason = reason
	w.record(job, job.CurrentStage, ActionQcReject, reviewer, reason, now)
	job.LastUpdated = now
	return nil
}

// AssignWorkers sets the workers responsible for stage. Assignment is
// metadata on the stage record and is not audited.
func (w *JobWorkflow) AssignWorkers(job *Job, stage Stage, workers []string) error {
	if !stage.IsProduction() {
		return ErrInvalidStage.Withf("%q is not a production stage", stage)
	}
	seen := make(map[string]bool, len(workers))
	cleaned := make([]string, 0, len(workers))
	for _, worker := range workers {
		worker = strings.TrimSpace(worker)
		if worker == "" || seen[worker] {
			continue
		}
		seen[worker] = true
		cleaned = append(cleaned, worker)
	}
	job.stageStatus(stage).AssignedWorkers = cleaned
	job.LastUpdated = w.ledger.Now()
	return nil
}

func (w *JobWorkflow) record(job *Job, stage Stage, action HistoryAction, actor, detail string, at time.Time) {
	// Actor and action are validated before any mutation.
	_, _ = w.ledger.Append(&job.History, HistoryEvent{
		JobID:     job.ID,
		Stage:     stage,
		Action:    action,
		Timestamp: at,
		Actor:     actor,
		Detail:    detail,
	})
}
