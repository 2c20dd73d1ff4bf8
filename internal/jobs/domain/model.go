// Package domain holds the production job model and the rules that move
// jobs and batches through the pipeline. Nothing here does I/O.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Job is one production order.
type Job struct {
	ID                    string                 `json:"id"`
	Customer              string                 `json:"customer"`
	Code                  string                 `json:"code"`
	TotalQty              int                    `json:"totalQty"`
	CurrentStage          Stage                  `json:"currentStage"`
	QCStatus              QCStatus               `json:"qcStatus"`
	QCRejectionReason     string                 `json:"qcRejectionReason,omitempty"`
	SkippedStages         []Stage                `json:"skippedStages"`
	StageStatus           map[Stage]*StageStatus `json:"stageStatus"`
	DispatchStatus        DispatchStatus         `json:"dispatchStatus"`
	Dispatch              DispatchInfo           `json:"dispatch"`
	StartTime             time.Time              `json:"startTime"`
	LastUpdated           time.Time              `json:"lastUpdated"`
	CurrentStageStartTime time.Time              `json:"currentStageStartTime"`
	IsCompleted           bool                   `json:"isCompleted"`
	CompletedAt           *time.Time             `json:"completedAt,omitempty"`
	Batches               []*Batch               `json:"batches"`
	History               History                `json:"history"`
}

// Batch is a sub-lot of a job moving through the pipeline on its own.
type Batch struct {
	ID                string      `json:"id"`
	JobID             string      `json:"jobId"`
	ParentID          string      `json:"parentId,omitempty"`
	Stage             Stage       `json:"stage"`
	Quantity          int         `json:"quantity"`
	Status            BatchStatus `json:"status"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
	RejectionReason   string      `json:"rejectionReason,omitempty"`
	ReprocessCount    int         `json:"reprocessCount"`
	ReturnOriginStage Stage       `json:"returnOriginStage,omitempty"`
	History           History     `json:"history"`
}

// StageStatus is the job's record for one stage. It is created the first
// time the job touches the stage and is never removed.
type StageStatus struct {
	Status          StageState `json:"status"`
	QCStatus        QCStatus   `json:"qcStatus,omitempty"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	AssignedWorkers []string   `json:"assignedWorkers,omitempty"`
	QCReviewer      string     `json:"qcReviewer,omitempty"`
	QCNotes         string     `json:"qcNotes,omitempty"`
	SkipReason      string     `json:"skipReason,omitempty"`
}

// DispatchInfo carries the metadata collected along the dispatch chain.
type DispatchInfo struct {
	Vehicle            string     `json:"vehicle,omitempty"`
	Challan            string     `json:"challan,omitempty"`
	DispatcherName     string     `json:"dispatcherName,omitempty"`
	ReadyAt            *time.Time `json:"readyAt,omitempty"`
	ActualDispatchTime *time.Time `json:"actualDispatchTime,omitempty"`
	InvoiceNumber      string     `json:"invoiceNumber,omitempty"`
	InvoiceAmount      float64    `json:"invoiceAmount,omitempty"`
	InvoiceDate        *time.Time `json:"invoiceDate,omitempty"`
	PaidAt             *time.Time `json:"paidAt,omitempty"`
	ClosedDate         *time.Time `json:"closedDate,omitempty"`
}

// IsReady reports whether the metadata needed to dispatch is present.
func (d DispatchInfo) IsReady() bool {
	return strings.TrimSpace(d.Vehicle) != "" && strings.TrimSpace(d.DispatcherName) != "" && d.ReadyAt != nil
}

// Batch returns the batch with the given id.
func (j *Job) Batch(batchID string) (*Batch, bool) {
	for _, b := range j.Batches {
		if b.ID == batchID {
			return b, true
		}
	}
	return nil, false
}

// IsRemedial reports whether b tracks returned goods rather than original
// production quantity.
func (b *Batch) IsRemedial() bool {
	return b.ReturnOriginStage != ""
}

// IsSettled reports whether b needs no further work before the job can be
// completed.
func (b *Batch) IsSettled() bool {
	switch b.Status {
	case BatchScrapped, BatchMoved:
		return true
	case BatchCompleted, BatchOkQuality:
		return b.Stage == StageDispatch
	default:
		return false
	}
}

// IsLive reports whether b holds units still moving through production.
func (b *Batch) IsLive() bool {
	switch b.Status {
	case BatchPending, BatchInProgress, BatchCompleted, BatchOkQuality, BatchMoved:
		return true
	default:
		return false
	}
}

// ProductionQty sums the quantities of live production batches. Rejected,
// returned and scrapped batches are not counted, and neither are remedial
// batches opened by customer returns: those units were already counted
// when they shipped.
func (j *Job) ProductionQty() int {
	total := 0
	for _, b := range j.Batches {
		if !b.IsLive() || b.IsRemedial() {
			continue
		}
		total += b.Quantity
	}
	return total
}

// UnsettledBatches returns the ids of batches that block completion.
func (j *Job) UnsettledBatches() []string {
	var ids []string
	for _, b := range j.Batches {
		if !b.IsSettled() {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// Normalize fills enum fields a client left empty with their initial
// values. Jobs pushed in minimal form must survive later patches, which
// round-trip the whole job through JSON.
func (j *Job) Normalize() {
	if j == nil {
		return
	}
	if j.CurrentStage == "" {
		j.CurrentStage = FirstStage()
	}
	if j.QCStatus == "" {
		j.QCStatus = QCPending
	}
	if j.DispatchStatus == "" {
		j.DispatchStatus = DispatchPending
	}
	for _, ss := range j.StageStatus {
		if ss != nil && ss.Status == "" {
			ss.Status = StageStatePending
		}
	}
	for _, b := range j.Batches {
		if b == nil {
			continue
		}
		if b.JobID == "" {
			b.JobID = j.ID
		}
		if b.Stage == "" {
			b.Stage = j.CurrentStage
		}
		if b.Status == "" {
			b.Status = BatchPending
		}
	}
}

// Validate checks the structural shape of a job received from a client or
// loaded from storage. Unknown enum values are rejected while decoding;
// empty ones are rejected here, so callers run Normalize first.
func (j *Job) Validate() error {
	if j == nil {
		return ErrInvalidJob.Withf("job is nil")
	}
	if strings.TrimSpace(j.ID) == "" {
		return ErrInvalidJob.Withf("job id is required")
	}
	if j.TotalQty < 0 {
		return ErrInvalidJob.Withf("job %s has negative totalQty", j.ID)
	}
	if !j.CurrentStage.IsProduction() {
		return ErrInvalidJob.Withf("job %s has stage %q outside the pipeline", j.ID, j.CurrentStage)
	}
	if !j.QCStatus.IsValid() || !j.DispatchStatus.IsValid() {
		return ErrInvalidJob.Withf("job %s has qc status %q and dispatch status %q", j.ID, j.QCStatus, j.DispatchStatus)
	}
	if err := j.History.validate(); err != nil {
		return ErrInvalidJob.Withf("job %s: %v", j.ID, err)
	}
	seen := make(map[string]bool, len(j.Batches))
	for i, b := range j.Batches {
		if b == nil {
			return ErrInvalidJob.Withf("job %s has a null batch at position %d", j.ID, i)
		}
		if strings.TrimSpace(b.ID) == "" {
			return ErrInvalidJob.Withf("job %s has a batch without id", j.ID)
		}
		if seen[b.ID] {
			return ErrInvalidJob.Withf("job %s has duplicate batch %s", j.ID, b.ID)
		}
		seen[b.ID] = true
		if b.Quantity < 0 {
			return ErrInvalidJob.Withf("batch %s has negative quantity", b.ID)
		}
		if !b.Stage.IsValid() || !b.Status.IsValid() {
			return ErrInvalidJob.Withf("batch %s has stage %q and status %q", b.ID, b.Stage, b.Status)
		}
		if err := b.History.validate(); err != nil {
			return ErrInvalidJob.Withf("batch %s: %v", b.ID, err)
		}
	}
	return nil
}

// CheckInvariants verifies the quantity and completion invariants.
func (j *Job) CheckInvariants() error {
	if qty := j.ProductionQty(); qty > j.TotalQty {
		return fmt.Errorf("job %s: batch quantity %d exceeds total %d", j.ID, qty, j.TotalQty)
	}
	if j.IsCompleted {
		if ids := j.UnsettledBatches(); len(ids) > 0 {
			return fmt.Errorf("job %s: completed with unsettled batches %v", j.ID, ids)
		}
	}
	for _, b := range j.Batches {
		if !b.Stage.IsValid() {
			return fmt.Errorf("job %s: batch %s has stage %q outside the catalog", j.ID, b.ID, b.Stage)
		}
	}
	return nil
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.SkippedStages = append([]Stage(nil), j.SkippedStages...)
	if j.SkippedStages != nil && cp.SkippedStages == nil {
		cp.SkippedStages = []Stage{}
	}
	if j.StageStatus != nil {
		cp.StageStatus = make(map[Stage]*StageStatus, len(j.StageStatus))
		for st, ss := range j.StageStatus {
			cp.StageStatus[st] = ss.clone()
		}
	}
	cp.Dispatch = j.Dispatch.clone()
	cp.CompletedAt = cloneTime(j.CompletedAt)
	if j.Batches != nil {
		cp.Batches = make([]*Batch, len(j.Batches))
		for i, b := range j.Batches {
			cp.Batches[i] = b.Clone()
		}
	}
	cp.History = j.History.clone()
	return &cp
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	cp := *b
	cp.History = b.History.clone()
	return &cp
}

func (s *StageStatus) clone() *StageStatus {
	if s == nil {
		return nil
	}
	cp := *s
	cp.StartTime = cloneTime(s.StartTime)
	cp.EndTime = cloneTime(s.EndTime)
	if s.AssignedWorkers != nil {
		cp.AssignedWorkers = append([]string{}, s.AssignedWorkers...)
	}
	return &cp
}

func (d DispatchInfo) clone() DispatchInfo {
	d.ReadyAt = cloneTime(d.ReadyAt)
	d.ActualDispatchTime = cloneTime(d.ActualDispatchTime)
	d.InvoiceDate = cloneTime(d.InvoiceDate)
	d.PaidAt = cloneTime(d.PaidAt)
	d.ClosedDate = cloneTime(d.ClosedDate)
	return d
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
