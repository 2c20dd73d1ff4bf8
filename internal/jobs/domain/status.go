package domain

import "fmt"

// QCStatus is the job-level quality control status.
type QCStatus string

const (
	QCPending    QCStatus = "Pending"
	QCReadyForQC QCStatus = "ReadyForQC"
	QCApproved   QCStatus = "Approved"
	QCRejected   QCStatus = "Rejected"
)

// BatchStatus is the lifecycle status of a batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "Pending"
	BatchInProgress BatchStatus = "InProgress"
	BatchCompleted  BatchStatus = "Completed"
	BatchRejected   BatchStatus = "Rejected"
	BatchMoved      BatchStatus = "Moved"
	BatchOkQuality  BatchStatus = "OkQuality"
	BatchReturned   BatchStatus = "Returned"
	BatchScrapped   BatchStatus = "Scrapped"
)

// StageState is the per-stage progress recorded on a job.
type StageState string

const (
	StageStatePending    StageState = "Pending"
	StageStateInProgress StageState = "InProgress"
	StageStateCompleted  StageState = "Completed"
	StageStateSkipped    StageState = "Skipped"
)

// DispatchStatus tracks the post-shipment chain.
type DispatchStatus string

const (
	DispatchPending        DispatchStatus = "Pending"
	DispatchDispatched     DispatchStatus = "Dispatched"
	DispatchInvoicePending DispatchStatus = "InvoicePending"
	DispatchPaymentPending DispatchStatus = "PaymentPending"
	DispatchClosed         DispatchStatus = "Closed"
)

// HistoryAction is the kind of an audit event.
type HistoryAction string

const (
	ActionCreate        HistoryAction = "Create"
	ActionStart         HistoryAction = "Start"
	ActionPause         HistoryAction = "Pause"
	ActionComplete      HistoryAction = "Complete"
	ActionQcApprove     HistoryAction = "QcApprove"
	ActionQcReject      HistoryAction = "QcReject"
	ActionSkip          HistoryAction = "Skip"
	ActionDispatchReady HistoryAction = "DispatchReady"
	ActionDispatch      HistoryAction = "Dispatch"
)

var (
	qcStatuses       = []QCStatus{QCPending, QCReadyForQC, QCApproved, QCRejected}
	batchStatuses    = []BatchStatus{BatchPending, BatchInProgress, BatchCompleted, BatchRejected, BatchMoved, BatchOkQuality, BatchReturned, BatchScrapped}
	stageStates      = []StageState{StageStatePending, StageStateInProgress, StageStateCompleted, StageStateSkipped}
	dispatchStatuses = []DispatchStatus{DispatchPending, DispatchDispatched, DispatchInvoicePending, DispatchPaymentPending, DispatchClosed}
	historyActions   = []HistoryAction{ActionCreate, ActionStart, ActionPause, ActionComplete, ActionQcApprove, ActionQcReject, ActionSkip, ActionDispatchReady, ActionDispatch}
)

func oneOf[T ~string](v T, allowed []T) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

func parseEnum[T ~string](kind string, text []byte, allowed []T) (T, error) {
	v := T(text)
	if !oneOf(v, allowed) {
		return "", fmt.Errorf("unknown %s %q", kind, string(text))
	}
	return v, nil
}

func (s QCStatus) IsValid() bool       { return oneOf(s, qcStatuses) }
func (s BatchStatus) IsValid() bool    { return oneOf(s, batchStatuses) }
func (s StageState) IsValid() bool     { return oneOf(s, stageStates) }
func (s DispatchStatus) IsValid() bool { return oneOf(s, dispatchStatuses) }
func (a HistoryAction) IsValid() bool  { return oneOf(a, historyActions) }

func (s *QCStatus) UnmarshalText(text []byte) (err error) {
	*s, err = parseEnum("qc status", text, qcStatuses)
	return err
}

func (s *BatchStatus) UnmarshalText(text []byte) (err error) {
	*s, err = parseEnum("batch status", text, batchStatuses)
	return err
}

func (s *StageState) UnmarshalText(text []byte) (err error) {
	*s, err = parseEnum("stage state", text, stageStates)
	return err
}

func (s *DispatchStatus) UnmarshalText(text []byte) (err error) {
	*s, err = parseEnum("dispatch status", text, dispatchStatuses)
	return err
}

func (a *HistoryAction) UnmarshalText(text []byte) (err error) {
	*a, err = parseEnum("history action", text, historyActions)
	return err
}
