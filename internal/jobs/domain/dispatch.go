package domain

import (
	"fmt"
	"strings"
)

// dispatchTransitions is the only legal successor of each dispatch status.
var dispatchTransitions = map[DispatchStatus]DispatchStatus{
	DispatchPending:        DispatchDispatched,
	DispatchDispatched:     DispatchInvoicePending,
	DispatchInvoicePending: DispatchPaymentPending,
	DispatchPaymentPending: DispatchClosed,
}

// NextDispatchStatus returns the status that may follow s.
func NextDispatchStatus(s DispatchStatus) (DispatchStatus, bool) {
	next, ok := dispatchTransitions[s]
	return next, ok
}

func checkDispatchStep(job *Job, to DispatchStatus) error {
	if next, ok := dispatchTransitions[job.DispatchStatus]; !ok || next != to {
		return ErrInvalidDispatchTransition.Withf("job %s cannot move from %s to %s", job.ID, job.DispatchStatus, to)
	}
	return nil
}

// DispatchReady is the metadata needed before goods leave the floor.
type DispatchReady struct {
	Vehicle        string
	Challan        string
	DispatcherName string
}

// SetDispatchReady records dispatch metadata. The dispatch status is not
// changed.
func (w *JobWorkflow) SetDispatchReady(job *Job, info DispatchReady, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if job.DispatchStatus != DispatchPending {
		return ErrInvalidDispatchTransition.Withf("job %s is already %s", job.ID, job.DispatchStatus)
	}
	vehicle := strings.TrimSpace(info.Vehicle)
	dispatcher := strings.TrimSpace(info.DispatcherName)
	if vehicle == "" || dispatcher == "" {
		return ErrIncompleteDispatchInfo.Withf("vehicle and dispatcher name are required")
	}

	now := w.ledger.Now()
	job.Dispatch.Vehicle = vehicle
	job.Dispatch.Challan = strings.TrimSpace(info.Challan)
	job.Dispatch.DispatcherName = dispatcher
	job.Dispatch.ReadyAt = timePtr(now)
	w.record(job, job.CurrentStage, ActionDispatchReady, actor, fmt.Sprintf("vehicle %s, dispatcher %s", vehicle, dispatcher), now)
	job.LastUpdated = now
	return nil
}

// Dispatch ships the job.
func (w *JobWorkflow) Dispatch(job *Job, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := checkDispatchStep(job, DispatchDispatched); err != nil {
		return err
	}
	if !job.Dispatch.IsReady() {
		return ErrIncompleteDispatchInfo.Withf("job %s has no dispatch-ready metadata", job.ID)
	}

	now := w.ledger.Now()
	job.DispatchStatus = DispatchDispatched
	job.Dispatch.ActualDispatchTime = timePtr(now)
	w.record(job, job.CurrentStage, ActionDispatch, actor, "dispatched", now)
	job.LastUpdated = now
	return nil
}

// RecordInvoice attaches the invoice to a dispatched job.
func (w *JobWorkflow) RecordInvoice(job *Job, invoiceNo string, amount float64, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := checkDispatchStep(job, DispatchInvoicePending); err != nil {
		return err
	}
	invoiceNo = strings.TrimSpace(invoiceNo)
	if invoiceNo == "" {
		return ErrIncompleteDispatchInfo.Withf("invoice number is required")
	}
	if amount < 0 {
		return ErrInvalidQuantity.Withf("invoice amount must not be negative")
	}

	now := w.ledger.Now()
	job.DispatchStatus = DispatchInvoicePending
	job.Dispatch.InvoiceNumber = invoiceNo
	job.Dispatch.InvoiceAmount = amount
	job.Dispatch.InvoiceDate = timePtr(now)
	w.record(job, job.CurrentStage, ActionDispatch, actor, fmt.Sprintf("invoice %s for %.2f", invoiceNo, amount), now)
	job.LastUpdated = now
	return nil
}

// RecordPayment marks the invoice paid, which allows the order to close.
func (w *JobWorkflow) RecordPayment(job *Job, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := checkDispatchStep(job, DispatchPaymentPending); err != nil {
		return err
	}

	now := w.ledger.Now()
	job.DispatchStatus = DispatchPaymentPending
	job.Dispatch.PaidAt = timePtr(now)
	w.record(job, job.CurrentStage, ActionDispatch, actor, "payment recorded for "+job.Dispatch.InvoiceNumber, now)
	job.LastUpdated = now
	return nil
}

// CloseOrder closes the order. Closed is terminal.
func (w *JobWorkflow) CloseOrder(job *Job, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := checkDispatchStep(job, DispatchClosed); err != nil {
		return err
	}

	now := w.ledger.Now()
	job.DispatchStatus = DispatchClosed
	job.Dispatch.ClosedDate = timePtr(now)
	w.record(job, job.CurrentStage, ActionDispatch, actor, "order closed", now)
	job.LastUpdated = now
	return nil
}
