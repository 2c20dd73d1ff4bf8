package domain

import "shopfloor_backend/platform/apperr"

// Sentinel errors returned by workflow operations. Compare with errors.Is;
// returned values may carry a more specific message.
var (
	ErrInvalidQuantity           = apperr.Coded(apperr.KindValidation, "INVALID_QUANTITY", "quantity out of range")
	ErrMissingReason             = apperr.Coded(apperr.KindValidation, "MISSING_REASON", "a reason is required")
	ErrIncompleteDispatchInfo    = apperr.Coded(apperr.KindValidation, "INCOMPLETE_DISPATCH_INFO", "dispatch information is incomplete")
	ErrInvalidHistoryEvent       = apperr.Coded(apperr.KindValidation, "INVALID_HISTORY_EVENT", "history event requires an action and an actor")
	ErrInvalidJob                = apperr.Coded(apperr.KindValidation, "INVALID_JOB", "job is invalid")
	ErrInvalidStage              = apperr.Coded(apperr.KindValidation, "INVALID_STAGE", "stage is not a production stage")
	ErrInvalidDispatchTransition = apperr.Coded(apperr.KindConflict, "INVALID_DISPATCH_TRANSITION", "dispatch step called out of order")
	ErrInvalidBatchTransition    = apperr.Coded(apperr.KindConflict, "INVALID_BATCH_TRANSITION", "batch status does not allow this operation")
	ErrInvalidQCTransition       = apperr.Coded(apperr.KindConflict, "INVALID_QC_TRANSITION", "job QC status does not allow this operation")
	ErrInvalidStageTransition    = apperr.Coded(apperr.KindConflict, "INVALID_STAGE_TRANSITION", "no stage follows the current stage")
	ErrUnsettledBatches          = apperr.Coded(apperr.KindConflict, "UNSETTLED_BATCHES", "job still has unsettled batches")
	ErrJobCompleted              = apperr.Coded(apperr.KindConflict, "JOB_COMPLETED", "job is already completed")
	ErrJobExists                 = apperr.Coded(apperr.KindConflict, "JOB_EXISTS", "a job with this id already exists")
	ErrUnknownJob                = apperr.Coded(apperr.KindNotFound, "UNKNOWN_JOB", "job not found")
	ErrUnknownBatch              = apperr.Coded(apperr.KindNotFound, "UNKNOWN_BATCH", "batch not found")
	ErrMalformedPatch            = apperr.Coded(apperr.KindBadRequest, "MALFORMED_PATCH", "patch could not be applied")
)
