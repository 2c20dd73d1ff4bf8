package domain

import (
	"encoding/json"
	"time"
)

// MergePatch applies a shallow field patch to a copy of job and stamps
// lastUpdated with now. Top-level fields present in the patch replace the
// job's fields wholesale; the job id cannot be changed. Histories may only
// grow, batches may not disappear, and a patch may not push a job past its
// quantity or completion invariants.
func MergePatch(job *Job, patch json.RawMessage, now time.Time) (*Job, error) {
	var updates map[string]json.RawMessage
	if err := json.Unmarshal(patch, &updates); err != nil || updates == nil {
		return nil, ErrMalformedPatch.Withf("patch for job %s must be a JSON object", job.ID)
	}
	if raw, ok := updates["id"]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || id != job.ID {
			return nil, ErrMalformedPatch.Withf("patch cannot change the id of job %s", job.ID)
		}
	}

	base, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range updates {
		fields[k] = v
	}
	stamp, err := json.Marshal(now)
	if err != nil {
		return nil, err
	}
	fields["lastUpdated"] = stamp

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var out Job
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, ErrMalformedPatch.Withf("patch for job %s: %v", job.ID, err)
	}
	out.Normalize()
	if err := out.Validate(); err != nil {
		return nil, ErrMalformedPatch.Withf("patch for job %s: %v", job.ID, err)
	}
	if err := checkAppendOnly(job, &out); err != nil {
		return nil, err
	}
	// a job that arrived out of bounds stays patchable
	if err := out.CheckInvariants(); err != nil && job.CheckInvariants() == nil {
		return nil, ErrMalformedPatch.Withf("patch for job %s: %v", job.ID, err)
	}
	return &out, nil
}

func checkAppendOnly(prev, next *Job) error {
	if !next.History.Extends(prev.History) {
		return ErrMalformedPatch.Withf("patch for job %s rewrites its history", prev.ID)
	}
	for _, old := range prev.Batches {
		b, ok := next.Batch(old.ID)
		if !ok {
			return ErrMalformedPatch.Withf("patch for job %s drops batch %s", prev.ID, old.ID)
		}
		if !b.History.Extends(old.History) {
			return ErrMalformedPatch.Withf("patch for job %s rewrites the history of batch %s", prev.ID, old.ID)
		}
	}
	return nil
}
