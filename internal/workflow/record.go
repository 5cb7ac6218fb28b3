package workflow

import (
	"context"

	"ispeak/internal/analysisapi"
	"ispeak/internal/jobstore"
	"ispeak/internal/logging"
	"ispeak/internal/segments"
	"ispeak/internal/services"
)

// record stores a newly accepted job. History is best effort: failures are
// logged and the attempt continues.
func (o *Orchestrator) record(ctx context.Context, jobID string, file File, meta analysisapi.Metadata, list []segments.Segment) {
	if o.recorder == nil {
		return
	}
	job := &jobstore.Job{
		JobID:       jobID,
		UserID:      meta.UserID,
		FileName:    file.Name,
		PatientID:   meta.PatientID,
		SessionDate: meta.Date,
		Duration:    meta.Duration,
		Segments:    list,
		Status:      jobstore.StatusActive,
	}
	if err := o.recorder.Record(ctx, job); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "job history record failed", "job_record",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "job cannot be resumed by id from history"),
		)
	}
}

// recordOutcome marks a recorded job completed (err == nil) or failed.
func (o *Orchestrator) recordOutcome(ctx context.Context, jobID string, err *services.Error) {
	if o.recorder == nil || jobID == "" {
		return
	}
	var recErr error
	if err == nil {
		recErr = o.recorder.Complete(ctx, jobID)
	} else {
		recErr = o.recorder.Fail(ctx, jobID, string(err.Code), err.Message)
	}
	if recErr != nil {
		logging.WithContext(ctx, o.logger).Debug("job history outcome update failed", logging.Error(recErr))
	}
}
