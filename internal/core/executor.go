package core

// executor.go runs one claimed job to exactly one terminal state.
//
// A job is claimed atomically in the JobStore, so a duplicate submission of
// the same id finds it already Processing and exits. Whatever happens during
// execution (row errors, decode failures, cancellation, watchdog expiry or a
// panic) ends in a single Finish call followed by a single history record.

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

// jobRun carries the mutable state of one execution.
type jobRun struct {
	job      Job
	rows     *RowProcessor
	progress Progress
	fileName string
}

func (r *jobRun) tenant() Tenant {
	return Tenant{OrganizationID: r.job.OrganizationID, RequestedBy: r.job.RequestedBy}
}

func (r *jobRun) currentProgress() Progress {
	if r.rows != nil {
		return r.rows.Progress()
	}
	return r.progress
}

// runJob is the pool's RunFunc.
func (s *Service) runJob(ctx context.Context, jobID string) {
	// Shutdown already interrupted the pool: leave the job Pending so the
	// next process fails it during recovery.
	if ctx.Err() != nil {
		return
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.track(jobID, cancel)
	defer s.untrack(jobID)

	job, err := s.jobs.Claim(ctx, jobID, s.now())
	if err != nil {
		s.payloads.drop(jobID)
		if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrJobNotFound) {
			s.logger.Debug("job not claimable", "job_id", jobID, "error", err)
			return
		}
		// The job stays Pending; startup recovery fails it.
		s.logger.Error("claim job", "job_id", jobID, "error", err)
		return
	}

	if s.opts.JobTimeout > 0 {
		var stop context.CancelFunc
		jobCtx, stop = context.WithTimeoutCause(jobCtx, s.opts.JobTimeout, ErrJobTimeout)
		defer stop()
	}

	log := s.logger.With(
		"job_id", job.ID,
		"organization_id", job.OrganizationID,
		"operation", job.OperationType,
		"entity_kind", job.EntityKind,
	)
	log.Info("job started")
	start := time.Now()

	run := &jobRun{job: job}
	runErr := s.execute(jobCtx, run)
	if runErr != nil && jobCtx.Err() != nil {
		if cause := context.Cause(jobCtx); cause != nil {
			runErr = cause
		}
	}

	finishCtx := context.WithoutCancel(ctx)
	outcome := s.outcome(finishCtx, run, runErr)
	done, ok := s.finish(finishCtx, job, StatusProcessing, outcome)
	if !ok {
		return
	}

	attrs := []any{
		"status", done.Status,
		"total_rows", done.TotalRows,
		"success", done.SuccessCount,
		"skipped", done.SkippedCount,
		"errors", done.ErrorCount,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if runErr != nil {
		log.Warn("job failed", append(attrs, "error", runErr)...)
	} else {
		log.Info("job completed", attrs...)
	}
}

// execute dispatches to the import or export path and converts panics into
// an ErrExecutionFault.
func (s *Service) execute(ctx context.Context, run *jobRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in job",
				"job_id", run.job.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrExecutionFault, r)
		}
	}()

	adapter, ok := s.registry.Get(run.job.EntityKind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, run.job.EntityKind)
	}

	switch run.job.OperationType {
	case OperationImport:
		return s.executeImport(ctx, run, adapter)
	case OperationExport:
		return s.executeExport(ctx, run, adapter)
	default:
		return fmt.Errorf("unknown operation type %q", run.job.OperationType)
	}
}

func (s *Service) executeImport(ctx context.Context, run *jobRun, adapter Adapter) error {
	u, ok := s.payloads.take(run.job.ID)
	if !ok {
		return fmt.Errorf("upload for job %s is no longer available", run.job.ID)
	}

	table, err := format.Decode(u.kind, u.data)
	if err != nil {
		return err
	}

	run.rows = &RowProcessor{
		Adapter:  adapter,
		Tenant:   run.tenant(),
		Strategy: run.job.DuplicateStrategy,
		Report:   NewErrorReportBuilder(),
		Interval: s.opts.ProgressInterval,
		OnProgress: func(p Progress) {
			s.saveProgress(ctx, run.job.ID, p)
		},
	}
	return run.rows.Process(ctx, table)
}

func (s *Service) executeExport(ctx context.Context, run *jobRun, adapter Adapter) error {
	var filters FilterCriteria
	if run.job.Filters != nil {
		filters = *run.job.Filters
	}

	formatter := &ExportFormatter{
		Adapter:  adapter,
		Tenant:   run.tenant(),
		Format:   run.job.Format,
		Interval: s.opts.ProgressInterval,
		OnProgress: func(p Progress) {
			run.progress = p
			s.saveProgress(ctx, run.job.ID, p)
		},
	}

	res, err := formatter.Render(ctx, filters)
	run.progress = Progress{TotalRows: res.Rows, ProcessedRows: res.Rows, SuccessCount: res.Rows}
	if err != nil {
		return err
	}
	if res.Rows == 0 {
		return nil
	}

	now := s.now().UTC()
	name := ExportFileName(run.job.EntityKind, run.job.Format, now)
	err = s.artifacts.Put(ctx, Artifact{
		Key:            run.job.ID,
		OrganizationID: run.job.OrganizationID,
		FileName:       name,
		ContentType:    res.ContentType,
		Bytes:          res.Bytes,
		CreatedAt:      now,
		ExpiresAt:      s.expiry(now),
	})
	if err != nil {
		return fmt.Errorf("store export: %w", err)
	}
	run.fileName = name
	return nil
}

func (s *Service) saveProgress(ctx context.Context, jobID string, p Progress) {
	if err := s.jobs.UpdateProgress(ctx, jobID, p); err != nil && ctx.Err() == nil {
		s.logger.Warn("save job progress", "job_id", jobID, "error", err)
	}
}

// outcome builds the terminal state. An import with row errors always gets
// an error report id, whether or not the job completed.
func (s *Service) outcome(ctx context.Context, run *jobRun, runErr error) Outcome {
	p := run.currentProgress()
	o := Outcome{
		Status:      StatusCompleted,
		Progress:    p,
		FileName:    run.fileName,
		CompletedAt: s.now(),
	}

	if run.job.OperationType == OperationImport && p.ErrorCount > 0 && run.rows != nil {
		o.ErrorReportID = s.storeErrorReport(ctx, run)
	}

	if runErr != nil {
		o.Status = StatusFailed
		o.Message = failureMessage(runErr)
		return o
	}

	switch {
	case run.job.OperationType == OperationExport && p.TotalRows == 0:
		o.Message = ErrNoExportData.Error()
	case run.job.OperationType == OperationExport:
		o.Message = fmt.Sprintf("exported %d rows", p.TotalRows)
	default:
		o.Message = fmt.Sprintf("processed %d rows: %d succeeded, %d skipped, %d failed",
			p.ProcessedRows, p.SuccessCount, p.SkippedCount, p.ErrorCount)
	}
	return o
}

// storeErrorReport renders and stores the report. The id is returned even if
// storage fails; downloading it then reports not found.
func (s *Service) storeErrorReport(ctx context.Context, run *jobRun) string {
	id := uuid.NewString()
	now := s.now().UTC()

	data, err := run.rows.Report.Render()
	if err == nil {
		err = s.artifacts.Put(ctx, Artifact{
			Key:            id,
			OrganizationID: run.job.OrganizationID,
			FileName:       ErrorReportFileName(run.job.EntityKind, run.job.ID),
			ContentType:    format.CSV.ContentType(),
			Bytes:          data,
			CreatedAt:      now,
			ExpiresAt:      s.expiry(now),
		})
	}
	if err != nil {
		s.logger.Error("store error report", "job_id", run.job.ID, "report_id", id, "error", err)
	}
	return id
}

func (s *Service) expiry(now time.Time) time.Time {
	if s.opts.ArtifactTTL <= 0 {
		return time.Time{}
	}
	return now.Add(s.opts.ArtifactTTL)
}

// finish performs the terminal transition and records history. It reports
// false when the transition was refused, in which case nothing is recorded.
func (s *Service) finish(ctx context.Context, job Job, from JobStatus, o Outcome) (Job, bool) {
	done, err := s.jobs.Finish(ctx, job.ID, from, o)
	if err != nil {
		s.logger.Error("finish job", "job_id", job.ID, "status", o.Status, "error", err)
		return Job{}, false
	}
	s.recordHistory(ctx, done)
	return done, true
}

func (s *Service) recordHistory(ctx context.Context, job Job) {
	entry := HistoryEntry{
		ID:             uuid.NewString(),
		OrganizationID: job.OrganizationID,
		OperationType:  job.OperationType,
		EntityKind:     job.EntityKind,
		FileName:       job.FileName,
		TotalRows:      job.TotalRows,
		SuccessCount:   job.SuccessCount,
		SkippedCount:   job.SkippedCount,
		ErrorCount:     job.ErrorCount,
		Status:         job.Status,
		Message:        job.Message,
		JobID:          job.ID,
		ErrorReportID:  job.ErrorReportID,
		CreatedAt:      s.now().UTC(),
		RequestedBy:    job.RequestedBy,
	}
	if job.OperationType == OperationExport {
		entry.Format = job.Format
	} else {
		entry.DuplicateStrategy = job.DuplicateStrategy
	}

	if err := s.history.Record(ctx, entry); err != nil {
		s.logger.Error("record job history", "job_id", job.ID, "error", err)
	}
}

// failureMessage turns a job error into the message stored on the job.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrJobCancelled):
		return ErrJobCancelled.Error()
	case errors.Is(err, ErrJobTimeout):
		return ErrJobTimeout.Error()
	case errors.Is(err, ErrJobInterrupted):
		return ErrJobInterrupted.Error()
	case errors.Is(err, ErrExecutionFault):
		return ErrExecutionFault.Error()
	}

	msg := MapError(err)
	if msg.Code == defaultMessage.Code || strings.HasPrefix(msg.Code, "DB") {
		return FormatUserError(err)
	}
	return err.Error()
}
