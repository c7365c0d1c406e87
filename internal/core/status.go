package core

import (
	"context"
	"errors"
	"fmt"
)

// DefaultJobListLimit bounds ListJobs when the caller passes no limit.
const DefaultJobListLimit = 50

// GetStatus returns a snapshot of a job owned by the tenant.
// Foreign and unknown jobs are both ErrJobNotFound.
func (s *Service) GetStatus(ctx context.Context, tenant Tenant, jobID string) (Job, error) {
	if !tenant.Valid() {
		return Job{}, ErrMissingTenant
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.OrganizationID != tenant.OrganizationID {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns the tenant's most recent jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, tenant Tenant, limit int) ([]Job, error) {
	if !tenant.Valid() {
		return nil, ErrMissingTenant
	}
	if limit <= 0 || limit > DefaultJobListLimit {
		limit = DefaultJobListLimit
	}
	return s.jobs.List(ctx, tenant.OrganizationID, limit)
}

// CancelJob stops a job. A Pending job is failed immediately; a Processing
// job has its context cancelled and is failed by its worker. Finished jobs
// yield ErrInvalidTransition.
func (s *Service) CancelJob(ctx context.Context, tenant Tenant, jobID string) (Job, error) {
	job, err := s.GetStatus(ctx, tenant, jobID)
	if err != nil {
		return Job{}, err
	}

	if job.Status == StatusPending {
		done, ok := s.finish(ctx, job, StatusPending, Outcome{
			Status:      StatusFailed,
			Message:     ErrJobCancelled.Error(),
			CompletedAt: s.now(),
		})
		if ok {
			s.payloads.drop(jobID)
			s.logger.Info("pending job cancelled", "job_id", jobID, "organization_id", tenant.OrganizationID)
			return done, nil
		}
		// Claimed in the meantime.
		if job, err = s.jobs.Get(ctx, jobID); err != nil {
			return Job{}, err
		}
	}

	if job.Status == StatusProcessing {
		if !s.cancelRunning(jobID) {
			return job, fmt.Errorf("%w: job is not running in this process", ErrInvalidTransition)
		}
		s.logger.Info("running job cancelled", "job_id", jobID, "organization_id", tenant.OrganizationID)
		return job, nil
	}

	return job, fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
}

// DownloadErrorReport returns an import error report owned by the tenant.
func (s *Service) DownloadErrorReport(ctx context.Context, tenant Tenant, reportID string) (Download, error) {
	if !tenant.Valid() {
		return Download{}, ErrMissingTenant
	}
	return s.download(ctx, tenant, reportID)
}

// DownloadExport returns the rendered export of a completed job. A job that
// matched no rows yields ErrNoExportData.
func (s *Service) DownloadExport(ctx context.Context, tenant Tenant, jobID string) (Download, error) {
	job, err := s.GetStatus(ctx, tenant, jobID)
	if err != nil {
		return Download{}, err
	}
	if job.OperationType != OperationExport {
		return Download{}, ErrJobNotFound
	}

	switch job.Status {
	case StatusPending, StatusProcessing:
		return Download{}, ErrExportNotReady
	case StatusFailed:
		return Download{}, ErrArtifactNotFound
	}
	if job.TotalRows == 0 {
		return Download{}, ErrNoExportData
	}
	return s.download(ctx, tenant, jobID)
}

func (s *Service) download(ctx context.Context, tenant Tenant, key string) (Download, error) {
	a, err := s.artifacts.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrArtifactNotFound) {
			s.logger.Error("load artifact", "key", key, "error", err)
		}
		return Download{}, ErrArtifactNotFound
	}
	if a.OrganizationID != tenant.OrganizationID || a.Expired(s.now()) {
		return Download{}, ErrArtifactNotFound
	}
	return Download{FileName: a.FileName, ContentType: a.ContentType, Bytes: a.Bytes}, nil
}

// ListHistory returns one page of the tenant's history, newest first. A nil
// operation type lists imports and exports together.
func (s *Service) ListHistory(ctx context.Context, tenant Tenant, op *OperationType, kind EntityKind, page, pageSize int) (HistoryPage, error) {
	if !tenant.Valid() {
		return HistoryPage{}, ErrMissingTenant
	}
	q := HistoryQuery{
		OrganizationID: tenant.OrganizationID,
		OperationType:  op,
		EntityKind:     kind,
		Page:           page,
		PageSize:       pageSize,
	}.Normalize(s.opts.HistoryPageSizeMax)

	return s.history.List(ctx, q)
}
