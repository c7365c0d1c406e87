package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/adminjobs/internal/core"
)

const jobColumns = `
	id, organization_id, operation_type, entity_kind, status,
	total_rows, processed_rows, success_count, skipped_count, error_count,
	format, duplicate_strategy, file_name, filters, message, error_report_id,
	requested_by, created_at, started_at, completed_at`

// JobStore persists job metadata in the jobs table. State transitions are
// single conditional UPDATEs so concurrent workers cannot both win.
type JobStore struct {
	pool *pgxpool.Pool
}

var _ core.JobStore = (*JobStore)(nil)

// NewJobStore returns a store backed by pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

func (s *JobStore) Create(ctx context.Context, job core.Job) error {
	filters, err := encodeFilters(job.Filters)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		job.ID,
		job.OrganizationID,
		string(job.OperationType),
		string(job.EntityKind),
		string(job.Status),
		job.TotalRows,
		job.ProcessedRows,
		job.SuccessCount,
		job.SkippedCount,
		job.ErrorCount,
		string(job.Format),
		string(job.DuplicateStrategy),
		job.FileName,
		filters,
		job.Message,
		job.ErrorReportID,
		job.RequestedBy,
		job.CreatedAt.UTC(),
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, jobID string) (core.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Job{}, core.ErrJobNotFound
	}
	if err != nil {
		return core.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *JobStore) Claim(ctx context.Context, jobID string, startedAt time.Time) (core.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4
		RETURNING `+jobColumns,
		jobID, string(core.StatusProcessing), startedAt.UTC(), string(core.StatusPending),
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, jobID); getErr != nil {
			return core.Job{}, getErr
		}
		return core.Job{}, core.ErrAlreadyClaimed
	}
	if err != nil {
		return core.Job{}, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, p core.Progress) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET total_rows = $2, processed_rows = $3, success_count = $4,
		    skipped_count = $5, error_count = $6
		WHERE id = $1 AND status = $7`,
		jobID, p.TotalRows, p.ProcessedRows, p.SuccessCount, p.SkippedCount, p.ErrorCount,
		string(core.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		job, err := s.Get(ctx, jobID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: progress on %s job", core.ErrInvalidTransition, job.Status)
	}
	return nil
}

func (s *JobStore) Finish(ctx context.Context, jobID string, from core.JobStatus, o core.Outcome) (core.Job, error) {
	if !from.CanTransition(o.Status) {
		return core.Job{}, fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from, o.Status)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = $3, total_rows = $4, processed_rows = $5, success_count = $6,
		    skipped_count = $7, error_count = $8, message = $9, error_report_id = $10,
		    file_name = CASE WHEN $11 = '' THEN file_name ELSE $11 END,
		    completed_at = $12
		WHERE id = $1 AND status = $2
		RETURNING `+jobColumns,
		jobID,
		string(from),
		string(o.Status),
		o.Progress.TotalRows,
		o.Progress.ProcessedRows,
		o.Progress.SuccessCount,
		o.Progress.SkippedCount,
		o.Progress.ErrorCount,
		o.Message,
		o.ErrorReportID,
		o.FileName,
		o.CompletedAt.UTC(),
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.Get(ctx, jobID)
		if getErr != nil {
			return core.Job{}, getErr
		}
		return core.Job{}, fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, current.Status, o.Status)
	}
	if err != nil {
		return core.Job{}, fmt.Errorf("finish job: %w", err)
	}
	return job, nil
}

func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func (s *JobStore) List(ctx context.Context, organizationID string, limit int) ([]core.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE organization_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{organizationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *JobStore) FailStale(ctx context.Context, message string, at time.Time) ([]core.Job, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE jobs SET status = $1, message = $2, completed_at = $3
		WHERE status IN ($4, $5)
		RETURNING `+jobColumns,
		string(core.StatusFailed), message, at.UTC(),
		string(core.StatusPending), string(core.StatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE status IN ($1, $2) AND completed_at < $3`,
		string(core.StatusCompleted), string(core.StatusFailed), cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func collectJobs(rows pgx.Rows) ([]core.Job, error) {
	defer rows.Close()

	var jobs []core.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (core.Job, error) {
	var job core.Job
	var operation, kind, status, format, strategy string
	var filters []byte
	var startedAt, completedAt *time.Time

	err := row.Scan(
		&job.ID,
		&job.OrganizationID,
		&operation,
		&kind,
		&status,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.SuccessCount,
		&job.SkippedCount,
		&job.ErrorCount,
		&format,
		&strategy,
		&job.FileName,
		&filters,
		&job.Message,
		&job.ErrorReportID,
		&job.RequestedBy,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return core.Job{}, err
	}

	job.OperationType = core.OperationType(operation)
	job.EntityKind = core.EntityKind(kind)
	job.Status = core.JobStatus(status)
	job.Format = core.ExportFormat(format)
	job.DuplicateStrategy = core.DuplicateStrategy(strategy)
	job.CreatedAt = job.CreatedAt.UTC()
	job.StartedAt = utcPtr(startedAt)
	job.CompletedAt = utcPtr(completedAt)

	if len(filters) > 0 {
		var f core.FilterCriteria
		if err := json.Unmarshal(filters, &f); err != nil {
			return core.Job{}, fmt.Errorf("decode job filters: %w", err)
		}
		job.Filters = &f
	}
	return job, nil
}

func encodeFilters(f *core.FilterCriteria) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode job filters: %w", err)
	}
	return data, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
