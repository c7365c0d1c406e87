package core

import (
	"context"
	"time"
)

// JobStore persists job metadata. Implementations must be safe for
// concurrent use by workers and pollers and must return snapshots that a
// later write cannot mutate.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)

	// Claim moves a Pending job to Processing atomically. A job in any
	// other state yields ErrAlreadyClaimed.
	Claim(ctx context.Context, jobID string, startedAt time.Time) (Job, error)

	UpdateProgress(ctx context.Context, jobID string, p Progress) error

	// Finish writes the terminal state if the job is still in status from.
	// Any other current status yields ErrInvalidTransition.
	Finish(ctx context.Context, jobID string, from JobStatus, o Outcome) (Job, error)

	Delete(ctx context.Context, jobID string) error

	// List returns the organization's jobs, newest first.
	List(ctx context.Context, organizationID string, limit int) ([]Job, error)

	// FailStale fails every non-terminal job. Used at startup, when no
	// worker of this process can own them.
	FailStale(ctx context.Context, message string, at time.Time) ([]Job, error)

	// DeleteOlderThan removes terminal jobs completed before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// ArtifactStore holds ephemeral generated files. Get returns
// ErrArtifactNotFound for missing and expired keys alike.
type ArtifactStore interface {
	Put(ctx context.Context, a Artifact) error
	Get(ctx context.Context, key string) (Artifact, error)
	Delete(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// HistoryRecorder is the append-only audit log of finished jobs.
type HistoryRecorder interface {
	Record(ctx context.Context, e HistoryEntry) error
	List(ctx context.Context, q HistoryQuery) (HistoryPage, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// DefaultHistoryPageSize is used when a query does not name a page size.
const DefaultHistoryPageSize = 20

// Normalize clamps page and page size. maxSize <= 0 disables the upper bound.
func (q HistoryQuery) Normalize(maxSize int) HistoryQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultHistoryPageSize
	}
	if maxSize > 0 && q.PageSize > maxSize {
		q.PageSize = maxSize
	}
	return q
}

// Offset returns the number of entries preceding the page.
func (q HistoryQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Matches reports whether e satisfies the query filters.
func (q HistoryQuery) Matches(e HistoryEntry) bool {
	if e.OrganizationID != q.OrganizationID {
		return false
	}
	if q.OperationType != nil && e.OperationType != *q.OperationType {
		return false
	}
	if q.EntityKind != "" && e.EntityKind != q.EntityKind {
		return false
	}
	return true
}
