package core

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when polling an unknown or foreign-tenant job.
	ErrJobNotFound = errors.New("job not found")

	// ErrArtifactNotFound is returned for missing or expired downloads.
	ErrArtifactNotFound = errors.New("artifact not found or expired")

	// ErrNoExportData is returned when downloading an export that matched no rows.
	ErrNoExportData = errors.New("no data")

	// ErrExportNotReady is returned when downloading an export still in progress.
	ErrExportNotReady = errors.New("export not ready")

	// ErrQueueFull is returned when the worker queue cannot accept another job.
	ErrQueueFull = errors.New("job queue is full")

	ErrMissingTenant   = errors.New("missing organization context")
	ErrUnknownEntity   = errors.New("unknown entity kind")
	ErrEmptyUpload     = errors.New("empty file")
	ErrUploadTooLarge  = errors.New("file too large")
	ErrInvalidStrategy = errors.New("invalid duplicate strategy")
	ErrInvalidFormat   = errors.New("invalid export format")
	ErrInvalidFilters  = errors.New("invalid filter criteria")

	// ErrInvalidTransition guards the job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrAlreadyClaimed is returned when a job is no longer Pending at claim time.
	ErrAlreadyClaimed = errors.New("job already claimed")

	// Causes recorded on a failed job.
	ErrJobCancelled   = errors.New("cancelled")
	ErrJobTimeout     = errors.New("job timed out")
	ErrJobInterrupted = errors.New("interrupted by restart")
	ErrExecutionFault = errors.New("internal error")
)

// RejectedError reports that an enqueue request was refused before any job
// was created.
type RejectedError struct {
	Reason error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("enqueue rejected: %v", e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return e.Reason
}

func reject(err error) error {
	return &RejectedError{Reason: err}
}

func rejectf(base error, format string, args ...any) error {
	return &RejectedError{Reason: fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))}
}

// IsRejected reports whether err is an enqueue rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
