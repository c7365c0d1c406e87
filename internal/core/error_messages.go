package core

// error_messages.go maps technical errors to messages safe to show tenants.
//
// Each message carries a support code:
//
//	JOB001-JOB099   job lifecycle (not found, queue full, cancelled, timeout)
//	IMP001-IMP099   import input (empty file, too large, unsupported, header)
//	EXP001-EXP099   export requests and downloads
//	ART001-ART099   artifacts (missing or expired downloads)
//	REQ001-REQ099   request shape (tenant, entity kind, strategy, filters)
//	DB001-DB099     persistence
//	RATE001         throttling
//	ERR000          anything unrecognized

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

// UserMessage is a tenant-facing description of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages are checked first with errors.Is, in order.
var sentinelMessages = []sentinelMessage{
	{ErrJobNotFound, UserMessage{"Job not found", "Check the job id; finished jobs are removed after the retention period", "JOB001"}},
	{ErrQueueFull, UserMessage{"Too many jobs are queued", "Please wait a moment and try again", "JOB002"}},
	{ErrPoolClosed, UserMessage{"The server is shutting down", "Please try again shortly", "JOB003"}},
	{ErrJobCancelled, UserMessage{"Job was cancelled", "Start a new job when ready", "JOB004"}},
	{ErrJobTimeout, UserMessage{"Job exceeded the maximum run time", "Split the file into smaller parts", "JOB005"}},
	{ErrInvalidTransition, UserMessage{"Job has already finished", "No action is needed", "JOB006"}},
	{ErrExecutionFault, UserMessage{"Job failed unexpectedly", "Please try again or contact support", "JOB007"}},
	{ErrJobInterrupted, UserMessage{"Job was interrupted by a restart", "Please submit the job again", "JOB008"}},

	{ErrEmptyUpload, UserMessage{"The uploaded file is empty", "Upload a file with a header row and data", "IMP001"}},
	{ErrUploadTooLarge, UserMessage{"File exceeds the maximum upload size", "Split the file into smaller parts", "IMP002"}},
	{format.ErrUnsupported, UserMessage{"Unsupported file type", "Upload a .csv or .xlsx file", "IMP003"}},
	{format.ErrNoHeader, UserMessage{"The file has no header row", "Add a header row matching the import template", "IMP004"}},
	{ErrMissingColumns, UserMessage{"Required columns are missing", "Download the import template and compare headers", "IMP005"}},

	{ErrNoExportData, UserMessage{"No data", "Adjust the filters and export again", "EXP001"}},
	{ErrExportNotReady, UserMessage{"Export is still running", "Poll the job status and download when completed", "EXP002"}},
	{ErrInvalidFormat, UserMessage{"Unsupported export format", "Use excel, csv or json", "EXP003"}},

	{ErrArtifactNotFound, UserMessage{"File not found or expired", "Run the job again to regenerate the file", "ART001"}},

	{ErrMissingTenant, UserMessage{"Organization context is required", "Send the X-Organization-ID header", "REQ001"}},
	{ErrUnknownEntity, UserMessage{"Unknown entity type", "List supported entities at /api/v1/entities", "REQ002"}},
	{ErrInvalidStrategy, UserMessage{"Invalid duplicate strategy", "Use skip, update or create_new", "REQ003"}},
	{ErrInvalidFilters, UserMessage{"Invalid filter criteria", "Check filter names and date ranges", "REQ004"}},

	{context.DeadlineExceeded, UserMessage{"Operation timed out", "Please try again", "DB006"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "DB008"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns match driver and library errors by substring (lowercase).
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this key already exists", "Use the update or skip strategy", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your file", "DB002"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Import the referenced records first", "DB003"}},
	{"connection refused", UserMessage{"Unable to reach storage", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Storage connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again", "DB006"}},
	{"deadlock", UserMessage{"Storage was busy with conflicting operations", "Please try again", "DB007"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated", "IMP006"}},
	{"zip: not a valid zip file", UserMessage{"File is not a valid workbook", "Save the file as .xlsx and try again", "IMP007"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message. Known
// sentinels win over substring patterns; unknown errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
