package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

// OperationType distinguishes import jobs from export jobs.
type OperationType string

const (
	OperationImport OperationType = "import"
	OperationExport OperationType = "export"
)

// ParseOperationType accepts "import"/"export" in any case.
func ParseOperationType(s string) (OperationType, error) {
	switch OperationType(strings.ToLower(strings.TrimSpace(s))) {
	case OperationImport:
		return OperationImport, nil
	case OperationExport:
		return OperationExport, nil
	}
	return "", fmt.Errorf("unknown operation type %q", s)
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
// Pending may be claimed or failed (cancel/restart recovery); Processing may
// only end. Terminal states never move.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// DuplicateStrategy governs how an import row matching an existing entity
// (by natural key) is treated.
type DuplicateStrategy string

const (
	StrategySkip      DuplicateStrategy = "skip"
	StrategyUpdate    DuplicateStrategy = "update"
	StrategyCreateNew DuplicateStrategy = "create_new"
)

// ParseDuplicateStrategy parses a strategy name. Empty input means Skip.
func ParseDuplicateStrategy(s string) (DuplicateStrategy, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", "_", "", " ", "").Replace(norm)

	switch norm {
	case "", "skip":
		return StrategySkip, nil
	case "update":
		return StrategyUpdate, nil
	case "createnew":
		return StrategyCreateNew, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

// ExportFormat is the requested output encoding of an export.
type ExportFormat string

const (
	FormatExcel ExportFormat = "excel"
	FormatCSV   ExportFormat = "csv"
	FormatJSON  ExportFormat = "json"
)

// ParseExportFormat parses a format name. Empty input means Excel.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "excel", "xlsx":
		return FormatExcel, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

// Kind returns the file codec used to render the format.
func (f ExportFormat) Kind() format.Kind {
	switch f {
	case FormatCSV:
		return format.CSV
	case FormatJSON:
		return format.JSON
	default:
		return format.XLSX
	}
}

// ContentType returns the MIME type of rendered exports.
func (f ExportFormat) ContentType() string {
	return f.Kind().ContentType()
}

// EntityKind names an administrative resource ("users", "tax_rates", ...).
type EntityKind string

// Tenant identifies the organization a job is scoped to.
type Tenant struct {
	OrganizationID string
	RequestedBy    string
}

// Valid reports whether the tenant carries an organization.
func (t Tenant) Valid() bool {
	return strings.TrimSpace(t.OrganizationID) != ""
}

// Job is one asynchronous import or export operation.
type Job struct {
	ID                string            `json:"jobId"`
	OrganizationID    string            `json:"organizationId"`
	OperationType     OperationType     `json:"operationType"`
	EntityKind        EntityKind        `json:"entityKind"`
	Status            JobStatus         `json:"status"`
	TotalRows         int               `json:"totalRows"`
	ProcessedRows     int               `json:"processedRows"`
	SuccessCount      int               `json:"successCount"`
	SkippedCount      int               `json:"skippedCount"`
	ErrorCount        int               `json:"errorCount"`
	Format            ExportFormat      `json:"format,omitempty"`
	DuplicateStrategy DuplicateStrategy `json:"duplicateStrategy,omitempty"`
	FileName          string            `json:"fileName,omitempty"`
	Filters           *FilterCriteria   `json:"filters,omitempty"`
	Message           string            `json:"message,omitempty"`
	ErrorReportID     string            `json:"errorReportId,omitempty"`
	CreatedAt         time.Time         `json:"createdAtUtc"`
	StartedAt         *time.Time        `json:"startedAtUtc,omitempty"`
	CompletedAt       *time.Time        `json:"completedAtUtc,omitempty"`
	RequestedBy       string            `json:"requestedBy,omitempty"`
}

// Percent returns processed progress as 0-100.
// Terminal jobs report 100 regardless of row counts.
func (j Job) Percent() int {
	if j.Status.IsTerminal() {
		return 100
	}
	if j.TotalRows <= 0 {
		return 0
	}
	return (j.ProcessedRows * 100) / j.TotalRows
}

// Progress is an incremental counter update for a running job.
type Progress struct {
	TotalRows     int
	ProcessedRows int
	SuccessCount  int
	SkippedCount  int
	ErrorCount    int
}

// Outcome is the terminal state written when a job finishes.
type Outcome struct {
	Status        JobStatus
	Progress      Progress
	Message       string
	ErrorReportID string
	FileName      string
	CompletedAt   time.Time
}

// FieldError is a validation failure on one field of an import row.
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ErrorRecord collects everything that went wrong with one import row.
type ErrorRecord struct {
	RowNumber      int          `json:"rowNumber"`
	FieldErrors    []FieldError `json:"fieldErrors,omitempty"`
	GeneralMessage string       `json:"generalMessage,omitempty"`
}

// Artifact is an ephemeral generated file (export output or error report).
type Artifact struct {
	Key            string
	OrganizationID string
	FileName       string
	ContentType    string
	Bytes          []byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the artifact is past its retention window.
func (a Artifact) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// HistoryEntry is the permanent audit record written once per finished job.
type HistoryEntry struct {
	ID                string            `json:"id"`
	OrganizationID    string            `json:"organizationId"`
	OperationType     OperationType     `json:"operationType"`
	EntityKind        EntityKind        `json:"entityKind"`
	Format            ExportFormat      `json:"format,omitempty"`
	DuplicateStrategy DuplicateStrategy `json:"duplicateStrategy,omitempty"`
	FileName          string            `json:"fileName,omitempty"`
	TotalRows         int               `json:"totalRows"`
	SuccessCount      int               `json:"successCount"`
	SkippedCount      int               `json:"skippedCount"`
	ErrorCount        int               `json:"errorCount"`
	Status            JobStatus         `json:"status"`
	Message           string            `json:"message,omitempty"`
	JobID             string            `json:"jobId"`
	ErrorReportID     string            `json:"errorReportId,omitempty"`
	CreatedAt         time.Time         `json:"createdAtUtc"`
	RequestedBy       string            `json:"requestedBy,omitempty"`
}

// HistoryQuery selects history entries for one tenant.
// A nil OperationType returns both imports and exports.
type HistoryQuery struct {
	OrganizationID string
	OperationType  *OperationType
	EntityKind     EntityKind
	Page           int
	PageSize       int
}

// HistoryPage is one page of history, newest first.
type HistoryPage struct {
	Entries  []HistoryEntry `json:"entries"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// Download is a retrievable artifact body.
type Download struct {
	FileName    string
	ContentType string
	Bytes       []byte
}
