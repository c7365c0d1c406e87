// Package core provides the asynchronous bulk import/export job engine.
//
// This package has no transport dependencies. Web handlers, CLI tools and
// tests drive it through [Service].
//
// # Adapters
//
// Every administrative resource plugs into the engine through an [Adapter]
// registered in a [Registry]. The adapter parses rows, looks up existing
// records by natural key, creates and updates records, streams records for
// export and renders them as columns. The engine itself never knows the
// shape of an entity.
//
// # Job lifecycle
//
//	Pending --claim--> Processing --> Completed
//	   |                   |
//	   +------cancel-------+--------> Failed
//
// [Service.EnqueueImport] and [Service.EnqueueExport] validate input, store a
// Pending [Job] and queue its id on a bounded [Pool]. A worker claims the job
// atomically, runs it, writes progress every few rows and finishes it exactly
// once, recording one [HistoryEntry].
//
// # Imports
//
// Rows are processed in file order by a [RowProcessor] under a
// [DuplicateStrategy]. A bad row becomes an [ErrorRecord] and never stops the
// batch. When any row failed, the records are rendered by an
// [ErrorReportBuilder] and stored as an [Artifact] whose id is set on the job.
//
// # Exports
//
// The [FilterCriteria] captured at enqueue time are replayed by an
// [ExportFormatter]; an explicit selected-ID list replaces all other filters.
// The rendered file is stored under the job id. An export that matched no
// rows completes without an artifact and downloads report [ErrNoExportData].
//
// # Error handling
//
// Enqueue failures are [RejectedError] values and no job is created.
// [MapError] converts any error into a [UserMessage] with a support code.
package core
