package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/adminjobs/internal/core"
)

const historyColumns = `
	id, job_id, organization_id, operation_type, entity_kind, format,
	duplicate_strategy, file_name, total_rows, success_count, skipped_count,
	error_count, status, message, error_report_id, requested_by, created_at`

// HistoryStore is the append-only job_history table.
type HistoryStore struct {
	pool    *pgxpool.Pool
	maxPage int
}

var _ core.HistoryRecorder = (*HistoryStore)(nil)

// NewHistoryStore returns a recorder backed by pool. maxPage bounds the
// page size of List; zero leaves it unbounded.
func NewHistoryStore(pool *pgxpool.Pool, maxPage int) *HistoryStore {
	return &HistoryStore{pool: pool, maxPage: maxPage}
}

func (s *HistoryStore) Record(ctx context.Context, e core.HistoryEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		e.ID,
		e.JobID,
		e.OrganizationID,
		string(e.OperationType),
		string(e.EntityKind),
		string(e.Format),
		string(e.DuplicateStrategy),
		e.FileName,
		e.TotalRows,
		e.SuccessCount,
		e.SkippedCount,
		e.ErrorCount,
		string(e.Status),
		e.Message,
		e.ErrorReportID,
		e.RequestedBy,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *HistoryStore) List(ctx context.Context, q core.HistoryQuery) (core.HistoryPage, error) {
	q = q.Normalize(s.maxPage)
	where, args := historyFilter(q)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_history WHERE `+where, args...).Scan(&total); err != nil {
		return core.HistoryPage{}, fmt.Errorf("count history: %w", err)
	}

	n := len(args)
	args = append(args, q.PageSize, q.Offset())
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM job_history
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, historyColumns, where, n+1, n+2),
		args...,
	)
	if err != nil {
		return core.HistoryPage{}, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []core.HistoryEntry{}
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return core.HistoryPage{}, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return core.HistoryPage{}, fmt.Errorf("iterate history: %w", err)
	}

	return core.HistoryPage{
		Entries:  entries,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
	}, nil
}

func (s *HistoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_history WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// historyFilter builds the WHERE clause for q. Organization is always bound.
func historyFilter(q core.HistoryQuery) (string, []any) {
	conds := []string{"organization_id = $1"}
	args := []any{q.OrganizationID}

	if q.OperationType != nil {
		args = append(args, string(*q.OperationType))
		conds = append(conds, fmt.Sprintf("operation_type = $%d", len(args)))
	}
	if q.EntityKind != "" {
		args = append(args, string(q.EntityKind))
		conds = append(conds, fmt.Sprintf("entity_kind = $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func scanHistory(row pgx.Row) (core.HistoryEntry, error) {
	var e core.HistoryEntry
	var operation, kind, format, strategy, status string

	err := row.Scan(
		&e.ID,
		&e.JobID,
		&e.OrganizationID,
		&operation,
		&kind,
		&format,
		&strategy,
		&e.FileName,
		&e.TotalRows,
		&e.SuccessCount,
		&e.SkippedCount,
		&e.ErrorCount,
		&status,
		&e.Message,
		&e.ErrorReportID,
		&e.RequestedBy,
		&e.CreatedAt,
	)
	if err != nil {
		return core.HistoryEntry{}, err
	}

	e.OperationType = core.OperationType(operation)
	e.EntityKind = core.EntityKind(kind)
	e.Format = core.ExportFormat(format)
	e.DuplicateStrategy = core.DuplicateStrategy(strategy)
	e.Status = core.JobStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
