package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

// ExportFormatter renders the rows an adapter returns for a filter into one
// output document.
type ExportFormatter struct {
	Adapter Adapter
	Tenant  Tenant
	Format  ExportFormat

	Interval   int
	OnProgress func(Progress)
}

// ExportResult is a rendered export. Bytes is nil when no row matched.
type ExportResult struct {
	Rows        int
	Bytes       []byte
	ContentType string
}

// Render runs the query with the effective filters and writes every row.
func (f *ExportFormatter) Render(ctx context.Context, filters FilterCriteria) (ExportResult, error) {
	w, err := format.NewWriter(f.Format.Kind())
	if err != nil {
		return ExportResult{}, err
	}
	if err := w.WriteHeader(f.Adapter.Columns()); err != nil {
		return ExportResult{}, err
	}

	interval := f.Interval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	rows := 0
	err = f.Adapter.QueryForExport(ctx, f.Tenant, filters.Effective(), func(e Entity) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.OrganizationID != f.Tenant.OrganizationID {
			return fmt.Errorf("export query returned entity %s of another organization", e.ID)
		}
		if err := w.WriteRow(f.Adapter.RenderRow(e)); err != nil {
			return err
		}
		rows++
		if rows%interval == 0 && f.OnProgress != nil {
			// The total is not known while streaming, so report what is known.
			f.OnProgress(Progress{TotalRows: rows, ProcessedRows: rows, SuccessCount: rows})
		}
		return nil
	})
	if err != nil {
		return ExportResult{Rows: rows}, err
	}

	if rows == 0 {
		return ExportResult{}, nil
	}

	data, err := w.Close()
	if err != nil {
		return ExportResult{Rows: rows}, fmt.Errorf("render %s: %w", f.Format, err)
	}
	return ExportResult{Rows: rows, Bytes: data, ContentType: f.Format.ContentType()}, nil
}

// ExportFileName returns the download name for an export rendered at t.
func ExportFileName(kind EntityKind, f ExportFormat, t time.Time) string {
	return fmt.Sprintf("%s_export_%s.%s", kind, t.UTC().Format("20060102_150405"), f.Kind().Extension())
}
