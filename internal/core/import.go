package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

// DefaultProgressInterval is the number of rows between progress writes.
const DefaultProgressInterval = 50

// HeaderValidator is implemented by adapters that can reject a file up front
// when its header lacks required columns.
type HeaderValidator interface {
	ValidateHeader(index HeaderIndex) error
}

// ErrMissingColumns is returned when an upload header lacks required columns.
var ErrMissingColumns = errors.New("missing required columns")

// RowProcessor applies the rows of one upload to an adapter under a
// duplicate handling strategy.
type RowProcessor struct {
	Adapter  Adapter
	Tenant   Tenant
	Strategy DuplicateStrategy
	Report   *ErrorReportBuilder

	// Interval is the number of rows between OnProgress calls.
	Interval   int
	OnProgress func(Progress)

	progress Progress
}

// Progress returns the counters accumulated so far.
func (p *RowProcessor) Progress() Progress {
	return p.progress
}

// Process runs every data row in order. Row-level failures are recorded in
// the report and never stop the batch; only header problems and context
// cancellation return an error. Counters reflect every row handled before
// the error.
func (p *RowProcessor) Process(ctx context.Context, table *format.Table) error {
	index := MakeHeaderIndex(table.Header)
	if hv, ok := p.Adapter.(HeaderValidator); ok {
		if err := hv.ValidateHeader(index); err != nil {
			return err
		}
	}
	if p.Report == nil {
		p.Report = NewErrorReportBuilder()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	p.progress = Progress{TotalRows: len(table.Rows)}
	p.notify()

	for i, cells := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		row := NewRawRow(table.RowNumber(i), index, cells)
		if err := p.processRow(ctx, row); err != nil {
			return err
		}

		if p.progress.ProcessedRows%interval == 0 {
			p.notify()
		}
	}

	p.notify()
	return nil
}

func (p *RowProcessor) notify() {
	if p.OnProgress != nil {
		p.OnProgress(p.progress)
	}
}

// processRow handles one row. It returns an error only when the job itself
// must stop.
func (p *RowProcessor) processRow(ctx context.Context, row RawRow) error {
	fields, fieldErrs := p.Adapter.ParseRow(row)
	if len(fieldErrs) > 0 {
		return p.fail(ErrorRecord{RowNumber: row.Number, FieldErrors: fieldErrs})
	}

	var (
		existing Entity
		found    bool
	)
	if p.Strategy != StrategyCreateNew {
		key := p.Adapter.NaturalKey(fields)
		if key != "" {
			var err error
			existing, found, err = p.Adapter.FindExisting(ctx, p.Tenant, key)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return p.fail(rowFailure(row.Number, "lookup failed", err))
			}
		}
	}

	switch {
	case found && p.Strategy == StrategySkip:
		p.progress.ProcessedRows++
		p.progress.SkippedCount++
		return nil

	case found && p.Strategy == StrategyUpdate:
		if _, err := p.Adapter.Update(ctx, p.Tenant, existing, fields); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return p.fail(rowFailure(row.Number, "update failed", err))
		}

	default:
		if _, err := p.Adapter.Create(ctx, p.Tenant, fields); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return p.fail(rowFailure(row.Number, "create failed", err))
		}
	}

	p.progress.ProcessedRows++
	p.progress.SuccessCount++
	return nil
}

func (p *RowProcessor) fail(rec ErrorRecord) error {
	if err := p.Report.Add(rec); err != nil {
		return err
	}
	p.progress.ProcessedRows++
	p.progress.ErrorCount++
	return nil
}

// rowFailure builds a record for a persistence error. Field errors returned
// by the adapter are kept as field errors.
func rowFailure(rowNumber int, action string, err error) ErrorRecord {
	var fe FieldError
	if errors.As(err, &fe) {
		return ErrorRecord{RowNumber: rowNumber, FieldErrors: []FieldError{fe}}
	}
	return ErrorRecord{
		RowNumber:      rowNumber,
		GeneralMessage: fmt.Sprintf("%s: %s", action, MapError(err).Message),
	}
}

// MissingColumnsError lists the required columns absent from a header.
func MissingColumnsError(missing []string) error {
	return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
}
