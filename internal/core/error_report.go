package core

import (
	"fmt"
	"strconv"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

// ErrorReportHeader is the column layout of a rendered error report.
var ErrorReportHeader = []string{"Row", "Field", "Value", "Error"}

// ErrorReportBuilder accumulates row errors in the order rows are processed.
type ErrorReportBuilder struct {
	records []ErrorRecord
	lastRow int
}

// NewErrorReportBuilder returns an empty builder.
func NewErrorReportBuilder() *ErrorReportBuilder {
	return &ErrorReportBuilder{}
}

// Add appends a record. Records must arrive in ascending row order.
func (b *ErrorReportBuilder) Add(rec ErrorRecord) error {
	if rec.RowNumber < b.lastRow {
		return fmt.Errorf("error record for row %d added after row %d", rec.RowNumber, b.lastRow)
	}
	b.lastRow = rec.RowNumber
	b.records = append(b.records, rec)
	return nil
}

// Len returns the number of rows with errors.
func (b *ErrorReportBuilder) Len() int {
	return len(b.records)
}

// Records returns a copy of the accumulated records.
func (b *ErrorReportBuilder) Records() []ErrorRecord {
	return append([]ErrorRecord(nil), b.records...)
}

// Render serializes the records as CSV, one line per field error plus one
// line for each general message.
func (b *ErrorReportBuilder) Render() ([]byte, error) {
	w, err := format.NewWriter(format.CSV)
	if err != nil {
		return nil, err
	}
	if err := w.WriteHeader(ErrorReportHeader); err != nil {
		return nil, err
	}

	for _, rec := range b.records {
		row := strconv.Itoa(rec.RowNumber)
		for _, fe := range rec.FieldErrors {
			if err := w.WriteRow([]string{row, fe.Field, fe.Value, fe.Message}); err != nil {
				return nil, err
			}
		}
		if rec.GeneralMessage != "" {
			if err := w.WriteRow([]string{row, "", "", rec.GeneralMessage}); err != nil {
				return nil, err
			}
		}
	}
	return w.Close()
}

// ErrorReportFileName returns the download name for a job's error report.
func ErrorReportFileName(kind EntityKind, jobID string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_import_errors_%s.csv", kind, short)
}
