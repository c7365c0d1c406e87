// Package format provides the tabular file codecs used by bulk jobs.
//
// Uploads are decoded into a [Table] (header plus data rows) regardless of
// whether they arrived as CSV or XLSX. Exports are produced through a [Writer]
// which renders the same header/row shape into CSV, XLSX or JSON bytes.
package format

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

// Kind identifies a file encoding.
type Kind string

const (
	CSV  Kind = "csv"
	XLSX Kind = "xlsx"
	JSON Kind = "json"
)

var (
	// ErrUnsupported is returned for encodings that cannot be decoded.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrNoHeader is returned when a file has no header row.
	ErrNoHeader = errors.New("file has no header row")
)

// zipMagic prefixes every XLSX (OOXML) document.
var zipMagic = []byte("PK\x03\x04")

// ContentType returns the MIME type for a kind.
func (k Kind) ContentType() string {
	switch k {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case JSON:
		return "application/json"
	default:
		return "text/csv"
	}
}

// Extension returns the file extension (without dot) for a kind.
func (k Kind) Extension() string {
	return string(k)
}

// Table is a decoded upload. RowNumbers holds the 1-based position of each
// entry in Rows among the records after the header, blank rows included.
type Table struct {
	Header     []string
	Rows       [][]string
	RowNumbers []int
}

// RowNumber returns the original data-row number of Rows[i].
func (t *Table) RowNumber(i int) int {
	if i < len(t.RowNumbers) {
		return t.RowNumbers[i]
	}
	return i + 1
}

// Detect picks the decoder for an upload from its file name, falling back
// to content sniffing when the name carries no usable extension.
func Detect(fileName string, data []byte) (Kind, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return CSV, nil
	case ".xlsx", ".xlsm":
		return XLSX, nil
	case ".xls", ".pdf", ".json":
		return "", ErrUnsupported
	}

	if bytes.HasPrefix(data, zipMagic) {
		return XLSX, nil
	}
	return CSV, nil
}

// Decode parses data of the given kind into a Table.
// Fully blank rows are dropped; the first non-blank row is the header.
// Rows after the header keep their original numbering.
func Decode(kind Kind, data []byte) (*Table, error) {
	var records [][]string
	var err error

	switch kind {
	case CSV:
		records, err = readCSV(data)
	case XLSX:
		records, err = readXLSX(data)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}

	table := &Table{}
	line := 0
	for _, rec := range records {
		if table.Header == nil {
			if !isBlank(rec) {
				table.Header = cleanHeader(rec)
			}
			continue
		}
		line++
		if isBlank(rec) {
			continue
		}
		table.Rows = append(table.Rows, rec)
		table.RowNumbers = append(table.RowNumbers, line)
	}

	if len(table.Header) == 0 {
		return nil, ErrNoHeader
	}
	return table, nil
}

func isBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cleanHeader(rec []string) []string {
	header := make([]string, len(rec))
	for i, h := range rec {
		header[i] = strings.TrimSpace(h)
	}
	return header
}
