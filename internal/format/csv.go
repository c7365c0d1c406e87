package format

// csv.go decodes and encodes CSV.
//
// Uploads commonly come from spreadsheet tools that prepend a UTF-8 BOM or
// emit stray Latin-1 bytes. Both are repaired before parsing so a single bad
// byte never turns a whole file into a parse failure.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sanitize strips a leading BOM and replaces invalid UTF-8 sequences with '?'.
func sanitize(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("?"))
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(sanitize(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	return records, nil
}

type csvWriter struct {
	buf bytes.Buffer
	w   *csv.Writer
}

func newCSVWriter() *csvWriter {
	cw := &csvWriter{}
	cw.w = csv.NewWriter(&cw.buf)
	return cw
}

func (c *csvWriter) WriteHeader(cols []string) error {
	return c.w.Write(cols)
}

func (c *csvWriter) WriteRow(cells []string) error {
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = escapeFormula(cell)
	}
	return c.w.Write(out)
}

// escapeFormula prefixes cells a spreadsheet would evaluate as a formula
// with a single quote. Plain numbers such as "-12.5" are left alone.
func escapeFormula(cell string) string {
	if cell == "" || !strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return cell
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return cell
	}
	return "'" + cell
}

func (c *csvWriter) Close() ([]byte, error) {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return nil, err
	}
	return c.buf.Bytes(), nil
}
