package format

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Writer renders rows into an in-memory document.
// WriteHeader must be called once before any WriteRow.
type Writer interface {
	WriteHeader(cols []string) error
	WriteRow(cells []string) error
	Close() ([]byte, error)
}

// NewWriter returns a Writer for the given output kind.
func NewWriter(kind Kind) (Writer, error) {
	switch kind {
	case CSV:
		return newCSVWriter(), nil
	case XLSX:
		return newXLSXWriter()
	case JSON:
		return &jsonWriter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
}

// jsonWriter emits an array of objects keyed by column name, preserving
// column order within each object.
type jsonWriter struct {
	cols []string
	buf  bytes.Buffer
	rows int
}

func (j *jsonWriter) WriteHeader(cols []string) error {
	j.cols = cols
	j.buf.WriteByte('[')
	return nil
}

func (j *jsonWriter) WriteRow(cells []string) error {
	if j.rows > 0 {
		j.buf.WriteByte(',')
	}
	j.rows++

	j.buf.WriteByte('{')
	for i, col := range j.cols {
		if i > 0 {
			j.buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return err
		}
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		val, err := json.Marshal(cell)
		if err != nil {
			return err
		}
		j.buf.Write(key)
		j.buf.WriteByte(':')
		j.buf.Write(val)
	}
	j.buf.WriteByte('}')
	return nil
}

func (j *jsonWriter) Close() ([]byte, error) {
	if j.cols == nil {
		j.buf.WriteByte('[')
	}
	j.buf.WriteByte(']')
	return j.buf.Bytes(), nil
}
