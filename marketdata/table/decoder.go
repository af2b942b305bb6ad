package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrFieldCount is returned when a record does not have as many fields as its schema.
	ErrFieldCount = errors.New("wrong number of fields")
	// ErrDuplicateIndex is returned when a unique index value repeats.
	ErrDuplicateIndex = errors.New("duplicate index value")
	// ErrInvalidUTF8 is returned when a stream line is not valid text.
	ErrInvalidUTF8 = errors.New("invalid utf-8")
)

// MalformedRowError is returned when a record cannot be coerced to its
// schema. Decoding stops at the first such record.
type MalformedRowError struct {
	// Row is the 1-based record number within the response.
	Row    int
	Column string
	Raw    string
	Err    error
}

func (e *MalformedRowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("malformed row %d %q: %v", e.Row, e.Raw, e.Err)
	}
	return fmt.Sprintf("malformed row %d: column %q: cannot parse %q: %v", e.Row, e.Column, e.Raw, e.Err)
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

// Record is one raw, untyped record of a batch response.
type Record struct {
	Row    int
	Fields []string
}

// Decoder turns the proxy's delimited text into typed tables. It holds no
// mutable state and is safe for concurrent use.
type Decoder struct {
	loc *time.Location
}

// NewDecoder returns a decoder interpreting zone-less timestamps in loc.
func NewDecoder(loc *time.Location) Decoder {
	if loc == nil {
		loc = time.UTC
	}
	return Decoder{loc: loc}
}

// Location returns the location timestamps are parsed in.
func (d Decoder) Location() *time.Location {
	if d.loc == nil {
		return time.UTC
	}
	return d.loc
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return cr
}

// ReadRecords splits a headerless batch response into raw records. Blank
// lines are skipped.
func (d Decoder) ReadRecords(r io.Reader) ([]Record, error) {
	cr := newCSVReader(r)
	var records []Record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, &MalformedRowError{Row: len(records) + 1, Err: err}
		}
		records = append(records, Record{Row: len(records) + 1, Fields: fields})
	}
}

// DecodeRow coerces the fields of one record to schema. Any cell failing
// coercion fails the whole row.
func (d Decoder) DecodeRow(fields []string, schema Schema, row int) (Row, error) {
	if len(fields) != len(schema.Columns) {
		return nil, &MalformedRowError{
			Row: row,
			Raw: strings.Join(fields, ","),
			Err: fmt.Errorf("%w: want %d, got %d", ErrFieldCount, len(schema.Columns), len(fields)),
		}
	}
	out := make(Row, len(fields))
	for i, col := range schema.Columns {
		v, err := ParseValue(fields[i], col, d.Location())
		if err != nil {
			return nil, &MalformedRowError{Row: row, Column: col.Name, Raw: fields[i], Err: err}
		}
		out[i] = v
	}
	return out, nil
}

// DecodeBatch decodes a whole headerless response block. A malformed
// record fails the table; no partial tables are returned. An empty block
// is a valid table with no rows.
func (d Decoder) DecodeBatch(r io.Reader, schema Schema) (*Table, error) {
	records, err := d.ReadRecords(r)
	if err != nil {
		return nil, err
	}
	return d.DecodeRecords(records, schema)
}

// DecodeRecords coerces already split records to schema.
func (d Decoder) DecodeRecords(records []Record, schema Schema) (*Table, error) {
	t := New(schema)
	var seen map[string]struct{}
	if schema.UniqueIndex && schema.Index >= 0 {
		seen = make(map[string]struct{}, len(records))
	}
	for _, rec := range records {
		row, err := d.DecodeRow(rec.Fields, schema, rec.Row)
		if err != nil {
			return nil, err
		}
		if seen != nil {
			key := row[schema.Index].String()
			if _, dup := seen[key]; dup {
				return nil, &MalformedRowError{
					Row:    rec.Row,
					Column: schema.IndexName(),
					Raw:    rec.Fields[schema.Index],
					Err:    ErrDuplicateIndex,
				}
			}
			seen[key] = struct{}{}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// DecodeLine decodes one self-describing stream line into a one-row table
// indexed by type. The leading type tag selects the schema.
func (d Decoder) DecodeLine(line []byte) (*Table, error) {
	line = bytes.TrimRight(line, "\r\n")
	if !utf8.Valid(line) {
		return nil, &MalformedRowError{Row: 1, Raw: string(line), Err: ErrInvalidUTF8}
	}
	fields, err := newCSVReader(bytes.NewReader(line)).Read()
	if err != nil {
		return nil, &MalformedRowError{Row: 1, Raw: string(line), Err: err}
	}
	schema := KindOf(fields[0]).StreamSchema()
	row, err := d.DecodeRow(fields, schema, 1)
	if err != nil {
		return nil, err
	}
	t := New(schema)
	t.Rows = append(t.Rows, row)
	return t, nil
}
