// Package table holds the typed tabular records decoded from the proxy's
// delimited text responses.
package table

import (
	"fmt"
	"sort"
)

// Column is a named, typed column of a schema.
type Column struct {
	Name   string     `msgpack:"n"`
	Type   ValueType  `msgpack:"t"`
	Format TimeFormat `msgpack:"f,omitempty"`
}

// Col returns a column of the given type.
func Col(name string, typ ValueType) Column {
	return Column{Name: name, Type: typ}
}

// TimeCol returns a DateTime column parsed with format.
func TimeCol(name string, format TimeFormat) Column {
	return Column{Name: name, Type: DateTime, Format: format}
}

// Schema describes the columns of a table and which column indexes its rows.
type Schema struct {
	Columns []Column `msgpack:"c"`
	// Index is the position of the index column, -1 for none.
	Index int `msgpack:"i"`
	// UniqueIndex rejects rows repeating an index value.
	UniqueIndex bool `msgpack:"u"`
}

// NewSchema returns a schema indexed on the named column.
func NewSchema(index string, unique bool, cols ...Column) Schema {
	s := Schema{Columns: cols, Index: -1, UniqueIndex: unique}
	s.Index = s.Lookup(index)
	return s
}

// Lookup returns the position of the named column, or -1.
func (s Schema) Lookup(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// IndexName returns the name of the index column.
func (s Schema) IndexName() string {
	if s.Index < 0 || s.Index >= len(s.Columns) {
		return ""
	}
	return s.Columns[s.Index].Name
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Row is an ordered sequence of values matching a schema.
type Row []Value

// Table is a set of rows sharing one schema.
type Table struct {
	Schema Schema
	Rows   []Row
}

// New returns an empty table with the given schema.
func New(schema Schema) *Table {
	return &Table{Schema: schema, Rows: []Row{}}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Append adds rows to the table.
func (t *Table) Append(rows ...Row) {
	t.Rows = append(t.Rows, rows...)
}

// Index returns the index value of row i.
func (t *Table) Index(i int) Value {
	if t.Schema.Index < 0 {
		return Value{}
	}
	return t.Rows[i][t.Schema.Index]
}

// Value returns the value of the named column in row i.
func (t *Table) Value(i int, name string) (Value, bool) {
	c := t.Schema.Lookup(name)
	if c < 0 || i < 0 || i >= len(t.Rows) {
		return Value{}, false
	}
	return t.Rows[i][c], true
}

// Find returns the first row whose index value renders as key.
func (t *Table) Find(key string) (Row, bool) {
	if t.Schema.Index < 0 {
		return nil, false
	}
	for _, r := range t.Rows {
		if r[t.Schema.Index].String() == key {
			return r, true
		}
	}
	return nil, false
}

// SortByIndex sorts the rows by the index column ascending. Rows with equal
// index values keep their relative order.
func (t *Table) SortByIndex() {
	idx := t.Schema.Index
	if idx < 0 {
		return
	}
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return Compare(t.Rows[i][idx], t.Rows[j][idx]) < 0
	})
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.Schema)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Project returns a new table with only the named columns, in the given
// order. The index is kept when it is among them.
func (t *Table) Project(names ...string) (*Table, error) {
	pos := make([]int, len(names))
	cols := make([]Column, len(names))
	for i, name := range names {
		p := t.Schema.Lookup(name)
		if p < 0 {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		pos[i] = p
		cols[i] = t.Schema.Columns[p]
	}
	out := New(NewSchema(t.Schema.IndexName(), t.Schema.UniqueIndex, cols...))
	for _, r := range t.Rows {
		nr := make(Row, len(pos))
		for i, p := range pos {
			nr[i] = r[p]
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}

// Clone returns a copy of t that shares no rows with it.
func (t *Table) Clone() *Table {
	out := &Table{Schema: t.Schema, Rows: make([]Row, len(t.Rows))}
	out.Schema.Columns = append([]Column(nil), t.Schema.Columns...)
	for i, r := range t.Rows {
		out.Rows[i] = append(Row(nil), r...)
	}
	return out
}
