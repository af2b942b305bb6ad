package table

import (
	"time"

	"github.com/mailru/easyjson/jwriter"
)

// MarshalEasyJSON writes the table as an array of objects keyed by column name.
func (t *Table) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('[')
	for i, r := range t.Rows {
		if i > 0 {
			w.RawByte(',')
		}
		writeRow(w, t.Schema, r)
	}
	w.RawByte(']')
}

// MarshalJSON implements json.Marshaler.
func (t *Table) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	t.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

// MarshalRowJSON renders row i as a single JSON object.
func (t *Table) MarshalRowJSON(i int) ([]byte, error) {
	w := jwriter.Writer{}
	writeRow(&w, t.Schema, t.Rows[i])
	return w.BuildBytes()
}

func writeRow(w *jwriter.Writer, s Schema, r Row) {
	w.RawByte('{')
	for i, c := range s.Columns {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(c.Name)
		w.RawByte(':')
		writeValue(w, r[i])
	}
	w.RawByte('}')
}

func writeValue(w *jwriter.Writer, v Value) {
	switch v.typ {
	case Text:
		w.String(v.s)
	case Float32:
		w.Float32(v.f)
	case UInt8:
		w.Uint8(uint8(v.n))
	case UInt16:
		w.Uint16(uint16(v.n))
	case UInt32:
		w.Uint32(uint32(v.n))
	case Int8:
		w.Int8(int8(v.n))
	case DateTime:
		w.String(v.t.Format(time.RFC3339Nano))
	default:
		w.RawString("null")
	}
}
