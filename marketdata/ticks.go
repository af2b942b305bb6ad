package marketdata

import (
	"fmt"

	"github.com/activetick-http/activetick-go/marketdata/table"
)

// mergeTicks turns the raw records of a tick history response into one
// table. Records are split by their type tag, decoded against the schema of
// their kind and, when both kinds are wanted, widened to the merged schema
// with nulls in the other kind's columns. The result is ordered by datetime;
// records with equal timestamps keep their arrival order.
func mergeTicks(dec table.Decoder, records []table.Record, trades, quotes bool) (*table.Table, error) {
	if !trades && !quotes {
		return table.New(table.NewSchema("", false)), nil
	}

	schema := table.TradeTick.HistorySchema()
	switch {
	case trades && quotes:
		schema = table.MergedTickSchema()
	case quotes:
		schema = table.QuoteTick.HistorySchema()
	}
	widen := map[table.TickKind][]int{
		table.TradeTick: positions(schema, table.TradeTick.HistorySchema()),
		table.QuoteTick: positions(schema, table.QuoteTick.HistorySchema()),
	}

	out := table.New(schema)
	for _, rec := range records {
		var kind table.TickKind
		switch rec.Fields[0] {
		case string(table.TradeTick):
			kind = table.TradeTick
		case string(table.QuoteTick):
			kind = table.QuoteTick
		default:
			return nil, &table.MalformedRowError{
				Row:    rec.Row,
				Column: table.ColType,
				Raw:    rec.Fields[0],
				Err:    table.ErrUnknownTickType,
			}
		}
		if (kind == table.TradeTick && !trades) || (kind == table.QuoteTick && !quotes) {
			continue
		}

		kindSchema := kind.HistorySchema()
		n := len(kindSchema.Columns)
		if len(rec.Fields) < n {
			return nil, &table.MalformedRowError{
				Row: rec.Row,
				Err: fmt.Errorf("%w: %s tick wants %d, got %d", table.ErrFieldCount, kind, n, len(rec.Fields)),
			}
		}
		row, err := dec.DecodeRow(rec.Fields[:n], kindSchema, rec.Row)
		if err != nil {
			return nil, err
		}

		wide := make(table.Row, len(schema.Columns))
		for i, p := range widen[kind] {
			wide[p] = row[i]
		}
		out.Append(wide)
	}
	out.SortByIndex()
	return out, nil
}

// positions maps every column of part to its position in whole.
func positions(whole, part table.Schema) []int {
	pos := make([]int, len(part.Columns))
	for i, c := range part.Columns {
		pos[i] = whole.Lookup(c.Name)
	}
	return pos
}
