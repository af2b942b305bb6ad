package table

import (
	"fmt"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

// MovingAverage returns the simple moving average of a numeric column over
// window rows, one value per row. Until window rows have been seen the
// average covers the rows so far. Null cells are skipped.
func MovingAverage(t *Table, column string, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("invalid window %d", window)
	}
	c := t.Schema.Lookup(column)
	if c < 0 {
		return nil, fmt.Errorf("unknown column %q", column)
	}
	if !t.Schema.Columns[c].Type.Numeric() {
		return nil, fmt.Errorf("column %q is %s, not numeric", column, t.Schema.Columns[c].Type)
	}
	ma := movingaverage.New(window)
	out := make([]float64, 0, len(t.Rows))
	for _, r := range t.Rows {
		if f, ok := r[c].Float64(); ok {
			ma.Add(f)
		}
		out = append(out, ma.Avg())
	}
	return out, nil
}
