// Package tabular flattens labelled arrays into long-format tables and
// stores them as Parquet files.
package tabular

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/fishmip/ard-go/grid"
)

// ValueColumn is the name of the column holding array values
const ValueColumn = "vals"

// index columns, in output order
var indexColumns = []string{"lat", "lon", "depth"}

// flattenedDims may be present in a flattened array without a column of
// their own. Their rows stay distinct only through row order.
var flattenedDims = []string{"month"}

// Column is a named column of either float64 or string values
type Column struct {
	Name    string
	Floats  []float64
	Strings []string
}

// Len is the number of values in the column
func (c *Column) Len() int {
	if c.Strings != nil {
		return len(c.Strings)
	}
	return len(c.Floats)
}

// IsText reports whether the column holds strings
func (c *Column) IsText() bool { return c.Strings != nil }

// Table is an ordered set of equal-length columns
type Table struct {
	Columns []*Column
}

// NumRows is the length of the table's columns
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Names lists column names in order
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column called name, or nil
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FromDataArray flattens an array with lat, lon and depth dimensions, and
// optionally month, into one row per non-missing cell. Rows follow the
// array's C order. Columns are exactly lat, lon, depth and ValueColumn; a
// month dimension contributes rows but no column.
func FromDataArray(da *grid.DataArray) (*Table, error) {
	known := map[string]bool{}
	for _, d := range append(indexColumns, flattenedDims...) {
		known[d] = true
	}
	for _, d := range da.Dims {
		if !known[d] {
			return nil, fmt.Errorf("cannot flatten dimension %q", d)
		}
	}

	var cols []*Column
	axes := map[string]int{}
	for _, name := range indexColumns {
		axis, err := da.AxisNum(name)
		if err != nil {
			return nil, err
		}
		if coord, ok := da.Coords[name]; ok && coord.IsLabel() {
			return nil, fmt.Errorf("dimension %q has label coordinates", name)
		}
		axes[name] = axis
		cols = append(cols, &Column{Name: name, Floats: []float64{}})
	}
	vals := &Column{Name: ValueColumn, Floats: []float64{}}

	da.Each(func(idx []int, v float64) {
		if math.IsNaN(v) {
			return
		}
		for _, c := range cols {
			c.Floats = append(c.Floats, da.Coord(c.Name, idx[axes[c.Name]]))
		}
		vals.Floats = append(vals.Floats, v)
	})
	return &Table{Columns: append(cols, vals)}, nil
}

// WithConstants appends one column per attribute, sorted by name, repeating
// the attribute's value on every row. Numbers become float64 columns,
// strings string columns, and anything else its JSON encoding.
func (t *Table) WithConstants(attrs map[string]interface{}) error {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := t.NumRows()
	for _, k := range keys {
		if t.Column(k) != nil {
			return fmt.Errorf("attribute %q clashes with a column", k)
		}
		c := &Column{Name: k}
		switch v := attrs[k].(type) {
		case float64, float32, int, int16, int32, int64, uint8:
			f, _ := toFloat(v)
			c.Floats = repeatFloat(f, n)
		case string:
			c.Strings = repeatString(v, n)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encoding attribute %q: %w", k, err)
			}
			c.Strings = repeatString(string(data), n)
		}
		t.Columns = append(t.Columns, c)
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	}
	return 0, false
}

func repeatFloat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func repeatString(v string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}
	return out
}
