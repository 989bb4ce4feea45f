// Package frame holds tabular datasets: named, typed columns parsed from
// delimited text with the type inference rules of pandas.read_csv.
package frame

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

// Kind is the inferred type of a column.
type Kind int

const (
	// KindFloat holds float64 values. Integer columns with missing cells
	// and columns with no values at all are float as well.
	KindFloat Kind = iota
	// KindInt holds int64 values.
	KindInt
	// KindBool holds True/False values.
	KindBool
	// KindString holds arbitrary text.
	KindString
)

// String returns the pandas dtype name for the kind.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float64"
	case KindInt:
		return "int64"
	case KindBool:
		return "bool"
	case KindString:
		return "object"
	default:
		return "unknown"
	}
}

// Numeric reports whether values of the kind convert to float64.
func (k Kind) Numeric() bool {
	return k != KindString
}

// Column is a named, typed sequence of cells with a missing mask.
type Column struct {
	name    string
	kind    Kind
	ints    []int64   // int cells
	nums    []float64 // float and bool (0/1) cells
	texts   []string  // string cells
	missing []bool
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the inferred column type.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.missing) }

// IsMissing reports whether cell i is missing.
func (c *Column) IsMissing(i int) bool { return c.missing[i] }

// MissingCount returns the number of missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.missing {
		if m {
			n++
		}
	}
	return n
}

// Value returns cell i as int64, float64, bool or string, or nil when the
// cell is missing.
func (c *Column) Value(i int) interface{} {
	if c.missing[i] {
		return nil
	}
	switch c.kind {
	case KindInt:
		return c.ints[i]
	case KindBool:
		return c.nums[i] == 1
	case KindString:
		return c.texts[i]
	default:
		return c.nums[i]
	}
}

// Float returns cell i as a float64. ok is false for string columns.
// Missing cells of numeric columns are NaN.
func (c *Column) Float(i int) (v float64, ok bool) {
	if c.kind == KindString {
		return 0, false
	}
	if c.missing[i] {
		return math.NaN(), true
	}
	if c.kind == KindInt {
		return float64(c.ints[i]), true
	}
	return c.nums[i], true
}

// Text returns cell i formatted as a label. Missing cells return "".
func (c *Column) Text(i int) string {
	if c.missing[i] {
		return ""
	}
	switch c.kind {
	case KindInt:
		return strconv.FormatInt(c.ints[i], 10)
	case KindBool:
		if c.nums[i] == 1 {
			return "True"
		}
		return "False"
	case KindString:
		return c.texts[i]
	default:
		return strconv.FormatFloat(c.nums[i], 'g', -1, 64)
	}
}

// Frame is an immutable table of equally long columns.
type Frame struct {
	columns []*Column
	index   map[string]int
	nRows   int
}

// New builds a frame from columns. All columns must have the same length
// and distinct names.
func New(columns ...*Column) (*Frame, error) {
	f := &Frame{columns: columns, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if i == 0 {
			f.nRows = c.Len()
		} else if c.Len() != f.nRows {
			return nil, errors.NewDimensionError("frame.New", f.nRows, c.Len(), 0)
		}
		if _, dup := f.index[c.name]; dup {
			return nil, errors.NewValidationError("columns", "duplicate column name", c.name)
		}
		f.index[c.name] = i
	}
	return f, nil
}

// NRows returns the number of rows.
func (f *Frame) NRows() int { return f.nRows }

// NCols returns the number of columns.
func (f *Frame) NCols() int { return len(f.columns) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.name
	}
	return names
}

// Column returns the named column.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// ColumnAt returns the i-th column.
func (f *Frame) ColumnAt(i int) *Column { return f.columns[i] }

// MissingCount returns the number of missing cells over the whole table.
func (f *Frame) MissingCount() int {
	n := 0
	for _, c := range f.columns {
		n += c.MissingCount()
	}
	return n
}

// Head returns the first min(n, NRows) rows.
func (f *Frame) Head(n int) []Record {
	if n > f.nRows {
		n = f.nRows
	}
	if n < 0 {
		n = 0
	}
	names := f.Columns()
	rows := make([]Record, n)
	for i := 0; i < n; i++ {
		values := make([]interface{}, len(f.columns))
		for j, c := range f.columns {
			values[j] = c.Value(i)
		}
		rows[i] = Record{names: names, values: values}
	}
	return rows
}

// Records returns every row.
func (f *Frame) Records() []Record {
	return f.Head(f.nRows)
}

// Matrix converts the named columns, or all columns when none are named,
// into a rows x columns matrix. Bool cells become 0 and 1, missing cells
// become NaN. A string column is a ValueError.
func (f *Frame) Matrix(columns ...string) (*mat.Dense, error) {
	if len(columns) == 0 {
		columns = f.Columns()
	}
	cols := make([]*Column, len(columns))
	for j, name := range columns {
		c, ok := f.Column(name)
		if !ok {
			return nil, errors.NewValidationError("columns", "unknown column", name)
		}
		if !c.kind.Numeric() {
			return nil, errors.NewValueErrorf("frame.Matrix",
				"could not convert string to float: %s", strconv.Quote(firstText(c)))
		}
		cols[j] = c
	}
	if f.nRows == 0 || len(cols) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}

	m := mat.NewDense(f.nRows, len(cols), nil)
	for j, c := range cols {
		for i := 0; i < f.nRows; i++ {
			v, _ := c.Float(i)
			m.Set(i, j, v)
		}
	}
	return m, nil
}

func firstText(c *Column) string {
	for i, t := range c.texts {
		if !c.missing[i] {
			return t
		}
	}
	return ""
}

// Record is one row. It marshals to a JSON object with keys in column
// order; missing and non-finite values are null.
type Record struct {
	names  []string
	values []interface{}
}

// Get returns the value of the named column.
func (r Record) Get(name string) (interface{}, bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Names returns the column names of the record.
func (r Record) Names() []string { return r.names }

// Values returns the cell values in column order.
func (r Record) Values() []interface{} { return r.values }

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		v := r.values[i]
		if fv, ok := v.(float64); ok && (math.IsNaN(fv) || math.IsInf(fv, 0)) {
			v = nil
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
