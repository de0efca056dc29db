// Package frame provides the column-oriented spatial table the enrichment
// pipeline operates on. A Frame holds ordered, nullable columns plus at most
// one geometry column (conventionally SHAPE) carrying go-geom geometries.
package frame

import (
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// GeometryColumn is the universal name of the geometry column.
const GeometryColumn = "SHAPE"

// Frame is a column-oriented table. Cells are any of string, int64, float64,
// bool, geom.T, or nil for null. All columns have the same length.
type Frame struct {
	cols    []string
	data    map[string][]any
	geomCol string
}

// New creates an empty Frame with no columns.
func New() *Frame {
	return &Frame{data: map[string][]any{}}
}

// FromColumns builds a Frame from ordered column names and their values.
// All value slices must have equal length.
func FromColumns(names []string, values [][]any) (*Frame, error) {
	if len(names) != len(values) {
		return nil, eris.Errorf("frame: %d names for %d columns", len(names), len(values))
	}
	f := New()
	for i, name := range names {
		if err := f.AddColumn(name, values[i]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return len(f.data[f.cols[0]])
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.cols))
	copy(out, f.cols)
	return out
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Col returns the values of the named column.
func (f *Frame) Col(name string) ([]any, error) {
	vals, ok := f.data[name]
	if !ok {
		return nil, eris.Errorf("frame: no column %q", name)
	}
	return vals, nil
}

// AddColumn appends a new column. The length must match existing columns.
func (f *Frame) AddColumn(name string, values []any) error {
	if _, ok := f.data[name]; ok {
		return eris.Errorf("frame: column %q already exists", name)
	}
	if len(f.cols) > 0 && len(values) != f.NumRows() {
		return eris.Errorf("frame: column %q has %d values, frame has %d rows", name, len(values), f.NumRows())
	}
	f.cols = append(f.cols, name)
	f.data[name] = values
	return nil
}

// SetColumn replaces the values of an existing column.
func (f *Frame) SetColumn(name string, values []any) error {
	if _, ok := f.data[name]; !ok {
		return eris.Errorf("frame: no column %q", name)
	}
	if len(values) != f.NumRows() {
		return eris.Errorf("frame: column %q has %d values, frame has %d rows", name, len(values), f.NumRows())
	}
	f.data[name] = values
	return nil
}

// Rename changes a column name in place.
func (f *Frame) Rename(old, new string) error {
	vals, ok := f.data[old]
	if !ok {
		return eris.Errorf("frame: no column %q", old)
	}
	if old == new {
		return nil
	}
	if _, ok := f.data[new]; ok {
		return eris.Errorf("frame: column %q already exists", new)
	}
	for i, c := range f.cols {
		if c == old {
			f.cols[i] = new
			break
		}
	}
	delete(f.data, old)
	f.data[new] = vals
	if f.geomCol == old {
		f.geomCol = new
	}
	return nil
}

// SetColumnNames renames every column positionally.
func (f *Frame) SetColumnNames(names []string) error {
	if len(names) != len(f.cols) {
		return eris.Errorf("frame: %d names for %d columns", len(names), len(f.cols))
	}
	data := make(map[string][]any, len(names))
	for i, old := range f.cols {
		if _, dup := data[names[i]]; dup {
			return eris.Errorf("frame: duplicate column name %q", names[i])
		}
		data[names[i]] = f.data[old]
		if f.geomCol == old {
			f.geomCol = names[i]
		}
	}
	f.cols = append(f.cols[:0], names...)
	f.data = data
	return nil
}

// Drop removes the named columns. Missing names are ignored.
func (f *Frame) Drop(names ...string) {
	for _, name := range names {
		if _, ok := f.data[name]; !ok {
			continue
		}
		delete(f.data, name)
		for i, c := range f.cols {
			if c == name {
				f.cols = append(f.cols[:i], f.cols[i+1:]...)
				break
			}
		}
		if f.geomCol == name {
			f.geomCol = ""
		}
	}
}

// Fill replaces nulls in the named column with the given value.
func (f *Frame) Fill(name string, value any) error {
	vals, ok := f.data[name]
	if !ok {
		return eris.Errorf("frame: no column %q", name)
	}
	for i, v := range vals {
		if v == nil {
			vals[i] = value
		}
	}
	return nil
}

// SetGeometry designates the named column as the geometry column. Every
// non-null cell must hold a geom.T.
func (f *Frame) SetGeometry(name string) error {
	vals, ok := f.data[name]
	if !ok {
		return eris.Errorf("frame: no column %q", name)
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		if _, ok := v.(geom.T); !ok {
			return eris.Errorf("frame: column %q row %d is not a geometry", name, i)
		}
	}
	f.geomCol = name
	return nil
}

// Geometry returns the name of the geometry column, or "" if none is set.
func (f *Frame) Geometry() string {
	return f.geomCol
}

// Validate checks that the geometry column is set and holds geometries.
func (f *Frame) Validate() error {
	if f.geomCol == "" {
		return eris.New("frame: no geometry column set")
	}
	return f.SetGeometry(f.geomCol)
}

// Copy returns a deep copy of the frame structure. Cell values are shared;
// geometry objects are not cloned.
func (f *Frame) Copy() *Frame {
	out := &Frame{
		cols:    append([]string(nil), f.cols...),
		data:    make(map[string][]any, len(f.cols)),
		geomCol: f.geomCol,
	}
	for name, vals := range f.data {
		out.data[name] = append([]any(nil), vals...)
	}
	return out
}

// Key canonicalizes a cell value for joining, so that 1001, 1001.0 and
// "1001" meet on the same key. Nulls render as "", same as an empty string;
// callers that must keep them apart check the cell for nil first.
func Key(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Float converts a numeric cell to float64. The second return is false for
// nulls and values that cannot be read as a number.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
