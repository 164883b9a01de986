package record

import (
	"errors"
	"fmt"
)

// ErrRaggedRow is returned by NewFrame when a row does not have one value per column.
var ErrRaggedRow = errors.New("row width does not match header")

// ErrDuplicateColumn is returned when a header repeats a column name.
var ErrDuplicateColumn = errors.New("duplicate column")

// Frame is an ordered set of equally long columns.
type Frame struct {
	names []string
	index map[string]int
	cols  [][]Value
	n     int
}

// NewFrame builds a frame from a header and row-major values.
func NewFrame(names []string, rows [][]Value) (*Frame, error) {
	f := &Frame{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
		cols:  make([][]Value, len(names)),
		n:     len(rows),
	}
	copy(f.names, names)
	for i, name := range names {
		if _, dup := f.index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		f.index[name] = i
		f.cols[i] = make([]Value, len(rows))
	}
	for r, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("%w: row %d has %d values, header has %d", ErrRaggedRow, r, len(row), len(names))
		}
		for c, v := range row {
			f.cols[c][r] = v
		}
	}
	return f, nil
}

// FromColumns builds a frame from named columns. All columns must share a length.
func FromColumns(names []string, cols [][]Value) (*Frame, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrRaggedRow, len(names), len(cols))
	}
	f := &Frame{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
		cols:  make([][]Value, len(cols)),
	}
	copy(f.names, names)
	for i, name := range names {
		if _, dup := f.index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		if i == 0 {
			f.n = len(cols[i])
		} else if len(cols[i]) != f.n {
			return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrRaggedRow, name, len(cols[i]), f.n)
		}
		f.index[name] = i
		f.cols[i] = cols[i]
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.n }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the values of a column. The returned slice is shared and
// must not be modified.
func (f *Frame) Column(name string) ([]Value, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Value returns one cell. Missing columns read as null.
func (f *Frame) Value(row int, name string) Value {
	i, ok := f.index[name]
	if !ok || row < 0 || row >= f.n {
		return Null()
	}
	return f.cols[i][row]
}

// Row returns the values of one row keyed by column name.
func (f *Frame) Row(row int) map[string]Value {
	out := make(map[string]Value, len(f.names))
	for i, name := range f.names {
		out[name] = f.cols[i][row]
	}
	return out
}

// With returns a frame where column name holds values. An existing column of
// the same name is replaced in place; a new one is appended.
func (f *Frame) With(name string, values []Value) (*Frame, error) {
	if len(values) != f.n {
		return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrRaggedRow, name, len(values), f.n)
	}
	out := f.shallow()
	if i, ok := out.index[name]; ok {
		out.cols[i] = values
		return out, nil
	}
	out.index[name] = len(out.names)
	out.names = append(out.names, name)
	out.cols = append(out.cols, values)
	return out, nil
}

// WithMask stores a mask as a boolean column.
func (f *Frame) WithMask(name string, m Mask) (*Frame, error) {
	values := make([]Value, len(m))
	for i, b := range m {
		values[i] = Bool(b)
	}
	return f.With(name, values)
}

// Without returns a frame with the named columns removed. Unknown names are ignored.
func (f *Frame) Without(names ...string) *Frame {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := &Frame{index: make(map[string]int, len(f.names)), n: f.n}
	for i, name := range f.names {
		if _, ok := drop[name]; ok {
			continue
		}
		out.index[name] = len(out.names)
		out.names = append(out.names, name)
		out.cols = append(out.cols, f.cols[i])
	}
	return out
}

// Select returns the rows whose positions are set in m, preserving order.
func (f *Frame) Select(m Mask) *Frame {
	out := &Frame{
		names: f.Columns(),
		index: make(map[string]int, len(f.names)),
		cols:  make([][]Value, len(f.cols)),
	}
	for name, i := range f.index {
		out.index[name] = i
	}
	for c := range f.cols {
		col := make([]Value, 0, m.Count())
		for r := 0; r < f.n && r < len(m); r++ {
			if m[r] {
				col = append(col, f.cols[c][r])
			}
		}
		out.cols[c] = col
	}
	out.n = m.Count()
	return out
}

func (f *Frame) shallow() *Frame {
	out := &Frame{
		names: make([]string, len(f.names), len(f.names)+1),
		index: make(map[string]int, len(f.names)+1),
		cols:  make([][]Value, len(f.cols), len(f.cols)+1),
		n:     f.n,
	}
	copy(out.names, f.names)
	copy(out.cols, f.cols)
	for k, v := range f.index {
		out.index[k] = v
	}
	return out
}
