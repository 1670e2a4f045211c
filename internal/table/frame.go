// Package table is a small column-ordered frame of tree.Value cells with the
// left-join and projection operations the dataset pipeline needs.
package table

import (
	"errors"
	"fmt"

	"github.com/fmuoria/resume-screener/internal/tree"
)

// ErrMissingColumn is returned when an operation names a column that is not
// part of the frame's schema.
var ErrMissingColumn = errors.New("column not found")

// Frame is a set of rows sharing an ordered column schema. A column can be
// declared without any row carrying a value for it; its cells are null.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]tree.Value
}

// New returns an empty frame declaring the given columns.
func New(columns ...string) *Frame {
	f := &Frame{index: make(map[string]int)}
	for _, c := range columns {
		f.AddColumn(c)
	}
	return f
}

// AddColumn declares a column if it is not already present and returns its
// position.
func (f *Frame) AddColumn(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	f.columns = append(f.columns, name)
	f.index[name] = len(f.columns) - 1
	return len(f.columns) - 1
}

// Columns returns a copy of the column order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// HasColumn reports whether name is declared.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.rows) }

// Append adds a row. Members naming undeclared columns extend the schema.
func (f *Frame) Append(members ...tree.Member) {
	for _, m := range members {
		f.AddColumn(m.Key)
	}
	row := make([]tree.Value, len(f.columns))
	for _, m := range members {
		row[f.index[m.Key]] = m.Value
	}
	f.rows = append(f.rows, row)
}

// Value returns the cell at row i for column col; null when the column is
// unknown or the row predates the column.
func (f *Frame) Value(i int, col string) tree.Value {
	c, ok := f.index[col]
	if !ok || i < 0 || i >= len(f.rows) {
		return tree.Value{}
	}
	row := f.rows[i]
	if c >= len(row) {
		return tree.Value{}
	}
	return row[c]
}

// Row returns row i as a Record.
func (f *Frame) Row(i int) Record {
	return Record{frame: f, i: i}
}

// Records returns every row as a Record.
func (f *Frame) Records() []Record {
	out := make([]Record, f.Len())
	for i := range out {
		out[i] = f.Row(i)
	}
	return out
}

// Set overwrites a cell, declaring the column if needed.
func (f *Frame) Set(i int, col string, v tree.Value) {
	c := f.AddColumn(col)
	row := f.rows[i]
	if c >= len(row) {
		grown := make([]tree.Value, len(f.columns))
		copy(grown, row)
		row = grown
		f.rows[i] = row
	}
	row[c] = v
}

// Project returns a new frame holding exactly cols, in that order. Any
// column outside the schema is an error wrapping ErrMissingColumn.
func (f *Frame) Project(cols ...string) (*Frame, error) {
	var missing []string
	for _, c := range cols {
		if !f.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("project %v: %w", missing, ErrMissingColumn)
	}

	out := New(cols...)
	out.rows = make([][]tree.Value, len(f.rows))
	for i := range f.rows {
		row := make([]tree.Value, len(cols))
		for j, c := range cols {
			row[j] = f.Value(i, c)
		}
		out.rows[i] = row
	}
	return out, nil
}

// Filter returns a new frame with the same schema and the rows keep accepts.
func (f *Frame) Filter(keep func(Record) bool) *Frame {
	out := New(f.columns...)
	for i := range f.rows {
		if keep(f.Row(i)) {
			out.rows = append(out.rows, f.rows[i])
		}
	}
	return out
}

// Head returns at most n leading rows; n <= 0 returns every row.
func (f *Frame) Head(n int) *Frame {
	if n <= 0 || n >= len(f.rows) {
		return f
	}
	out := New(f.columns...)
	out.rows = f.rows[:n]
	return out
}

// Distinct returns the unique non-empty texts of a column in first-seen
// order.
func (f *Frame) Distinct(col string) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range f.rows {
		s := f.Value(i, col).Text()
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Record is a read view over one row.
type Record struct {
	frame *Frame
	i     int
}

// Get returns the cell for col.
func (r Record) Get(col string) tree.Value { return r.frame.Value(r.i, col) }

// Text returns the textual form of the cell for col.
func (r Record) Text(col string) string { return r.Get(col).Text() }

// Index returns the row position within its frame.
func (r Record) Index() int { return r.i }

// Members returns the row as ordered (column, value) pairs.
func (r Record) Members() []tree.Member {
	cols := r.frame.columns
	out := make([]tree.Member, len(cols))
	for j, c := range cols {
		out[j] = tree.Member{Key: c, Value: r.frame.Value(r.i, c)}
	}
	return out
}
