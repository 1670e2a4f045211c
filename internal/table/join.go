package table

import (
	"fmt"

	"github.com/fmuoria/resume-screener/internal/tree"
)

// LeftJoin keeps every row of left, in order, and attaches the columns of the
// first right row whose rightOn key equals the row's leftOn key. Keys compare
// by tree.Value.Key, so "42" and 42 match and null never does. Unmatched rows
// get null right-side cells.
//
// When both frames declare a column of the same name the left column is
// kept and the right one is discarded; joining on the same column name
// yields a single key column.
func LeftJoin(left, right *Frame, leftOn, rightOn string) (*Frame, error) {
	if !left.HasColumn(leftOn) {
		return nil, fmt.Errorf("left join key %q: %w", leftOn, ErrMissingColumn)
	}
	if !right.HasColumn(rightOn) {
		return nil, fmt.Errorf("right join key %q: %w", rightOn, ErrMissingColumn)
	}

	lookup := make(map[string]int, right.Len())
	for i := 0; i < right.Len(); i++ {
		k := right.Value(i, rightOn).Key()
		if k == "" {
			continue
		}
		if _, dup := lookup[k]; !dup {
			lookup[k] = i
		}
	}

	out := New(left.columns...)
	var carried []string
	for _, c := range right.columns {
		if out.HasColumn(c) {
			continue
		}
		out.AddColumn(c)
		carried = append(carried, c)
	}

	out.rows = make([][]tree.Value, left.Len())
	for i := 0; i < left.Len(); i++ {
		row := make([]tree.Value, len(out.columns))
		for j, c := range left.columns {
			row[j] = left.Value(i, c)
		}
		if ri, ok := lookup[left.Value(i, leftOn).Key()]; ok {
			for _, c := range carried {
				row[out.index[c]] = right.Value(ri, c)
			}
		}
		out.rows[i] = row
	}
	return out, nil
}
