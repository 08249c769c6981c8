// Package tabular implements the observation table consumed by the
// HMM core: a fixed number of rows (ordered genomic positions) with
// named integer columns (one per observed dimension).  Row order is
// semantically significant and the row count never changes after
// construction; the only permitted shape change is appending a
// synthetic column, which happens during state sampling.
package tabular

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Table holds ordered integer columns of equal, fixed length.
type Table struct {
	rows  int
	names []string
	cols  map[string][]int
}

// New returns an empty (zero-filled) table with the given row count
// and column names.
func New(rows int, names ...string) (*Table, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("tabular: row count must be positive, got %d", rows)
	}
	t := &Table{
		rows: rows,
		cols: make(map[string][]int, len(names)),
	}
	for _, name := range names {
		if _, ok := t.cols[name]; ok {
			return nil, fmt.Errorf("tabular: duplicate column %q", name)
		}
		t.names = append(t.names, name)
		t.cols[name] = make([]int, rows)
	}
	return t, nil
}

// FromDataFrame builds a table from a gota dataframe, truncating
// every column to integers.  This is the hand-over point from the
// preprocessing side, which assembles per-bin coverage counts as a
// dataframe.
func FromDataFrame(df dataframe.DataFrame) (*Table, error) {
	if df.Nrow() == 0 {
		return nil, fmt.Errorf("tabular: dataframe has no rows")
	}
	t, err := New(df.Nrow(), df.Names()...)
	if err != nil {
		return nil, err
	}
	for j, name := range df.Names() {
		col := t.cols[name]
		for i := 0; i < df.Nrow(); i++ {
			v, err := df.Elem(i, j).Int()
			if err != nil {
				return nil, fmt.Errorf("tabular: column %q row %d: %w", name, i, err)
			}
			col[i] = v
		}
	}
	return t, nil
}

// DataFrame exports the table as a gota dataframe of Int series.
func (t *Table) DataFrame() dataframe.DataFrame {
	ss := make([]series.Series, len(t.names))
	for j, name := range t.names {
		ss[j] = series.New(t.cols[name], series.Int, name)
	}
	return dataframe.New(ss...)
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int { return t.rows }

// ColumnCount returns the number of columns.
func (t *Table) ColumnCount() int { return len(t.names) }

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for j, n := range t.names {
		if n == name {
			return j
		}
	}
	return -1
}

// Value returns the integer at (row, col).
func (t *Table) Value(row, col int) int {
	return t.cols[t.names[col]][row]
}

// SetValue overwrites the integer at (row, col).
func (t *Table) SetValue(row, col, v int) {
	t.cols[t.names[col]][row] = v
}

// Column returns the backing slice of the given column.  Callers may
// mutate entries but must not resize it.
func (t *Table) Column(col int) []int {
	return t.cols[t.names[col]]
}

// EnsureColumn returns the index of the named column, appending a
// zero-filled one if it does not exist yet.
func (t *Table) EnsureColumn(name string) int {
	if j := t.ColumnIndex(name); j >= 0 {
		return j
	}
	t.names = append(t.names, name)
	t.cols[name] = make([]int, t.rows)
	return len(t.names) - 1
}
