package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Sentinel errors raised by table operations.
var (
	ErrColumnNotFound = errors.New("column not found")
	ErrDuplicateName  = errors.New("duplicate column name")
	ErrLengthMismatch = errors.New("column length mismatch")
	ErrSampleSize     = errors.New("sample size exceeds available rows")
	ErrDuplicateID    = errors.New("identifier column contains duplicate values")
)

// Table is an immutable named table of typed columns of equal length.
type Table struct {
	name  string
	cols  []*Column
	index map[string]int
	nrows int
}

// New builds a table from columns, validating equal lengths and unique
// names.
func New(name string, cols ...*Column) (*Table, error) {
	t := &Table{name: name, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, exists := t.index[c.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, c.Name)
		}
		if i == 0 {
			t.nrows = c.Len()
		} else if c.Len() != t.nrows {
			return nil, fmt.Errorf("%w: column %s has %d rows, expected %d", ErrLengthMismatch, c.Name, c.Len(), t.nrows)
		}
		t.index[c.Name] = i
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// Name returns the table name
func (t *Table) Name() string { return t.name }

// NumRows returns the row count
func (t *Table) NumRows() int { return t.nrows }

// NumCols returns the column count
func (t *Table) NumCols() int { return len(t.cols) }

// ColumnNames returns the column names in declaration order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether a column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return t.cols[i], nil
}

// Select returns a new table containing only the named columns, in the
// given order. Fails when any named column is absent.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return New(t.name, cols...)
}

// Rename returns a new table with one column renamed.
func (t *Table) Rename(from, to string) (*Table, error) {
	if _, ok := t.index[from]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, from)
	}
	if from != to {
		if _, ok := t.index[to]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, to)
		}
	}
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		if c.Name == from {
			cols[i] = c.renamed(to)
		} else {
			cols[i] = c
		}
	}
	return New(t.name, cols...)
}

// WithColumn returns a new table with the column appended, or replaced when
// a column of the same name already exists.
func (t *Table) WithColumn(col *Column) (*Table, error) {
	if t.nrows != col.Len() && len(t.cols) > 0 {
		return nil, fmt.Errorf("%w: column %s has %d rows, expected %d", ErrLengthMismatch, col.Name, col.Len(), t.nrows)
	}
	cols := make([]*Column, len(t.cols))
	copy(cols, t.cols)
	if i, ok := t.index[col.Name]; ok {
		cols[i] = col
	} else {
		cols = append(cols, col)
	}
	return New(t.name, cols...)
}

// FilterRows returns a new table keeping rows where keep[i] is true.
func (t *Table) FilterRows(keep []bool) (*Table, error) {
	if len(keep) != t.nrows {
		return nil, fmt.Errorf("%w: predicate covers %d rows, table has %d", ErrLengthMismatch, len(keep), t.nrows)
	}
	var idx []int
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return t.Subset(idx), nil
}

// Subset returns a new table holding the rows at the given indices, in
// order. Indices may repeat, which is how bootstrap resamples are drawn.
func (t *Table) Subset(idx []int) *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.subset(idx)
	}
	out, _ := New(t.name, cols...)
	return out
}

// Sample draws a uniform random sample of n rows without replacement using
// the given seed. The same seed, size, and table always yield the same row
// set, and rows keep their original relative order. Fails when n exceeds
// the available rows.
func (t *Table) Sample(n int, seed int64) (*Table, error) {
	if n > t.nrows {
		return nil, fmt.Errorf("%w: requested %d of %d", ErrSampleSize, n, t.nrows)
	}
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(t.nrows)[:n]
	sort.Ints(idx)
	return t.Subset(idx), nil
}

// BootstrapIndices draws n row indices with replacement from rng. Exposed
// so resampling code shares one drawing convention.
func (t *Table) BootstrapIndices(rng *rand.Rand) []int {
	idx := make([]int, t.nrows)
	for i := range idx {
		idx[i] = rng.Intn(t.nrows)
	}
	return idx
}

// DropUnusedLevels returns a new table where every categorical column is
// re-coded over only its observed levels. Row count never changes.
func (t *Table) DropUnusedLevels() *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.dropUnusedLevels()
	}
	out, _ := New(t.name, cols...)
	return out
}

// CheckUniqueID verifies that the named column holds one distinct non-missing
// value per row. Cleaning pipelines call this after every filtering step.
func (t *Table) CheckUniqueID(name string) error {
	c, err := t.Column(name)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, t.nrows)
	for i := 0; i < t.nrows; i++ {
		v, ok := c.StringAt(i)
		if !ok {
			return fmt.Errorf("%w: row %d has missing identifier in %s", ErrDuplicateID, i, name)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%w: %s=%s", ErrDuplicateID, name, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// CompleteCases returns the indices of rows with no missing value in any of
// the named columns.
func (t *Table) CompleteCases(names ...string) ([]int, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	var idx []int
	for i := 0; i < t.nrows; i++ {
		complete := true
		for _, c := range cols {
			if c.IsMissing(i) {
				complete = false
				break
			}
		}
		if complete {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// WithName returns a shallow copy of the table under a new name.
func (t *Table) WithName(name string) *Table {
	out, _ := New(name, t.cols...)
	return out
}
