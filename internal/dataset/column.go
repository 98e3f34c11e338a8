package dataset

import (
	"fmt"
	"math"
)

// ColumnType identifies the storage type of a column
type ColumnType string

const (
	// Float columns hold continuous numeric values
	Float ColumnType = "float"
	// Int columns hold integer values (counts, identifiers, years)
	Int ColumnType = "int"
	// String columns hold free-form text
	String ColumnType = "string"
	// Categorical columns hold coded values over an enumerated level set
	Categorical ColumnType = "categorical"
)

// Column is a single typed column. Exactly one of the value slices is
// populated according to Type; Missing marks rows whose value is absent.
type Column struct {
	Name    string
	Type    ColumnType
	Floats  []float64
	Ints    []int64
	Strings []string
	// Codes index into Levels for categorical columns; -1 marks missing.
	Codes   []int
	Levels  []string
	Missing []bool
}

// NewFloatColumn builds a float column; NaN values are recorded as missing.
func NewFloatColumn(name string, values []float64) *Column {
	missing := make([]bool, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			missing[i] = true
		}
	}
	return &Column{Name: name, Type: Float, Floats: values, Missing: missing}
}

// NewIntColumn builds an int column with no missing values.
func NewIntColumn(name string, values []int64) *Column {
	return &Column{Name: name, Type: Int, Ints: values, Missing: make([]bool, len(values))}
}

// NewStringColumn builds a string column; empty strings are recorded as
// missing.
func NewStringColumn(name string, values []string) *Column {
	missing := make([]bool, len(values))
	for i, v := range values {
		if v == "" {
			missing[i] = true
		}
	}
	return &Column{Name: name, Type: String, Strings: values, Missing: missing}
}

// NewCategoricalColumn builds a categorical column from string values and an
// explicit level set. Values outside the level set are recorded as missing;
// the caller is expected to have filtered them or to treat the missing count
// as a cleaning audit signal.
func NewCategoricalColumn(name string, values []string, levels []string) *Column {
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}
	codes := make([]int, len(values))
	missing := make([]bool, len(values))
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			codes[i] = -1
			missing[i] = true
			continue
		}
		codes[i] = code
	}
	lv := make([]string, len(levels))
	copy(lv, levels)
	return &Column{Name: name, Type: Categorical, Codes: codes, Levels: lv, Missing: missing}
}

// Len returns the number of rows in the column
func (c *Column) Len() int {
	switch c.Type {
	case Float:
		return len(c.Floats)
	case Int:
		return len(c.Ints)
	case String:
		return len(c.Strings)
	case Categorical:
		return len(c.Codes)
	}
	return 0
}

// IsMissing reports whether row i has no value
func (c *Column) IsMissing(i int) bool {
	return c.Missing[i]
}

// MissingCount returns the number of missing rows
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.Missing {
		if m {
			n++
		}
	}
	return n
}

// FloatAt returns the numeric value of row i. Int columns are widened to
// float64; categorical and string columns report false.
func (c *Column) FloatAt(i int) (float64, bool) {
	if c.Missing[i] {
		return 0, false
	}
	switch c.Type {
	case Float:
		return c.Floats[i], true
	case Int:
		return float64(c.Ints[i]), true
	}
	return 0, false
}

// StringAt returns the textual value of row i: the string itself, the
// categorical level label, or the formatted numeric value.
func (c *Column) StringAt(i int) (string, bool) {
	if c.Missing[i] {
		return "", false
	}
	switch c.Type {
	case String:
		return c.Strings[i], true
	case Categorical:
		return c.Levels[c.Codes[i]], true
	case Float:
		return fmt.Sprintf("%g", c.Floats[i]), true
	case Int:
		return fmt.Sprintf("%d", c.Ints[i]), true
	}
	return "", false
}

// LevelAt returns the level label of row i for categorical columns.
func (c *Column) LevelAt(i int) (string, bool) {
	if c.Type != Categorical || c.Missing[i] || c.Codes[i] < 0 {
		return "", false
	}
	return c.Levels[c.Codes[i]], true
}

// LevelCounts returns the observed row count per level, indexed like Levels.
func (c *Column) LevelCounts() []int {
	counts := make([]int, len(c.Levels))
	for i, code := range c.Codes {
		if !c.Missing[i] && code >= 0 {
			counts[code]++
		}
	}
	return counts
}

// subset returns a new column holding the rows at the given indices.
// Indices may repeat (bootstrap resampling).
func (c *Column) subset(idx []int) *Column {
	out := &Column{Name: c.Name, Type: c.Type, Missing: make([]bool, len(idx))}
	for j, i := range idx {
		out.Missing[j] = c.Missing[i]
	}
	switch c.Type {
	case Float:
		out.Floats = make([]float64, len(idx))
		for j, i := range idx {
			out.Floats[j] = c.Floats[i]
		}
	case Int:
		out.Ints = make([]int64, len(idx))
		for j, i := range idx {
			out.Ints[j] = c.Ints[i]
		}
	case String:
		out.Strings = make([]string, len(idx))
		for j, i := range idx {
			out.Strings[j] = c.Strings[i]
		}
	case Categorical:
		out.Codes = make([]int, len(idx))
		for j, i := range idx {
			out.Codes[j] = c.Codes[i]
		}
		out.Levels = make([]string, len(c.Levels))
		copy(out.Levels, c.Levels)
	}
	return out
}

// dropUnusedLevels returns a categorical column re-coded over only the
// levels that actually occur, preserving level order. Non-categorical
// columns are returned unchanged.
func (c *Column) dropUnusedLevels() *Column {
	if c.Type != Categorical {
		return c
	}
	counts := c.LevelCounts()
	remap := make([]int, len(c.Levels))
	var kept []string
	for i, n := range counts {
		if n > 0 {
			remap[i] = len(kept)
			kept = append(kept, c.Levels[i])
		} else {
			remap[i] = -1
		}
	}
	if len(kept) == len(c.Levels) {
		return c
	}
	codes := make([]int, len(c.Codes))
	for i, code := range c.Codes {
		if code < 0 {
			codes[i] = -1
		} else {
			codes[i] = remap[code]
		}
	}
	missing := make([]bool, len(c.Missing))
	copy(missing, c.Missing)
	return &Column{Name: c.Name, Type: Categorical, Codes: codes, Levels: kept, Missing: missing}
}

// renamed returns a shallow copy of the column under a new name.
func (c *Column) renamed(name string) *Column {
	out := *c
	out.Name = name
	return &out
}
