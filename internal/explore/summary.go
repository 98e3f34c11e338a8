package explore

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"statpipe/internal/dataset"
)

// ColumnMissing reports the missing-value count for one column.
type ColumnMissing struct {
	Column  string             `json:"column"`
	Type    dataset.ColumnType `json:"type"`
	Missing int                `json:"missing"`
	Total   int                `json:"total"`
	Percent float64            `json:"percent"`
}

// Missingness tabulates missing values for every column of the table.
func Missingness(tbl *dataset.Table) []ColumnMissing {
	out := make([]ColumnMissing, 0, tbl.NumCols())
	for _, name := range tbl.ColumnNames() {
		col, _ := tbl.Column(name)
		m := col.MissingCount()
		total := col.Len()
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(m) / float64(total)
		}
		out = append(out, ColumnMissing{
			Column:  name,
			Type:    col.Type,
			Missing: m,
			Total:   total,
			Percent: pct,
		})
	}
	return out
}

// Description summarizes the distribution of one numeric column over its
// non-missing values.
type Description struct {
	Column string  `json:"column"`
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Describe summarizes the named numeric columns. With no names it covers
// every float and int column in the table.
func Describe(tbl *dataset.Table, names ...string) ([]Description, error) {
	if len(names) == 0 {
		for _, n := range tbl.ColumnNames() {
			col, _ := tbl.Column(n)
			if col.Type == dataset.Float || col.Type == dataset.Int {
				names = append(names, n)
			}
		}
	}

	out := make([]Description, 0, len(names))
	for _, name := range names {
		values, err := numericValues(tbl, name)
		if err != nil {
			return nil, err
		}
		d := Description{Column: name, N: len(values)}
		if len(values) > 0 {
			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)
			d.Mean, d.SD = stat.MeanStdDev(values, nil)
			d.Min = sorted[0]
			d.Max = sorted[len(sorted)-1]
			d.Q1 = stat.Quantile(0.25, stat.Empirical, sorted, nil)
			d.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
			d.Q3 = stat.Quantile(0.75, stat.Empirical, sorted, nil)
		}
		out = append(out, d)
	}
	return out, nil
}

// numericValues extracts the non-missing numeric values of a column.
func numericValues(tbl *dataset.Table, name string) ([]float64, error) {
	col, err := tbl.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Type != dataset.Float && col.Type != dataset.Int {
		return nil, fmt.Errorf("column %s is %s, not numeric", name, col.Type)
	}
	var values []float64
	for i := 0; i < col.Len(); i++ {
		if v, ok := col.FloatAt(i); ok {
			values = append(values, v)
		}
	}
	return values, nil
}
