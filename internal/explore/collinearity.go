package explore

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"statpipe/internal/dataset"
)

// CorrMatrix holds a symmetric correlation matrix over named columns.
type CorrMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// At returns the correlation between columns i and j.
func (m *CorrMatrix) At(i, j int) float64 { return m.Values[i][j] }

// SpearmanMatrix computes pairwise Spearman rank correlations among the
// named numeric columns, using the rows that are complete across all of
// them.
func SpearmanMatrix(tbl *dataset.Table, names []string) (*CorrMatrix, error) {
	cols, idx, err := completeNumericMatrix(tbl, names)
	if err != nil {
		return nil, err
	}
	n := len(idx)
	if n < 3 {
		return nil, fmt.Errorf("spearman: need at least 3 complete rows, have %d", n)
	}

	ranks := make([][]float64, len(names))
	for j := range cols {
		ranks[j] = rankTransform(cols[j])
	}

	out := &CorrMatrix{Columns: names, Values: make([][]float64, len(names))}
	for i := range names {
		out.Values[i] = make([]float64, len(names))
		for j := range names {
			if i == j {
				out.Values[i][j] = 1
				continue
			}
			out.Values[i][j] = stat.Correlation(ranks[i], ranks[j], nil)
		}
	}
	return out, nil
}

// VIFResult reports the variance inflation factor of one predictor against
// the rest.
type VIFResult struct {
	Column string  `json:"column"`
	VIF    float64 `json:"vif"`
	// Flagged marks predictors whose VIF exceeds the policy threshold,
	// the conventional signal to drop or combine them.
	Flagged bool `json:"flagged"`
}

// VIF computes variance inflation factors for the named numeric columns by
// regressing each on the others. Threshold marks results as flagged; the
// conventional cutoff is 5.
func VIF(tbl *dataset.Table, names []string, threshold float64) ([]VIFResult, error) {
	if len(names) < 2 {
		return nil, fmt.Errorf("vif: need at least 2 predictors, have %d", len(names))
	}
	cols, idx, err := completeNumericMatrix(tbl, names)
	if err != nil {
		return nil, err
	}
	n := len(idx)
	if n <= len(names) {
		return nil, fmt.Errorf("vif: %d complete rows cannot support %d predictors", n, len(names))
	}

	out := make([]VIFResult, 0, len(names))
	for j := range names {
		r2 := auxiliaryR2(cols, j, n)
		v := math.Inf(1)
		if r2 < 1 {
			v = 1 / (1 - r2)
		}
		out = append(out, VIFResult{Column: names[j], VIF: v, Flagged: v > threshold})
	}
	return out, nil
}

// auxiliaryR2 regresses column j on the remaining columns plus an intercept
// and returns the R² of that auxiliary fit.
func auxiliaryR2(cols [][]float64, j, n int) float64 {
	p := len(cols) // intercept + others
	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		k := 1
		for c := range cols {
			if c == j {
				continue
			}
			x.Set(i, k, cols[c][i])
			k++
		}
		y.SetVec(i, cols[j][i])
	}

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return 1 // perfectly collinear
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)

	mean := stat.Mean(cols[j], nil)
	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		ssRes += r * r
		d := y.AtVec(i) - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

// completeNumericMatrix extracts the named numeric columns restricted to
// rows complete across all of them.
func completeNumericMatrix(tbl *dataset.Table, names []string) ([][]float64, []int, error) {
	for _, name := range names {
		col, err := tbl.Column(name)
		if err != nil {
			return nil, nil, err
		}
		if col.Type != dataset.Float && col.Type != dataset.Int {
			return nil, nil, fmt.Errorf("column %s is %s, not numeric", name, col.Type)
		}
	}
	idx, err := tbl.CompleteCases(names...)
	if err != nil {
		return nil, nil, err
	}
	cols := make([][]float64, len(names))
	for j, name := range names {
		col, _ := tbl.Column(name)
		cols[j] = make([]float64, len(idx))
		for k, i := range idx {
			v, _ := col.FloatAt(i)
			cols[j][k] = v
		}
	}
	return cols, idx, nil
}

// rankTransform returns average ranks (ties share the mean rank), the
// standard preparation for Spearman correlation.
func rankTransform(values []float64) []float64 {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[order[j+1]] == values[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}
	return ranks
}
