package explore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statpipe/internal/dataset"
)

func countyFixture(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.New("counties",
		dataset.NewFloatColumn("poverty", []float64{10, 12, 15, math.NaN(), 20, 8, 14, 11}),
		dataset.NewFloatColumn("uninsured", []float64{5, 6, 9, 7, 12, 4, 8, 6}),
		dataset.NewStringColumn("county", []string{"Adams", "Allen", "Ashland", "Athens", "Auglaize", "Belmont", "Brown", "Butler"}),
	)
	require.NoError(t, err)
	return tbl
}

func TestMissingness(t *testing.T) {
	tbl := countyFixture(t)
	rows := Missingness(tbl)
	require.Len(t, rows, 3)

	byCol := map[string]ColumnMissing{}
	for _, r := range rows {
		byCol[r.Column] = r
	}
	assert.Equal(t, 1, byCol["poverty"].Missing)
	assert.InDelta(t, 12.5, byCol["poverty"].Percent, 1e-9)
	assert.Equal(t, 0, byCol["uninsured"].Missing)
	assert.Equal(t, 8, byCol["county"].Total)
}

func TestDescribe(t *testing.T) {
	tbl := countyFixture(t)
	descs, err := Describe(tbl, "uninsured")
	require.NoError(t, err)
	require.Len(t, descs, 1)

	d := descs[0]
	assert.Equal(t, 8, d.N)
	assert.InDelta(t, 7.125, d.Mean, 1e-9)
	assert.Equal(t, 4.0, d.Min)
	assert.Equal(t, 12.0, d.Max)
	assert.GreaterOrEqual(t, d.Q3, d.Median)
	assert.GreaterOrEqual(t, d.Median, d.Q1)
}

func TestDescribeDefaultsToNumericColumns(t *testing.T) {
	tbl := countyFixture(t)
	descs, err := Describe(tbl)
	require.NoError(t, err)
	require.Len(t, descs, 2, "string column excluded")
	assert.Equal(t, 7, descs[0].N, "missing value excluded from poverty summary")
}

func TestDescribeNonNumeric(t *testing.T) {
	tbl := countyFixture(t)
	_, err := Describe(tbl, "county")
	assert.Error(t, err)
}

func TestSpearmanMatrix(t *testing.T) {
	// Perfect monotone relationship regardless of nonlinearity.
	n := 20
	x := make([]float64, n)
	ymono := make([]float64, n)
	yanti := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		ymono[i] = math.Exp(float64(i) / 5)
		yanti[i] = -float64(i * i)
	}
	tbl, err := dataset.New("mono",
		dataset.NewFloatColumn("x", x),
		dataset.NewFloatColumn("up", ymono),
		dataset.NewFloatColumn("down", yanti),
	)
	require.NoError(t, err)

	m, err := SpearmanMatrix(tbl, []string{"x", "up", "down"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, m.At(0, 1), 1e-9, "monotone increasing pair")
	assert.InDelta(t, -1.0, m.At(0, 2), 1e-9, "monotone decreasing pair")
	assert.InDelta(t, m.At(1, 2), m.At(2, 1), 1e-12, "symmetry")
}

func TestRankTransformTies(t *testing.T) {
	ranks := rankTransform([]float64{10, 20, 20, 30})
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks)
}

func TestVIF(t *testing.T) {
	n := 50
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	x3 := make([]float64, n)
	for i := 0; i < n; i++ {
		x1[i] = float64(i)
		x2[i] = float64(i)*2 + 0.001*float64(i%7) // near-copy of x1
		x3[i] = float64((i * 13) % 17)            // unrelated
	}
	tbl, err := dataset.New("collinear",
		dataset.NewFloatColumn("x1", x1),
		dataset.NewFloatColumn("x2", x2),
		dataset.NewFloatColumn("x3", x3),
	)
	require.NoError(t, err)

	results, err := VIF(tbl, []string{"x1", "x2", "x3"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byCol := map[string]VIFResult{}
	for _, r := range results {
		byCol[r.Column] = r
	}
	assert.True(t, byCol["x1"].Flagged, "near-duplicate predictors inflate")
	assert.True(t, byCol["x2"].Flagged)
	assert.False(t, byCol["x3"].Flagged, "independent predictor stays low")
	assert.Less(t, byCol["x3"].VIF, 2.0)
}

func TestVIFTooFewPredictors(t *testing.T) {
	tbl := countyFixture(t)
	_, err := VIF(tbl, []string{"poverty"}, 5)
	assert.Error(t, err)
}
