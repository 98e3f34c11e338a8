package resample

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statpipe/internal/dataset"
	"statpipe/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func regressionTable(t *testing.T, n int) *dataset.Table {
	t.Helper()
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		// Deterministic wiggle stands in for noise.
		y[i] = 1.5 + 0.8*x[i] + 3*math.Sin(float64(i)*1.7)
	}
	tbl, err := dataset.New("regression",
		dataset.NewFloatColumn("x", x),
		dataset.NewFloatColumn("y", y),
	)
	require.NoError(t, err)
	return tbl
}

func TestBootstrapDeterministic(t *testing.T) {
	tbl := regressionTable(t, 40)
	f := model.Formula{Outcome: "y", Terms: []model.Term{{Variable: "x"}}}
	fitOpts := model.Options{Family: model.Gaussian}
	opts := BootstrapOptions{Replicates: 50, Seed: 7}

	first, err := Bootstrap(context.Background(), testLogger(), tbl, f, fitOpts, opts)
	require.NoError(t, err)

	// Same seed, different worker count: bit-identical result.
	opts.Workers = 1
	second, err := Bootstrap(context.Background(), testLogger(), tbl, f, fitOpts, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A different seed draws different resamples.
	third, err := Bootstrap(context.Background(), testLogger(), tbl, f, fitOpts, BootstrapOptions{Replicates: 50, Seed: 8})
	require.NoError(t, err)
	assert.NotEqual(t, first.Optimism, third.Optimism)
}

func TestBootstrapCorrectsDownward(t *testing.T) {
	tbl := regressionTable(t, 40)
	f := model.Formula{Outcome: "y", Terms: []model.Term{{Variable: "x"}}}

	r, err := Bootstrap(context.Background(), testLogger(), tbl, f,
		model.Options{Family: model.Gaussian}, BootstrapOptions{Replicates: 100, Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, "R2", r.Statistic)
	assert.Equal(t, 100, r.Replicates)
	assert.Equal(t, 0, r.Failed)
	// In-sample performance is optimistic; the correction moves it down.
	assert.GreaterOrEqual(t, r.Optimism, 0.0)
	assert.InDelta(t, r.Apparent-r.Optimism, r.Corrected, 1e-12)
	assert.LessOrEqual(t, r.Corrected, r.Apparent)
}

func TestBootstrapBadModel(t *testing.T) {
	tbl := regressionTable(t, 10)
	f := model.Formula{Outcome: "y", Terms: []model.Term{{Variable: "missing"}}}

	_, err := Bootstrap(context.Background(), testLogger(), tbl, f,
		model.Options{Family: model.Gaussian}, BootstrapOptions{Replicates: 10, Seed: 1})
	assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
}

func TestSplitPartition(t *testing.T) {
	tbl := regressionTable(t, 20)

	train, test, err := Split(tbl, HoldoutOptions{TestFraction: 0.25, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, 15, train.NumRows())
	assert.Equal(t, 5, test.NumRows())

	// Every original x value lands on exactly one side.
	seen := map[float64]int{}
	for _, part := range []*dataset.Table{train, test} {
		col, err := part.Column("x")
		require.NoError(t, err)
		for i := 0; i < part.NumRows(); i++ {
			v, ok := col.FloatAt(i)
			require.True(t, ok)
			seen[v]++
		}
	}
	require.Len(t, seen, 20)
	for _, count := range seen {
		assert.Equal(t, 1, count)
	}

	// Same seed reproduces the same split.
	train2, test2, err := Split(tbl, HoldoutOptions{TestFraction: 0.25, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, trainValues(t, train), trainValues(t, train2))
	assert.Equal(t, trainValues(t, test), trainValues(t, test2))
}

func trainValues(t *testing.T, tbl *dataset.Table) []float64 {
	t.Helper()
	col, err := tbl.Column("x")
	require.NoError(t, err)
	out := make([]float64, tbl.NumRows())
	for i := range out {
		v, ok := col.FloatAt(i)
		require.True(t, ok)
		out[i] = v
	}
	return out
}

func TestSplitDegenerateFraction(t *testing.T) {
	tbl := regressionTable(t, 4)
	_, _, err := Split(tbl, HoldoutOptions{TestFraction: 0.01, Seed: 1})
	assert.Error(t, err)
}

func TestHoldout(t *testing.T) {
	tbl := regressionTable(t, 40)
	f := model.Formula{Outcome: "y", Terms: []model.Term{{Variable: "x"}}}

	r, err := Holdout(context.Background(), testLogger(), tbl, f,
		model.Options{Family: model.Gaussian}, HoldoutOptions{TestFraction: 0.25, Seed: 5})
	require.NoError(t, err)

	assert.Equal(t, "R2", r.Statistic)
	assert.Equal(t, 30, r.TrainN)
	assert.Equal(t, 10, r.TestN)
	// A strong linear signal survives the split.
	assert.Greater(t, r.Train, 0.5)
	assert.Greater(t, r.Test, 0.5)
}

func TestValidateRunsRequestedProcedures(t *testing.T) {
	tbl := regressionTable(t, 40)
	f := model.Formula{Outcome: "y", Terms: []model.Term{{Variable: "x"}}}
	fitOpts := model.Options{Family: model.Gaussian}

	report, err := Validate(context.Background(), testLogger(), tbl, f, fitOpts, Plan{
		Bootstrap: &BootstrapOptions{Replicates: 20, Seed: 2},
		Holdout:   &HoldoutOptions{TestFraction: 0.2, Seed: 2},
	})
	require.NoError(t, err)
	require.NotNil(t, report.Bootstrap)
	require.NotNil(t, report.Holdout)
	assert.Equal(t, "y ~ x", report.Formula)
	assert.Equal(t, "gaussian", report.Family)

	// A nil plan member skips the procedure.
	report, err = Validate(context.Background(), testLogger(), tbl, f, fitOpts, Plan{})
	require.NoError(t, err)
	assert.Nil(t, report.Bootstrap)
	assert.Nil(t, report.Holdout)
}

func TestNilLoggerDefaults(t *testing.T) {
	tbl := regressionTable(t, 40)
	f := model.Formula{Outcome: "y", Terms: []model.Term{{Variable: "x"}}}
	fitOpts := model.Options{Family: model.Gaussian}

	b, err := Bootstrap(context.Background(), nil, tbl, f, fitOpts, BootstrapOptions{Replicates: 20, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, 20, b.Replicates)

	h, err := Holdout(context.Background(), nil, tbl, f, fitOpts, HoldoutOptions{Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, 30, h.TrainN)
}
