package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statpipe/internal/cleanse"
	"statpipe/internal/config"
	"statpipe/internal/model"
	"statpipe/internal/resample"
	"statpipe/internal/selection"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Paths.ReportsDir = t.TempDir()
	return cfg
}

// writeFixtureCSV writes a small fuel-economy style dataset: 40 rows from
// 2008 and 20 from 1999, unique vehicle ids throughout.
func writeFixtureCSV(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,year,class,displ,hwy\n")
	classes := []string{"compact", "suv", "pickup"}
	row := 0
	for _, year := range []int{2008, 1999} {
		n := 40
		if year == 1999 {
			n = 20
		}
		for i := 0; i < n; i++ {
			displ := 1.6 + 0.1*float64(row%30)
			hwy := 44 - 5*displ + float64(row%3)
			fmt.Fprintf(&b, "v%03d,%d,%s,%.1f,%.1f\n", row, year, classes[row%3], displ, hwy)
			row++
		}
	}
	path := filepath.Join(t.TempDir(), "vehicles.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestParseSpec(t *testing.T) {
	doc := `
title: highway economy
dataset:
  source: vehicles.csv
clean:
  filters:
    - column: year
      op: in
      values: ["2008"]
  id_column: id
models:
  - name: linear
    formula:
      outcome: hwy
      terms:
        - var: displ
    options:
      family: gaussian
validation:
  holdout:
    test_fraction: 0.25
    seed: 11
`
	spec, err := ParseSpec([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "highway economy", spec.Title)
	assert.Equal(t, "vehicles.csv", spec.Dataset.Source)
	require.NotNil(t, spec.Clean)
	assert.Equal(t, "id", spec.Clean.IDColumn)
	require.Len(t, spec.Models, 1)
	assert.Equal(t, model.Gaussian, spec.Models[0].Options.Family)
	require.NotNil(t, spec.Validation.Holdout)
	assert.Equal(t, int64(11), spec.Validation.Holdout.Seed)
}

func TestParseSpecRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing title", "dataset:\n  source: a.csv\nmodels:\n  - name: m\n    formula:\n      outcome: y\n      terms: [{var: x}]\n    options: {family: gaussian}\n"},
		{"missing source", "title: t\ndataset: {}\nmodels:\n  - name: m\n    formula:\n      outcome: y\n      terms: [{var: x}]\n    options: {family: gaussian}\n"},
		{"no models or survival", "title: t\ndataset:\n  source: a.csv\n"},
		{"malformed yaml", "title: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpec([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	source := writeFixtureCSV(t)
	year := "2008"

	spec := &AnalysisSpec{
		Title:   "highway economy",
		Dataset: DatasetSpec{Source: source},
		Clean: &cleanse.Spec{
			Filters: []cleanse.FilterRule{
				{Column: "year", Op: cleanse.OpIn, Values: []string{year}},
			},
			Sample:   &cleanse.SampleRule{N: 30, Seed: 42},
			IDColumn: "id",
		},
		Explore: ExploreSpec{Describe: []string{"displ", "hwy"}},
		Models: []selection.Candidate{
			{
				Name:    "linear",
				Formula: model.Formula{Outcome: "hwy", Terms: []model.Term{{Variable: "displ"}}},
				Options: model.Options{Family: model.Gaussian},
			},
		},
		Validation: &resample.Plan{
			Holdout: &resample.HoldoutOptions{TestFraction: 0.25, Seed: 7},
		},
	}

	cfg := testConfig(t)
	state := &State{Config: cfg, Spec: spec}
	mgr := NewManager(testLogger(), StandardSteps(testLogger())...)

	results, err := mgr.Run(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, results, 7)
	for _, r := range results {
		assert.Equal(t, StatusSuccess, r.Status, r.ID)
	}

	// The filter kept the 2008 rows, the sample reduced them to 30.
	assert.Equal(t, 30, state.Clean.NumRows())
	require.Len(t, state.Audits, 2)
	assert.Equal(t, 60, state.Audits[0].Before)
	assert.Equal(t, 40, state.Audits[0].After)
	assert.Equal(t, 30, state.Audits[1].After)

	require.NotNil(t, state.Document.Comparison)
	assert.Equal(t, "linear", state.Document.Comparison.Best)
	require.Len(t, state.Document.Validations, 1)
	require.NotNil(t, state.Document.Validations[0].Holdout)

	// The report bundle landed in the run directory.
	require.NotEmpty(t, state.RunDir)
	_, err = os.Stat(filepath.Join(state.RunDir, "manifest.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(state.RunDir, "report.html"))
	assert.NoError(t, err)
}

func TestPipelineUsesCache(t *testing.T) {
	source := writeFixtureCSV(t)
	cache := filepath.Join(t.TempDir(), "vehicles.gob")

	spec := &AnalysisSpec{
		Title:   "cached run",
		Dataset: DatasetSpec{Source: source, Cache: cache},
		Models: []selection.Candidate{
			{
				Name:    "linear",
				Formula: model.Formula{Outcome: "hwy", Terms: []model.Term{{Variable: "displ"}}},
				Options: model.Options{Family: model.Gaussian},
			},
		},
	}

	cfg := testConfig(t)
	state := &State{Config: cfg, Spec: spec}
	load := &LoadStep{logger: testLogger()}
	require.NoError(t, load.Run(context.Background(), state))
	require.FileExists(t, cache)
	firstRows := state.Raw.NumRows()

	// Remove the source; the cache alone must carry the second load.
	require.NoError(t, os.Remove(source))
	state2 := &State{Config: cfg, Spec: spec}
	require.NoError(t, load.Run(context.Background(), state2))
	assert.Equal(t, firstRows, state2.Raw.NumRows())
}

type failingStep struct{ id string }

func (s *failingStep) ID() string   { return s.id }
func (s *failingStep) Name() string { return s.id }
func (s *failingStep) Run(ctx context.Context, state *State) error {
	return errors.New("boom")
}

type noopStep struct{ id string }

func (s *noopStep) ID() string                                  { return s.id }
func (s *noopStep) Name() string                                { return s.id }
func (s *noopStep) Run(ctx context.Context, state *State) error { return nil }

func TestManagerStopsOnFailure(t *testing.T) {
	mgr := NewManager(testLogger(),
		&noopStep{id: "first"},
		&failingStep{id: "second"},
		&noopStep{id: "third"},
	)

	results, err := mgr.Run(context.Background(), &State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step second")
	require.Len(t, results, 3)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Equal(t, "boom", results[1].Error)
	assert.Equal(t, StatusSkipped, results[2].Status)
}

func TestCleanStepUsesPolicyLevelThreshold(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,grp,score\n")
	row := 0
	for _, g := range []struct {
		label string
		n     int
	}{{"a", 12}, {"b", 5}, {"c", 3}} {
		for i := 0; i < g.n; i++ {
			fmt.Fprintf(&b, "r%02d,%s,%d\n", row, g.label, 10+row%4)
			row++
		}
	}
	source := filepath.Join(t.TempDir(), "groups.csv")
	require.NoError(t, os.WriteFile(source, []byte(b.String()), 0o644))

	cfg := testConfig(t)
	cfg.Policy.MinLevelCount = 6

	spec := &AnalysisSpec{
		Title:   "rare level collapse",
		Dataset: DatasetSpec{Source: source},
		Clean: &cleanse.Spec{
			Types: []cleanse.TypeRule{
				{Column: "grp", To: "categorical", Levels: []string{"a", "b", "c"}},
			},
			// No min_count: the policy threshold must apply.
			CollapseRare: []cleanse.CollapseRule{{Column: "grp"}},
		},
	}
	state := &State{Config: cfg, Spec: spec}
	require.NoError(t, (&LoadStep{logger: testLogger()}).Run(context.Background(), state))
	require.NoError(t, (&CleanStep{logger: testLogger()}).Run(context.Background(), state))

	col, err := state.Clean.Column("grp")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "other"}, col.Levels)
	assert.Equal(t, []int{12, 8}, col.LevelCounts())
	assert.Equal(t, 20, state.Clean.NumRows())

	// The parsed spec stays untouched for later runs.
	assert.Zero(t, spec.Clean.CollapseRare[0].MinCount)
}
