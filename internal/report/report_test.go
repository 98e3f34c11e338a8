package report

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"statpipe/internal/cleanse"
	"statpipe/internal/dataset"
	"statpipe/internal/explore"
	"statpipe/internal/model"
	"statpipe/internal/resample"
	"statpipe/internal/selection"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleDocument(t *testing.T) *Document {
	t.Helper()

	n := 30
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		y[i] = 1 + 0.5*x[i] + math.Sin(float64(i))
	}
	tbl, err := dataset.New("sample",
		dataset.NewFloatColumn("x", x),
		dataset.NewFloatColumn("y", y),
	)
	require.NoError(t, err)

	gauss := model.Options{Family: model.Gaussian}
	cmp, err := selection.Compare(context.Background(), testLogger(), tbl, []selection.Candidate{
		{Name: "linear", Formula: model.Formula{Outcome: "y", Terms: []model.Term{{Variable: "x"}}}, Options: gauss},
	}, 0)
	require.NoError(t, err)

	validation, err := resample.Validate(context.Background(), testLogger(), tbl,
		model.Formula{Outcome: "y", Terms: []model.Term{{Variable: "x"}}}, gauss,
		resample.Plan{Holdout: &resample.HoldoutOptions{TestFraction: 0.2, Seed: 1}})
	require.NoError(t, err)

	kmTbl, err := dataset.New("km",
		dataset.NewFloatColumn("weeks", []float64{1, 2, 3, 4, 5, 6}),
		dataset.NewFloatColumn("event", []float64{1, 1, 0, 1, 1, 0}),
	)
	require.NoError(t, err)
	km, err := model.FitKaplanMeier(kmTbl, "weeks", "event", "", 0.95)
	require.NoError(t, err)

	doc := NewDocument("EPA fuel economy analysis")
	doc.Dataset = "sample"
	doc.Rows = n
	doc.Columns = 2
	doc.Audits = []cleanse.Audit{{Step: "filter year in [2008]", Before: 50, After: 30}}
	doc.Missingness = explore.Missingness(tbl)
	desc, err := explore.Describe(tbl)
	require.NoError(t, err)
	doc.Describe = desc
	doc.Comparison = cmp
	doc.Validations = []*resample.Report{validation}
	doc.Survival = km
	return doc
}

func TestRenderText(t *testing.T) {
	doc := sampleDocument(t)
	out := RenderText(doc)

	assert.Contains(t, out, "EPA fuel economy analysis")
	assert.Contains(t, out, doc.RunID)
	assert.Contains(t, out, "Cleaning audit")
	assert.Contains(t, out, "filter year in [2008]")
	assert.Contains(t, out, "Model comparison (best: linear)")
	assert.Contains(t, out, "(Intercept)")
	assert.Contains(t, out, "Validation")
	assert.Contains(t, out, "holdout")
	assert.Contains(t, out, "Kaplan-Meier")
}

func TestRenderTextMedianNotReached(t *testing.T) {
	tbl, err := dataset.New("km",
		dataset.NewFloatColumn("weeks", []float64{1, 2, 3, 4}),
		dataset.NewFloatColumn("event", []float64{1, 0, 0, 0}),
	)
	require.NoError(t, err)
	km, err := model.FitKaplanMeier(tbl, "weeks", "event", "", 0.95)
	require.NoError(t, err)

	doc := NewDocument("censoring")
	doc.Survival = km
	assert.Contains(t, RenderText(doc), "not reached")
}

func TestRenderHTML(t *testing.T) {
	doc := sampleDocument(t)
	out, err := RenderHTML(doc)
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "<title>EPA fuel economy analysis</title>")
	assert.Contains(t, html, "Model comparison")
	assert.Contains(t, html, "Coefficients (linear)")
	assert.Contains(t, html, "Kaplan-Meier")
}

func TestRenderCoefficientsCSV(t *testing.T) {
	doc := sampleDocument(t)
	out, err := RenderCoefficientsCSV(doc)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	// Header plus intercept and slope of the one fitted model.
	require.Len(t, records, 3)
	assert.Equal(t, []string{"model", "term", "estimate", "std_err", "lower", "upper", "z", "p"}, records[0])
	assert.Equal(t, "linear", records[1][0])
	assert.Equal(t, "(Intercept)", records[1][1])
	assert.Equal(t, "x", records[2][1])
}

func TestRenderComparisonCSV(t *testing.T) {
	doc := sampleDocument(t)
	out, err := RenderComparisonCSV(doc)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "linear", records[1][0])
	assert.Equal(t, "gaussian", records[1][2])
}

func TestSaveWritesAllOutputs(t *testing.T) {
	doc := sampleDocument(t)
	outDir := t.TempDir()

	runDir, err := Save(context.Background(), testLogger(), doc, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, doc.RunID), runDir)

	for _, name := range []string{"report.txt", "report.html", "coefficients.csv", "comparison.csv", "report.xlsx", "manifest.json"} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoError(t, err, name)
	}

	m, err := LoadManifest(runDir)
	require.NoError(t, err)
	assert.Equal(t, doc.RunID, m.RunID)
	assert.Equal(t, "linear", m.BestModel)
	assert.Contains(t, m.Outputs, "report.txt")
	require.Len(t, m.Audits, 1)
	assert.Equal(t, 30, m.Audits[0].After)
}

func TestWriteXLSX(t *testing.T) {
	doc := sampleDocument(t)
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(doc, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "EPA fuel economy analysis", title)

	name, err := f.GetCellValue("Comparison", "A2")
	require.NoError(t, err)
	assert.Equal(t, "linear", name)

	term, err := f.GetCellValue("Coefficients", "A2")
	require.NoError(t, err)
	assert.Equal(t, "(Intercept)", term)
}
