package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statpipe/internal/report"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedRun writes a minimal run bundle into the reports directory.
func seedRun(t *testing.T, reportsDir, title string) *report.Document {
	t.Helper()
	doc := report.NewDocument(title)
	doc.Dataset = "fixture"
	doc.Rows = 10
	doc.Columns = 2
	_, err := report.Save(context.Background(), testLogger(), doc, reportsDir)
	require.NoError(t, err)
	return doc
}

func TestHealthz(t *testing.T) {
	srv := NewServer(t.TempDir(), testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListRuns(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer(dir, testLogger())

	// Empty directory lists no runs.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	first := seedRun(t, dir, "first analysis")
	second := seedRun(t, dir, "second analysis")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []report.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	ids := []string{runs[0].RunID, runs[1].RunID}
	assert.Contains(t, ids, first.RunID)
	assert.Contains(t, ids, second.RunID)
}

func TestGetRun(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer(dir, testLogger())
	doc := seedRun(t, dir, "one analysis")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+doc.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var m report.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, doc.RunID, m.RunID)
	assert.Equal(t, "one analysis", m.Title)
	assert.Contains(t, m.Outputs, "report.html")
}

func TestGetRunErrors(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer(dir, testLogger())

	t.Run("invalid id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown run", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/00000000-0000-0000-0000-000000000000", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestReportFile(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer(dir, testLogger())
	doc := seedRun(t, dir, "served analysis")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/"+doc.RunID+"/report.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "served analysis")

	// Files the manifest does not list are refused.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/"+doc.RunID+"/secrets.txt", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
