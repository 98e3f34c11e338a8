package transport

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	apierrors "statpipe/internal/errors"
	"statpipe/internal/report"
)

// Server is the read-only HTTP surface over the report output directory:
// it lists runs by their manifests and serves the rendered report files.
type Server struct {
	reportsDir string
	logger     *slog.Logger
	router     chi.Router
}

// NewServer builds the report server over a reports directory.
func NewServer(reportsDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reportsDir: reportsDir,
		logger:     logger.With(slog.String("component", "report-server")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{runID}", s.handleGetRun)
	})
	r.Get("/reports/{runID}/{file}", s.handleReportFile)

	s.router = r
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListRuns handles GET /api/runs: every run directory with a
// readable manifest, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.reportsDir)
	if err != nil {
		if os.IsNotExist(err) {
			render.JSON(w, r, []*report.Manifest{})
			return
		}
		s.renderError(w, r, apierrors.InternalError(fmt.Errorf("list runs: %w", err)))
		return
	}

	manifests := make([]*report.Manifest, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := report.LoadManifest(filepath.Join(s.reportsDir, e.Name()))
		if err != nil {
			s.logger.WarnContext(r.Context(), "skipping run without manifest",
				"dir", e.Name(), "error", err)
			continue
		}
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(a, b int) bool {
		return manifests[a].GeneratedAt.After(manifests[b].GeneratedAt)
	})
	render.JSON(w, r, manifests)
}

// handleGetRun handles GET /api/runs/{runID}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := uuid.Parse(runID); err != nil {
		s.renderError(w, r, apierrors.New(http.StatusBadRequest, "INVALID_RUN_ID", "run id must be a UUID"))
		return
	}
	m, err := report.LoadManifest(filepath.Join(s.reportsDir, runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.renderError(w, r, apierrors.NotFoundError("run "+runID))
			return
		}
		s.renderError(w, r, apierrors.InternalError(err))
		return
	}
	render.JSON(w, r, m)
}

// handleReportFile handles GET /reports/{runID}/{file}: one rendered
// output of a run. Only files the manifest names are served, which also
// keeps path traversal out.
func (s *Server) handleReportFile(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	file := chi.URLParam(r, "file")
	if _, err := uuid.Parse(runID); err != nil {
		s.renderError(w, r, apierrors.New(http.StatusBadRequest, "INVALID_RUN_ID", "run id must be a UUID"))
		return
	}

	runDir := filepath.Join(s.reportsDir, runID)
	m, err := report.LoadManifest(runDir)
	if err != nil {
		s.renderError(w, r, apierrors.NotFoundError("run "+runID))
		return
	}

	listed := false
	for _, out := range m.Outputs {
		if out == file {
			listed = true
			break
		}
	}
	if !listed && file != "manifest.json" {
		s.renderError(w, r, apierrors.NotFoundError("report file "+file))
		return
	}

	http.ServeFile(w, r, filepath.Join(runDir, file))
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	if apiErr.StatusCode >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "error", apiErr.Message, "details", apiErr.Details)
	}
	render.Status(r, apiErr.StatusCode)
	render.JSON(w, r, apiErr)
}
