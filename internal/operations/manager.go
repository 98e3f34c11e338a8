package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"statpipe/internal/cleanse"
	"statpipe/internal/config"
	"statpipe/internal/dataset"
	"statpipe/internal/report"
)

// Step is one stage of an analysis pipeline.
type Step interface {
	// ID is the stable machine identifier of the step.
	ID() string
	// Name is the human-readable label used in logs and results.
	Name() string
	// Run executes the step against the shared state.
	Run(ctx context.Context, state *State) error
}

// State is the shared working set a pipeline's steps read and write.
type State struct {
	Config *config.Config
	Spec   *AnalysisSpec

	Raw      *dataset.Table
	Clean    *dataset.Table
	Audits   []cleanse.Audit
	Document *report.Document
	RunDir   string
}

// Step execution statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StepResult records how one step went.
type StepResult struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Manager executes a fixed sequence of steps.
type Manager struct {
	logger *slog.Logger
	steps  []Step
}

// NewManager builds a manager over an ordered step list.
func NewManager(logger *slog.Logger, steps ...Step) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, steps: steps}
}

// Run executes the steps in order. The first failure stops the pipeline;
// its error is returned alongside the per-step results, with the remaining
// steps marked skipped.
func (m *Manager) Run(ctx context.Context, state *State) ([]StepResult, error) {
	results := make([]StepResult, 0, len(m.steps))
	var failed error

	for _, step := range m.steps {
		if failed != nil {
			results = append(results, StepResult{ID: step.ID(), Name: step.Name(), Status: StatusSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			failed = err
			results = append(results, StepResult{ID: step.ID(), Name: step.Name(), Status: StatusSkipped})
			continue
		}

		m.logger.InfoContext(ctx, "step started", "step", step.ID())
		start := time.Now()
		err := step.Run(ctx, state)
		elapsed := time.Since(start)

		r := StepResult{ID: step.ID(), Name: step.Name(), Duration: elapsed}
		if err != nil {
			r.Status = StatusFailed
			r.Error = err.Error()
			failed = fmt.Errorf("step %s: %w", step.ID(), err)
			m.logger.ErrorContext(ctx, "step failed",
				"step", step.ID(), "duration", elapsed, "error", err)
		} else {
			r.Status = StatusSuccess
			m.logger.InfoContext(ctx, "step finished",
				"step", step.ID(), "duration", elapsed)
		}
		results = append(results, r)
	}

	return results, failed
}
