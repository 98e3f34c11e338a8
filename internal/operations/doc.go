// Package operations orchestrates analysis pipelines.
//
// An analysis is described by a YAML AnalysisSpec: where the dataset comes
// from, how to clean it, which candidate models to fit, how to validate
// them, and where the rendered reports go. The Manager executes the
// pipeline as an ordered list of steps over a shared State, logging each
// step's timing and outcome; a failed step stops the run and the remaining
// steps are recorded as skipped.
package operations
