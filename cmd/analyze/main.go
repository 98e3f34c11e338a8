// Command analyze runs one analysis specification through the full
// pipeline: load, clean, explore, fit, validate, survival, report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"statpipe/internal/config"
	"statpipe/internal/infrastructure"
	"statpipe/internal/operations"
	"statpipe/internal/report"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file (optional, environment overrides apply)")
	specPath := flag.String("spec", "", "path to the analysis specification YAML (required)")
	flag.Parse()

	if *specPath == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -spec analysis.yaml [-config config.yaml]")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	spec, err := operations.LoadSpec(*specPath)
	if err != nil {
		logger.Error("Failed to load analysis spec", "path", *specPath, "error", err)
		os.Exit(1)
	}

	// Pre-create the document so every log record of this run carries its ID.
	doc := report.NewDocument(spec.Title)
	ctx := infrastructure.WithRunID(context.Background(), doc.RunID)
	runLogger := infrastructure.LoggerFromContext(ctx)

	state := &operations.State{Config: cfg, Spec: spec, Document: doc}
	mgr := operations.NewManager(runLogger, operations.StandardSteps(runLogger)...)

	results, runErr := mgr.Run(ctx, state)

	printResults(results)

	if runErr != nil {
		runLogger.Error("Analysis failed", "title", spec.Title, "error", runErr)
		os.Exit(1)
	}

	runLogger.Info("Analysis complete", "title", spec.Title, "reports", state.RunDir)
	fmt.Printf("\nReport bundle: %s\n", state.RunDir)
}

func printResults(results []operations.StepResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTATUS\tDURATION\tERROR")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Status, r.Duration.Round(time.Millisecond), r.Error)
	}
	w.Flush()
}
