package resample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"statpipe/internal/dataset"
	"statpipe/internal/model"
)

// ErrTooManyFailures signals that too few bootstrap refits succeeded for the
// optimism estimate to be trustworthy.
var ErrTooManyFailures = errors.New("bootstrap refits failed on most replicates")

// BootstrapOptions controls a bootstrap validation run.
type BootstrapOptions struct {
	// Replicates is the number of bootstrap resamples. Defaults to 200.
	Replicates int `yaml:"replicates" validate:"omitempty,min=1"`
	// Seed fixes the resample draws; the same seed always reproduces the
	// same corrected statistics.
	Seed int64 `yaml:"seed"`
	// Workers bounds concurrent refits. Defaults to GOMAXPROCS.
	Workers int `yaml:"workers" validate:"omitempty,min=1"`
}

func (o BootstrapOptions) normalized() BootstrapOptions {
	if o.Replicates == 0 {
		o.Replicates = 200
	}
	if o.Workers == 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// BootstrapResult is the outcome of a bootstrap validation run.
type BootstrapResult struct {
	Statistic  string  `json:"statistic"`
	Apparent   float64 `json:"apparent"`
	Optimism   float64 `json:"optimism"`
	Corrected  float64 `json:"corrected"`
	Replicates int     `json:"replicates"`
	Failed     int     `json:"failed"`
}

// Bootstrap estimates optimism-corrected performance for a model
// specification on a table.
//
// Replicate index sets are drawn up front from a single seeded source, so
// the result is identical across reruns and worker counts. Individual
// replicate refits may fail (a resample can drop a factor level or go rank
// deficient); such replicates are skipped and counted, and the run errors
// only when more than half fail.
func Bootstrap(ctx context.Context, logger *slog.Logger, tbl *dataset.Table, f model.Formula, fitOpts model.Options, opts BootstrapOptions) (*BootstrapResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.normalized()

	base, err := model.Fit(tbl, f, fitOpts)
	if err != nil {
		return nil, fmt.Errorf("fit reference model: %w", err)
	}
	apparent, err := base.Score(tbl)
	if err != nil {
		return nil, fmt.Errorf("score reference model: %w", err)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	draws := make([][]int, opts.Replicates)
	for b := range draws {
		draws[b] = tbl.BootstrapIndices(rng)
	}

	logger.InfoContext(ctx, "bootstrap validation started",
		"formula", f.String(),
		"family", string(fitOpts.Family),
		"replicates", opts.Replicates,
		"seed", opts.Seed,
		"workers", opts.Workers)

	optimism := make([]float64, opts.Replicates)
	ok := make([]bool, opts.Replicates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for b := range draws {
		b := b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resampled := tbl.Subset(draws[b])
			m, err := model.Fit(resampled, f, fitOpts)
			if err != nil {
				logger.WarnContext(gctx, "bootstrap replicate refit failed",
					"replicate", b, "error", err)
				return nil
			}
			train, err := m.Score(resampled)
			if err != nil {
				logger.WarnContext(gctx, "bootstrap replicate train score failed",
					"replicate", b, "error", err)
				return nil
			}
			test, err := m.Score(tbl)
			if err != nil {
				logger.WarnContext(gctx, "bootstrap replicate test score failed",
					"replicate", b, "error", err)
				return nil
			}
			optimism[b] = train - test
			ok[b] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var sum float64
	succeeded := 0
	for b := range optimism {
		if ok[b] {
			sum += optimism[b]
			succeeded++
		}
	}
	failed := opts.Replicates - succeeded
	if succeeded == 0 || failed > opts.Replicates/2 {
		return nil, fmt.Errorf("%w: %d of %d", ErrTooManyFailures, failed, opts.Replicates)
	}

	meanOptimism := sum / float64(succeeded)
	result := &BootstrapResult{
		Statistic:  base.ScoreName(),
		Apparent:   apparent,
		Optimism:   meanOptimism,
		Corrected:  apparent - meanOptimism,
		Replicates: opts.Replicates,
		Failed:     failed,
	}

	logger.InfoContext(ctx, "bootstrap validation finished",
		"statistic", result.Statistic,
		"apparent", result.Apparent,
		"optimism", result.Optimism,
		"corrected", result.Corrected,
		"failed", failed)
	return result, nil
}
