package resample

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"statpipe/internal/dataset"
	"statpipe/internal/model"
)

// HoldoutOptions controls a seeded train/test split.
type HoldoutOptions struct {
	// TestFraction is the share of rows withheld for scoring. Defaults to
	// 0.25.
	TestFraction float64 `yaml:"test_fraction" validate:"omitempty,gt=0,lt=1"`
	// Seed fixes the split.
	Seed int64 `yaml:"seed"`
}

func (o HoldoutOptions) normalized() HoldoutOptions {
	if o.TestFraction == 0 {
		o.TestFraction = 0.25
	}
	return o
}

// HoldoutResult is the outcome of a holdout validation run.
type HoldoutResult struct {
	Statistic string  `json:"statistic"`
	Train     float64 `json:"train"`
	Test      float64 `json:"test"`
	TrainN    int     `json:"train_n"`
	TestN     int     `json:"test_n"`
}

// Split partitions a table's rows into train and test subsets. The same
// seed, fraction, and row count always produce the same partition, each row
// lands in exactly one side, and rows keep their relative order within each
// side.
func Split(tbl *dataset.Table, opts HoldoutOptions) (train, test *dataset.Table, err error) {
	opts = opts.normalized()
	n := tbl.NumRows()
	testN := int(float64(n)*opts.TestFraction + 0.5)
	if testN == 0 || testN == n {
		return nil, nil, fmt.Errorf("test fraction %g leaves an empty split for %d rows", opts.TestFraction, n)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	perm := rng.Perm(n)
	testIdx := append([]int(nil), perm[:testN]...)
	trainIdx := append([]int(nil), perm[testN:]...)
	sort.Ints(testIdx)
	sort.Ints(trainIdx)

	return tbl.Subset(trainIdx), tbl.Subset(testIdx), nil
}

// Holdout fits the model on a seeded training split and scores it on the
// withheld rows.
func Holdout(ctx context.Context, logger *slog.Logger, tbl *dataset.Table, f model.Formula, fitOpts model.Options, opts HoldoutOptions) (*HoldoutResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.normalized()

	train, test, err := Split(tbl, opts)
	if err != nil {
		return nil, err
	}

	m, err := model.Fit(train, f, fitOpts)
	if err != nil {
		return nil, fmt.Errorf("fit on training split: %w", err)
	}
	trainStat, err := m.Score(train)
	if err != nil {
		return nil, fmt.Errorf("score training split: %w", err)
	}
	testStat, err := m.Score(test)
	if err != nil {
		return nil, fmt.Errorf("score holdout split: %w", err)
	}

	result := &HoldoutResult{
		Statistic: m.ScoreName(),
		Train:     trainStat,
		Test:      testStat,
		TrainN:    train.NumRows(),
		TestN:     test.NumRows(),
	}

	logger.InfoContext(ctx, "holdout validation finished",
		"formula", f.String(),
		"statistic", result.Statistic,
		"train", result.Train,
		"test", result.Test,
		"train_n", result.TrainN,
		"test_n", result.TestN,
		"seed", opts.Seed)
	return result, nil
}

// Plan bundles the validation procedures requested for one model.
type Plan struct {
	Bootstrap *BootstrapOptions `yaml:"bootstrap"`
	Holdout   *HoldoutOptions   `yaml:"holdout"`
}

// Report carries the validation outcomes for one model side by side.
type Report struct {
	Formula   string           `json:"formula"`
	Family    string           `json:"family"`
	Bootstrap *BootstrapResult `json:"bootstrap,omitempty"`
	Holdout   *HoldoutResult   `json:"holdout,omitempty"`
}

// Validate runs every procedure the plan requests against one model
// specification.
func Validate(ctx context.Context, logger *slog.Logger, tbl *dataset.Table, f model.Formula, fitOpts model.Options, plan Plan) (*Report, error) {
	report := &Report{Formula: f.String(), Family: string(fitOpts.Family)}
	if plan.Bootstrap != nil {
		r, err := Bootstrap(ctx, logger, tbl, f, fitOpts, *plan.Bootstrap)
		if err != nil {
			return nil, fmt.Errorf("bootstrap validation: %w", err)
		}
		report.Bootstrap = r
	}
	if plan.Holdout != nil {
		r, err := Holdout(ctx, logger, tbl, f, fitOpts, *plan.Holdout)
		if err != nil {
			return nil, fmt.Errorf("holdout validation: %w", err)
		}
		report.Holdout = r
	}
	return report, nil
}
