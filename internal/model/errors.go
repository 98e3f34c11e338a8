package model

import "errors"

// Sentinel errors raised during design construction and fitting.
var (
	// ErrRankDeficient signals perfect collinearity in the design matrix.
	ErrRankDeficient = errors.New("design matrix is rank deficient")
	// ErrDegenerateFactor signals a categorical predictor with fewer than
	// two observed levels after filtering.
	ErrDegenerateFactor = errors.New("categorical predictor has fewer than two observed levels")
	// ErrMissingValues signals rows with missing outcome or predictor
	// values reaching a complete-case fit.
	ErrMissingValues = errors.New("fit requires complete cases")
	// ErrNoConvergence signals that iterative fitting did not converge.
	ErrNoConvergence = errors.New("model fitting did not converge")
	// ErrDFBudget signals a model requesting more predictor degrees of
	// freedom than the caller's budget allows.
	ErrDFBudget = errors.New("predictor degrees of freedom exceed budget")
	// ErrUnsupportedFamily signals an unknown model family selector.
	ErrUnsupportedFamily = errors.New("unsupported model family")
	// ErrBadOutcome signals an outcome column incompatible with the family.
	ErrBadOutcome = errors.New("outcome column incompatible with model family")
)
