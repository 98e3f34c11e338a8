package model

import (
	"fmt"
	"math"

	"statpipe/internal/dataset"
)

// Options controls a model fit.
type Options struct {
	Family Family `yaml:"family" validate:"required"`
	// ConfLevel is the two-sided confidence level for coefficient
	// intervals. Defaults to 0.95.
	ConfLevel float64 `yaml:"conf_level" validate:"omitempty,gt=0,lt=1"`
	// MaxIter bounds iterative fitting. Defaults to 100.
	MaxIter int `yaml:"max_iter"`
	// Tol is the convergence tolerance on the deviance or log likelihood.
	// Defaults to 1e-8.
	Tol float64 `yaml:"tol"`
	// DFBudget caps predictor degrees of freedom when positive; a formula
	// requesting more parameters fails before fitting.
	DFBudget int `yaml:"df_budget"`
	// DropIncomplete restricts the fit to complete cases instead of
	// failing on missing values.
	DropIncomplete bool `yaml:"drop_incomplete"`
}

func (o Options) normalized() Options {
	if o.ConfLevel == 0 {
		o.ConfLevel = 0.95
	}
	if o.MaxIter == 0 {
		o.MaxIter = 100
	}
	if o.Tol == 0 {
		o.Tol = 1e-8
	}
	return o
}

// Coefficient is one estimated model parameter with its Wald interval.
type Coefficient struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	Z        float64 `json:"z"`
	P        float64 `json:"p"`
}

// Fitted is an immutable fitted-model artifact: the formula bound to its
// estimates over a specific table, together with the fit statistics the
// family supports. Validators and reporters consume it read-only.
type Fitted struct {
	Family  Family
	Formula Formula
	N       int

	Coefficients []Coefficient

	LogLik       float64
	NullLogLik   float64
	Deviance     float64
	NullDeviance float64
	AIC          float64
	BIC          float64

	// Gaussian family
	R2    float64
	AdjR2 float64
	Sigma float64
	RMSE  float64

	// Binomial and ordinal families
	CStat        float64
	NagelkerkeR2 float64

	Converged bool

	design    *Design
	params    []float64
	linpred   []float64
	fitted    []float64
	obsLogLik []float64
}

// NumParams returns the number of estimated parameters.
func (m *Fitted) NumParams() int { return len(m.params) }

// Design exposes the training design for resampling and prediction.
func (m *Fitted) Design() *Design { return m.design }

// ObsLogLik returns per-observation log-likelihood contributions, used by
// the Vuong test for non-nested model comparison. Nil for families that do
// not populate it.
func (m *Fitted) ObsLogLik() []float64 { return m.obsLogLik }

// FittedValues returns in-sample predictions on the response scale.
func (m *Fitted) FittedValues() []float64 { return m.fitted }

// PrimaryStat names the headline fit statistic for the family: R² for
// continuous outcomes and the C-statistic for binary/ordinal ones, with
// Nagelkerke R² as the fallback for count models.
func (m *Fitted) PrimaryStat() (string, float64) {
	switch m.Family {
	case Gaussian:
		return "R2", m.R2
	case Binomial, Ordinal:
		return "C", m.CStat
	default:
		return "NagelkerkeR2", m.NagelkerkeR2
	}
}

// Fit fits a model of the requested family to the table.
func Fit(tbl *dataset.Table, f Formula, opts Options) (*Fitted, error) {
	opts = opts.normalized()
	if !opts.Family.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFamily, opts.Family)
	}

	d, err := BuildDesign(tbl, f, opts.Family, opts.DropIncomplete)
	if err != nil {
		return nil, err
	}

	if opts.DFBudget > 0 && d.NumParams() > opts.DFBudget {
		return nil, fmt.Errorf("%w: %d requested, budget %d for n=%d",
			ErrDFBudget, d.NumParams(), opts.DFBudget, d.N)
	}

	switch opts.Family {
	case Gaussian:
		return fitOLS(d, opts)
	case Binomial, Poisson:
		return fitGLM(d, opts, nil)
	case Ordinal:
		return fitOrdinal(d, opts)
	case Multinomial:
		return fitMultinomial(d, opts)
	case ZeroInflatedPoisson:
		return fitZIP(d, opts)
	case Cox:
		return fitCox(d, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFamily, opts.Family)
}

// Predict computes predictions on the response scale for new rows that are
// complete in the formula's columns: fitted means for Gaussian, event
// probabilities for binomial, expected counts for Poisson families, the
// linear predictor for ordinal and Cox models, and the modal category index
// for multinomial models.
func (m *Fitted) Predict(tbl *dataset.Table) ([]float64, error) {
	x, _, err := m.design.EncodeTable(tbl)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	out := make([]float64, n)

	switch m.Family {
	case ZeroInflatedPoisson:
		p := m.design.P
		for i := 0; i < n; i++ {
			var etaCount, etaZero float64
			for j := 0; j < p; j++ {
				etaCount += x.At(i, j) * m.params[j]
				etaZero += x.At(i, j) * m.params[p+j]
			}
			out[i] = (1 - logistic(etaZero)) * math.Exp(etaCount)
		}
		return out, nil
	case Ordinal:
		// Parameters lead with the K-1 thresholds; the linear predictor
		// uses only the slopes, and the design has no intercept column in
		// its parameterization beyond those thresholds.
		k := len(m.design.YLevels) - 1
		for i := 0; i < n; i++ {
			var eta float64
			for j := 1; j < m.design.P; j++ {
				eta += x.At(i, j) * m.params[k+j-1]
			}
			out[i] = eta
		}
		return out, nil
	case Multinomial:
		probs := m.multinomialProbs(x)
		for i := 0; i < n; i++ {
			best, bestP := 0, probs[i][0]
			for c := 1; c < len(probs[i]); c++ {
				if probs[i][c] > bestP {
					best, bestP = c, probs[i][c]
				}
			}
			out[i] = float64(best)
		}
		return out, nil
	}

	for i := 0; i < n; i++ {
		var eta float64
		for j := 0; j < m.design.P; j++ {
			eta += x.At(i, j) * m.params[j]
		}
		switch m.Family {
		case Binomial:
			out[i] = logistic(eta)
		case Poisson:
			out[i] = math.Exp(eta)
		default:
			out[i] = eta
		}
	}
	return out, nil
}
