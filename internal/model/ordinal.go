package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// fitOrdinal estimates a proportional-odds cumulative logit model: K-1
// ordered thresholds plus one slope vector shared across the cumulative
// splits. Estimation minimizes the negative log likelihood with gonum's
// optimizer; standard errors come from the numerical Hessian at the
// optimum.
func fitOrdinal(d *Design, opts Options) (*Fitted, error) {
	k := len(d.YLevels)
	if k < 3 {
		return nil, fmt.Errorf("%w: ordinal outcome %s has %d levels; use binomial for two",
			ErrBadOutcome, d.Formula.Outcome, k)
	}
	n := d.N
	nSlopes := d.P - 1 // thresholds absorb the intercept
	nParams := (k - 1) + nSlopes

	counts := make([]float64, k)
	for _, y := range d.Y {
		counts[int(y)]++
	}

	// Start at the empirical cumulative logits with zero slopes.
	x0 := make([]float64, nParams)
	cum := 0.0
	for c := 0; c < k-1; c++ {
		cum += counts[c]
		p := cum / float64(n)
		x0[c] = math.Log(p / (1 - p))
	}

	nll := func(theta []float64) float64 {
		var ll float64
		for i := 0; i < n; i++ {
			ll += math.Log(ordinalProb(d, theta, i, k))
		}
		return -ll
	}

	result, err := optimize.Minimize(optimize.Problem{Func: nll}, x0, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: ordinal fit: %v", ErrNoConvergence, err)
	}
	theta := result.X

	hess := mat.NewSymDense(nParams, nil)
	fd.Hessian(hess, nll, theta, nil)
	cov := invertSPD(hess)
	if cov == nil {
		return nil, fmt.Errorf("%w: information matrix not positive definite", ErrNoConvergence)
	}

	names := make([]string, 0, nParams)
	for c := 0; c < k-1; c++ {
		names = append(names, d.YLevels[c]+"|"+d.YLevels[c+1])
	}
	names = append(names, d.ColNames[1:]...)
	coefs := waldCoefficients(names, theta, cov, opts.ConfLevel)

	linpred := make([]float64, n)
	obsLL := make([]float64, n)
	for i := 0; i < n; i++ {
		var eta float64
		for j := 1; j < d.P; j++ {
			eta += d.X.At(i, j) * theta[k-1+j-1]
		}
		linpred[i] = eta
		obsLL[i] = math.Log(ordinalProb(d, theta, i, k))
	}

	logLik := -result.F
	nullLogLik := multinomialNullLogLik(counts, n)
	aic, bic := informationCriteria(logLik, nParams, n)

	return &Fitted{
		Family:       Ordinal,
		Formula:      d.Formula,
		N:            n,
		Coefficients: coefs,
		LogLik:       logLik,
		NullLogLik:   nullLogLik,
		Deviance:     -2 * logLik,
		NullDeviance: -2 * nullLogLik,
		AIC:          aic,
		BIC:          bic,
		CStat:        ordinalConcordance(linpred, d.Y),
		NagelkerkeR2: nagelkerkeR2(logLik, nullLogLik, n),
		Converged:    true,
		design:       d,
		params:       theta,
		linpred:      linpred,
		fitted:       linpred,
		obsLogLik:    obsLL,
	}, nil
}

// ordinalProb computes P(Y = y_i | x_i) under the proportional-odds model.
// Thresholds occupy theta[0:k-1]; slopes follow.
func ordinalProb(d *Design, theta []float64, i, k int) float64 {
	var eta float64
	for j := 1; j < d.P; j++ {
		eta += d.X.At(i, j) * theta[k-1+j-1]
	}
	c := int(d.Y[i])

	upper := 1.0
	if c < k-1 {
		upper = logistic(theta[c] - eta)
	}
	lower := 0.0
	if c > 0 {
		lower = logistic(theta[c-1] - eta)
	}
	p := upper - lower
	if p < 1e-12 {
		p = 1e-12
	}
	return p
}

// multinomialNullLogLik is the log likelihood of the intercept-only
// categorical model: each category at its empirical proportion.
func multinomialNullLogLik(counts []float64, n int) float64 {
	var ll float64
	for _, c := range counts {
		if c > 0 {
			ll += c * math.Log(c/float64(n))
		}
	}
	return ll
}
