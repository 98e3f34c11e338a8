package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// fitMultinomial estimates a baseline-category logit: one full coefficient
// vector per non-reference outcome level, the first observed level serving
// as reference.
func fitMultinomial(d *Design, opts Options) (*Fitted, error) {
	k := len(d.YLevels)
	if k < 2 {
		return nil, fmt.Errorf("%w: outcome %s", ErrDegenerateFactor, d.Formula.Outcome)
	}
	n, p := d.N, d.P
	nParams := (k - 1) * p

	counts := make([]float64, k)
	for _, y := range d.Y {
		counts[int(y)]++
	}

	nll := func(theta []float64) float64 {
		var ll float64
		for i := 0; i < n; i++ {
			ll += math.Log(multinomialRowProb(d, theta, i, k))
		}
		return -ll
	}

	x0 := make([]float64, nParams)
	result, err := optimize.Minimize(optimize.Problem{Func: nll}, x0, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: multinomial fit: %v", ErrNoConvergence, err)
	}
	theta := result.X

	hess := mat.NewSymDense(nParams, nil)
	fd.Hessian(hess, nll, theta, nil)
	cov := invertSPD(hess)
	if cov == nil {
		return nil, fmt.Errorf("%w: information matrix not positive definite", ErrNoConvergence)
	}

	names := make([]string, 0, nParams)
	for c := 1; c < k; c++ {
		for _, col := range d.ColNames {
			names = append(names, d.YLevels[c]+":"+col)
		}
	}
	coefs := waldCoefficients(names, theta, cov, opts.ConfLevel)

	obsLL := make([]float64, n)
	for i := 0; i < n; i++ {
		obsLL[i] = math.Log(multinomialRowProb(d, theta, i, k))
	}

	logLik := -result.F
	nullLogLik := multinomialNullLogLik(counts, n)
	aic, bic := informationCriteria(logLik, nParams, n)

	return &Fitted{
		Family:       Multinomial,
		Formula:      d.Formula,
		N:            n,
		Coefficients: coefs,
		LogLik:       logLik,
		NullLogLik:   nullLogLik,
		Deviance:     -2 * logLik,
		NullDeviance: -2 * nullLogLik,
		AIC:          aic,
		BIC:          bic,
		NagelkerkeR2: nagelkerkeR2(logLik, nullLogLik, n),
		Converged:    true,
		design:       d,
		params:       theta,
		obsLogLik:    obsLL,
	}, nil
}

// multinomialRowProb computes P(Y = y_i | x_i). theta is laid out by
// category: theta[(c-1)*P : c*P] are the coefficients of category c against
// the reference.
func multinomialRowProb(d *Design, theta []float64, i, k int) float64 {
	p := d.P
	etas := make([]float64, k)
	maxEta := 0.0 // reference category has eta 0
	for c := 1; c < k; c++ {
		var e float64
		for j := 0; j < p; j++ {
			e += d.X.At(i, j) * theta[(c-1)*p+j]
		}
		etas[c] = e
		if e > maxEta {
			maxEta = e
		}
	}
	var denom float64
	for c := 0; c < k; c++ {
		denom += math.Exp(etas[c] - maxEta)
	}
	prob := math.Exp(etas[int(d.Y[i])]-maxEta) / denom
	if prob < 1e-12 {
		prob = 1e-12
	}
	return prob
}

// multinomialProbs evaluates per-category probabilities for new design
// rows.
func (m *Fitted) multinomialProbs(x *mat.Dense) [][]float64 {
	k := len(m.design.YLevels)
	p := m.design.P
	n, _ := x.Dims()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		etas := make([]float64, k)
		maxEta := 0.0
		for c := 1; c < k; c++ {
			var e float64
			for j := 0; j < p; j++ {
				e += x.At(i, j) * m.params[(c-1)*p+j]
			}
			etas[c] = e
			if e > maxEta {
				maxEta = e
			}
		}
		var denom float64
		for c := 0; c < k; c++ {
			denom += math.Exp(etas[c] - maxEta)
		}
		probs := make([]float64, k)
		for c := 0; c < k; c++ {
			probs[c] = math.Exp(etas[c]-maxEta) / denom
		}
		out[i] = probs
	}
	return out
}
