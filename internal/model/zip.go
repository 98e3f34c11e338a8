package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// fitZIP estimates a zero-inflated Poisson model: a Poisson count process
// mixed with a structural-zero logit, both over the same design columns.
// The parameter vector stacks the count coefficients first, then the
// zero-inflation coefficients.
func fitZIP(d *Design, opts Options) (*Fitted, error) {
	n, p := d.N, d.P
	nParams := 2 * p

	// Warm start: plain Poisson for the count part, and an intercept for
	// the zero part at the logit of the excess-zero share.
	pois, err := irls(d.X, d.Y, Poisson, nil, opts.MaxIter, opts.Tol)
	if err != nil {
		return nil, fmt.Errorf("zip warm start: %w", err)
	}
	var zeros float64
	for _, y := range d.Y {
		if y == 0 {
			zeros++
		}
	}
	zeroShare := zeros / float64(n)
	if zeroShare < 0.05 {
		zeroShare = 0.05
	}
	if zeroShare > 0.95 {
		zeroShare = 0.95
	}

	x0 := make([]float64, nParams)
	copy(x0, pois.beta)
	x0[p] = math.Log(zeroShare / (1 - zeroShare))

	nll := func(theta []float64) float64 {
		var ll float64
		for i := 0; i < n; i++ {
			ll += zipObsLogLik(d, theta, i)
		}
		return -ll
	}

	result, err := optimize.Minimize(optimize.Problem{Func: nll}, x0, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zip fit: %v", ErrNoConvergence, err)
	}
	theta := result.X

	hess := mat.NewSymDense(nParams, nil)
	fd.Hessian(hess, nll, theta, nil)
	cov := invertSPD(hess)
	if cov == nil {
		return nil, fmt.Errorf("%w: information matrix not positive definite", ErrNoConvergence)
	}

	names := make([]string, 0, nParams)
	for _, col := range d.ColNames {
		names = append(names, "count:"+col)
	}
	for _, col := range d.ColNames {
		names = append(names, "zero:"+col)
	}
	coefs := waldCoefficients(names, theta, cov, opts.ConfLevel)

	fitted := make([]float64, n)
	obsLL := make([]float64, n)
	for i := 0; i < n; i++ {
		var etaC, etaZ float64
		for j := 0; j < p; j++ {
			etaC += d.X.At(i, j) * theta[j]
			etaZ += d.X.At(i, j) * theta[p+j]
		}
		fitted[i] = (1 - logistic(etaZ)) * math.Exp(etaC)
		obsLL[i] = zipObsLogLik(d, theta, i)
	}

	// Intercept-only refit for the pseudo-R² baseline.
	nullLogLik, err := zipNullLogLik(d, opts)
	if err != nil {
		return nil, err
	}

	logLik := -result.F
	aic, bic := informationCriteria(logLik, nParams, n)

	return &Fitted{
		Family:       ZeroInflatedPoisson,
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
		fitted:       fitted,
		obsLogLik:    obsLL,
	}, nil
}

// zipObsLogLik is the log likelihood of one observation: a mixture of a
// structural zero (probability pi) and a Poisson draw.
func zipObsLogLik(d *Design, theta []float64, i int) float64 {
	p := d.P
	var etaC, etaZ float64
	for j := 0; j < p; j++ {
		etaC += d.X.At(i, j) * theta[j]
		etaZ += d.X.At(i, j) * theta[p+j]
	}
	if etaC > 300 {
		etaC = 300
	}
	mu := math.Exp(etaC)
	pi := logistic(etaZ)
	y := d.Y[i]

	if y == 0 {
		v := pi + (1-pi)*math.Exp(-mu)
		if v < 1e-300 {
			v = 1e-300
		}
		return math.Log(v)
	}
	lg, _ := math.Lgamma(y + 1)
	onemp := 1 - pi
	if onemp < 1e-300 {
		onemp = 1e-300
	}
	return math.Log(onemp) + y*math.Log(mu) - mu - lg
}

// zipNullLogLik fits the intercept-only zero-inflated model for the
// Nagelkerke baseline.
func zipNullLogLik(d *Design, opts Options) (float64, error) {
	nullDesign := &Design{
		Formula:   d.Formula,
		Family:    d.Family,
		N:         d.N,
		P:         1,
		Y:         d.Y,
		X:         onesColumn(d.N),
		intercept: true,
	}

	nll := func(theta []float64) float64 {
		var ll float64
		for i := 0; i < nullDesign.N; i++ {
			ll += zipObsLogLik(nullDesign, theta, i)
		}
		return -ll
	}

	var mean float64
	for _, y := range d.Y {
		mean += y
	}
	mean /= float64(d.N)
	if mean <= 0 {
		mean = 0.5
	}
	x0 := []float64{math.Log(mean), 0}

	result, err := optimize.Minimize(optimize.Problem{Func: nll}, x0, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: zip null fit: %v", ErrNoConvergence, err)
	}
	return -result.F, nil
}

func onesColumn(n int) *mat.Dense {
	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	return x
}
