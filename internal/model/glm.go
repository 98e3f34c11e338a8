package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// glmFit holds the raw results of an IRLS run.
type glmFit struct {
	beta      []float64
	cov       *mat.SymDense
	eta       []float64
	mu        []float64
	deviance  float64
	logLik    float64
	obsLL     []float64
	converged bool
}

// irls runs iteratively reweighted least squares for the canonical-link
// binomial or Poisson likelihood. Prior weights support the weighted
// refits inside the zero-inflated EM loop; nil means unit weights.
// Fractional outcomes are accepted for that reason.
func irls(x *mat.Dense, y []float64, family Family, weights []float64, maxIter int, tol float64) (*glmFit, error) {
	n, p := x.Dims()
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}

	eta := make([]float64, n)
	mu := make([]float64, n)
	for i := 0; i < n; i++ {
		switch family {
		case Binomial:
			mu[i] = (weights[i]*y[i] + 0.5) / (weights[i] + 1)
			eta[i] = math.Log(mu[i] / (1 - mu[i]))
		case Poisson:
			mu[i] = y[i] + 0.5
			eta[i] = math.Log(mu[i])
		default:
			return nil, fmt.Errorf("%w: irls supports binomial and poisson, got %q", ErrUnsupportedFamily, family)
		}
	}

	beta := make([]float64, p)
	dev := glmDeviance(y, mu, weights, family)
	converged := false

	z := make([]float64, n)
	w := make([]float64, n)
	scaled := mat.NewDense(n, p, nil)
	zVec := mat.NewVecDense(n, nil)

	for iter := 0; iter < maxIter; iter++ {
		for i := 0; i < n; i++ {
			v := glmVariance(mu[i], family)
			if v < 1e-10 {
				v = 1e-10
			}
			z[i] = eta[i] + (y[i]-mu[i])/v
			w[i] = weights[i] * v
		}

		for i := 0; i < n; i++ {
			sw := math.Sqrt(w[i])
			for j := 0; j < p; j++ {
				scaled.Set(i, j, sw*x.At(i, j))
			}
			zVec.SetVec(i, math.Sqrt(w[i])*z[i])
		}

		var qr mat.QR
		qr.Factorize(scaled)
		var sol mat.VecDense
		if err := qr.SolveVecTo(&sol, false, zVec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRankDeficient, err)
		}
		for j := 0; j < p; j++ {
			beta[j] = sol.AtVec(j)
		}

		for i := 0; i < n; i++ {
			var e float64
			for j := 0; j < p; j++ {
				e += x.At(i, j) * beta[j]
			}
			eta[i] = e
			mu[i] = glmMean(e, family)
		}

		newDev := glmDeviance(y, mu, weights, family)
		if math.Abs(newDev-dev) < tol*(math.Abs(newDev)+0.1) {
			dev = newDev
			converged = true
			break
		}
		dev = newDev
	}

	cov := invertSPD(xtwx(x, w))
	if cov == nil {
		return nil, ErrRankDeficient
	}

	obsLL := make([]float64, n)
	var ll float64
	for i := 0; i < n; i++ {
		obsLL[i] = glmObsLogLik(y[i], mu[i], weights[i], family)
		ll += obsLL[i]
	}

	return &glmFit{
		beta:      beta,
		cov:       cov,
		eta:       eta,
		mu:        mu,
		deviance:  dev,
		logLik:    ll,
		obsLL:     obsLL,
		converged: converged,
	}, nil
}

func glmMean(eta float64, family Family) float64 {
	if family == Binomial {
		return logistic(eta)
	}
	if eta > 300 {
		eta = 300
	}
	return math.Exp(eta)
}

func glmVariance(mu float64, family Family) float64 {
	if family == Binomial {
		return mu * (1 - mu)
	}
	return mu
}

func glmObsLogLik(y, mu, w float64, family Family) float64 {
	if family == Binomial {
		const eps = 1e-12
		if mu < eps {
			mu = eps
		}
		if mu > 1-eps {
			mu = 1 - eps
		}
		return w * (y*math.Log(mu) + (1-y)*math.Log(1-mu))
	}
	lg, _ := math.Lgamma(y + 1)
	if mu < 1e-300 {
		mu = 1e-300
	}
	return w * (y*math.Log(mu) - mu - lg)
}

func glmDeviance(y, mu, w []float64, family Family) float64 {
	var dev float64
	for i := range y {
		dev += glmUnitDeviance(y[i], mu[i], family) * w[i]
	}
	return dev
}

func glmUnitDeviance(y, mu float64, family Family) float64 {
	if family == Binomial {
		var d float64
		if y > 0 {
			d += y * math.Log(y/mu)
		}
		if y < 1 {
			d += (1 - y) * math.Log((1-y)/(1-mu))
		}
		return 2 * d
	}
	var d float64
	if y > 0 {
		d = y*math.Log(y/mu) - (y - mu)
	} else {
		d = mu
	}
	return 2 * d
}

// fitGLM fits a binomial or Poisson regression by IRLS. Prior weights are
// nil for direct fits.
func fitGLM(d *Design, opts Options, weights []float64) (*Fitted, error) {
	fit, err := irls(d.X, d.Y, d.Family, weights, opts.MaxIter, opts.Tol)
	if err != nil {
		return nil, err
	}
	if !fit.converged {
		return nil, fmt.Errorf("%w: %s after %d iterations", ErrNoConvergence, d.Formula.String(), opts.MaxIter)
	}

	// Intercept-only refit for the null statistics.
	nullX := mat.NewDense(d.N, 1, nil)
	for i := 0; i < d.N; i++ {
		nullX.Set(i, 0, 1)
	}
	nullFit, err := irls(nullX, d.Y, d.Family, weights, opts.MaxIter, opts.Tol)
	if err != nil {
		return nil, fmt.Errorf("null model: %w", err)
	}

	aic, bic := informationCriteria(fit.logLik, d.P, d.N)
	coefs := waldCoefficients(d.ColNames, fit.beta, fit.cov, opts.ConfLevel)

	m := &Fitted{
		Family:       d.Family,
		Formula:      d.Formula,
		N:            d.N,
		Coefficients: coefs,
		LogLik:       fit.logLik,
		NullLogLik:   nullFit.logLik,
		Deviance:     fit.deviance,
		NullDeviance: nullFit.deviance,
		AIC:          aic,
		BIC:          bic,
		NagelkerkeR2: nagelkerkeR2(fit.logLik, nullFit.logLik, d.N),
		Converged:    true,
		design:       d,
		params:       fit.beta,
		linpred:      fit.eta,
		fitted:       fit.mu,
		obsLogLik:    fit.obsLL,
	}
	if d.Family == Binomial {
		m.CStat = cStatistic(fit.mu, d.Y)
	}
	return m, nil
}
