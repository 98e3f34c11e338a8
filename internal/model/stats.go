package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func logistic(eta float64) float64 {
	// Clamp to keep exp finite; probabilities saturate well before this.
	if eta > 35 {
		return 1
	}
	if eta < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-eta))
}

// informationCriteria computes AIC and BIC from a log likelihood, parameter
// count, and sample size.
func informationCriteria(logLik float64, k, n int) (aic, bic float64) {
	aic = 2*float64(k) - 2*logLik
	bic = float64(k)*math.Log(float64(n)) - 2*logLik
	return aic, bic
}

// cStatistic computes the area under the ROC curve for binary outcomes by
// pairwise concordance of scores, counting ties as half.
func cStatistic(scores, y []float64) float64 {
	var concordant, ties, pairs float64
	for i := range y {
		if y[i] != 1 {
			continue
		}
		for j := range y {
			if y[j] != 0 {
				continue
			}
			pairs++
			switch {
			case scores[i] > scores[j]:
				concordant++
			case scores[i] == scores[j]:
				ties++
			}
		}
	}
	if pairs == 0 {
		return math.NaN()
	}
	return (concordant + 0.5*ties) / pairs
}

// ordinalConcordance generalizes the C-statistic to ordered outcomes: over
// all pairs with different outcome categories, the fraction where the
// linear predictor orders the pair correctly, ties counting half.
func ordinalConcordance(linpred, y []float64) float64 {
	var concordant, ties, pairs float64
	n := len(y)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if y[i] == y[j] {
				continue
			}
			pairs++
			lo, hi := i, j
			if y[i] > y[j] {
				lo, hi = j, i
			}
			switch {
			case linpred[hi] > linpred[lo]:
				concordant++
			case linpred[hi] == linpred[lo]:
				ties++
			}
		}
	}
	if pairs == 0 {
		return math.NaN()
	}
	return (concordant + 0.5*ties) / pairs
}

// nagelkerkeR2 rescales the Cox-Snell pseudo R² by its maximum attainable
// value.
func nagelkerkeR2(logLik, nullLogLik float64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	coxSnell := 1 - math.Exp(2*(nullLogLik-logLik)/float64(n))
	max := 1 - math.Exp(2*nullLogLik/float64(n))
	if max <= 0 {
		return math.NaN()
	}
	return coxSnell / max
}

// waldCoefficients assembles named coefficient rows from estimates and a
// covariance matrix using normal-theory Wald intervals at the given level.
func waldCoefficients(names []string, est []float64, cov mat.Symmetric, level float64) []Coefficient {
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	z := norm.Quantile(1 - (1-level)/2)

	out := make([]Coefficient, len(names))
	for i, name := range names {
		se := math.Sqrt(cov.At(i, i))
		stat := est[i] / se
		out[i] = Coefficient{
			Name:     name,
			Estimate: est[i],
			StdErr:   se,
			Lower:    est[i] - z*se,
			Upper:    est[i] + z*se,
			Z:        stat,
			P:        2 * norm.Survival(math.Abs(stat)),
		}
	}
	return out
}

// invertSPD inverts a symmetric positive-definite information matrix,
// returning nil when the matrix is not PD (a convergence or collinearity
// signal).
func invertSPD(a *mat.SymDense) *mat.SymDense {
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil
	}
	return &inv
}

// xtwx computes X'WX as a symmetric matrix for a diagonal weight vector.
func xtwx(x *mat.Dense, w []float64) *mat.SymDense {
	n, p := x.Dims()
	out := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			var s float64
			for i := 0; i < n; i++ {
				s += w[i] * x.At(i, a) * x.At(i, b)
			}
			out.SetSym(a, b, s)
		}
	}
	return out
}
