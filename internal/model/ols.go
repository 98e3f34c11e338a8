package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// fitOLS estimates a Gaussian linear model by least squares.
func fitOLS(d *Design, opts Options) (*Fitted, error) {
	n, p := d.N, d.P

	var qr mat.QR
	qr.Factorize(d.X)
	yVec := mat.NewVecDense(n, append([]float64(nil), d.Y...))
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yVec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRankDeficient, err)
	}

	fitted := make([]float64, n)
	resid := make([]float64, n)
	var fittedVec mat.VecDense
	fittedVec.MulVec(d.X, &beta)
	var ssRes float64
	for i := 0; i < n; i++ {
		fitted[i] = fittedVec.AtVec(i)
		resid[i] = d.Y[i] - fitted[i]
		ssRes += resid[i] * resid[i]
	}

	mean := stat.Mean(d.Y, nil)
	var ssTot float64
	for _, y := range d.Y {
		ssTot += (y - mean) * (y - mean)
	}

	dfResid := n - p
	if dfResid <= 0 {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrRankDeficient, n, p)
	}
	sigma2 := ssRes / float64(dfResid)

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	adjR2 := 1 - (1-r2)*float64(n-1)/float64(dfResid)

	// Maximum-likelihood variants drive the information criteria so that
	// Gaussian AIC/BIC compare cleanly against the likelihood families.
	logLik := gaussianLogLik(ssRes, n)
	nullLogLik := gaussianLogLik(ssTot, n)
	kParams := p + 1 // slopes plus the error variance
	aic, bic := informationCriteria(logLik, kParams, n)

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	invXtX := invertSPD(xtwx(d.X, ones))
	if invXtX == nil {
		return nil, ErrRankDeficient
	}

	est := make([]float64, p)
	for j := 0; j < p; j++ {
		est[j] = beta.AtVec(j)
	}

	coefs := tCoefficients(d.ColNames, est, invXtX, sigma2, dfResid, opts.ConfLevel)

	obsLL := make([]float64, n)
	sigma2ML := ssRes / float64(n)
	for i := 0; i < n; i++ {
		obsLL[i] = -0.5*(math.Log(2*math.Pi*sigma2ML)) - resid[i]*resid[i]/(2*sigma2ML)
	}

	return &Fitted{
		Family:       Gaussian,
		Formula:      d.Formula,
		N:            n,
		Coefficients: coefs,
		LogLik:       logLik,
		NullLogLik:   nullLogLik,
		Deviance:     ssRes,
		NullDeviance: ssTot,
		AIC:          aic,
		BIC:          bic,
		R2:           r2,
		AdjR2:        adjR2,
		Sigma:        math.Sqrt(sigma2),
		RMSE:         math.Sqrt(ssRes / float64(n)),
		Converged:    true,
		design:       d,
		params:       est,
		linpred:      fitted,
		fitted:       fitted,
		obsLogLik:    obsLL,
	}, nil
}

func gaussianLogLik(ss float64, n int) float64 {
	if ss <= 0 || n == 0 {
		return 0
	}
	nf := float64(n)
	return -nf / 2 * (math.Log(2*math.Pi*ss/nf) + 1)
}

// tCoefficients assembles coefficient rows with Student-t intervals, the
// exact small-sample theory for least squares.
func tCoefficients(names []string, est []float64, invXtX *mat.SymDense, sigma2 float64, dfResid int, level float64) []Coefficient {
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfResid)}
	tq := tDist.Quantile(1 - (1-level)/2)

	out := make([]Coefficient, len(names))
	for j, name := range names {
		se := math.Sqrt(sigma2 * invXtX.At(j, j))
		stat := est[j] / se
		out[j] = Coefficient{
			Name:     name,
			Estimate: est[j],
			StdErr:   se,
			Lower:    est[j] - tq*se,
			Upper:    est[j] + tq*se,
			Z:        stat,
			P:        2 * tDist.Survival(math.Abs(stat)),
		}
	}
	return out
}

// Diagnostics is the residual view of a continuous-outcome fit: the raw
// material of fitted-vs-residual, QQ, and leverage plots.
type Diagnostics struct {
	Fitted        []float64 `json:"fitted"`
	Residuals     []float64 `json:"residuals"`
	StdResiduals  []float64 `json:"std_residuals"`
	Leverage      []float64 `json:"leverage"`
	QQTheoretical []float64 `json:"qq_theoretical"`
	QQSample      []float64 `json:"qq_sample"`
}

// Diagnostics computes the residual diagnostics view. Only Gaussian fits
// support it.
func (m *Fitted) Diagnostics() (*Diagnostics, error) {
	if m.Family != Gaussian {
		return nil, fmt.Errorf("diagnostics view requires a gaussian fit, have %s", m.Family)
	}
	d := m.design
	n := d.N

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	invXtX := invertSPD(xtwx(d.X, ones))
	if invXtX == nil {
		return nil, ErrRankDeficient
	}

	out := &Diagnostics{
		Fitted:       append([]float64(nil), m.fitted...),
		Residuals:    make([]float64, n),
		StdResiduals: make([]float64, n),
		Leverage:     make([]float64, n),
	}

	sigma := m.Sigma
	for i := 0; i < n; i++ {
		out.Residuals[i] = d.Y[i] - m.fitted[i]
		// h_i = x_i' (X'X)^-1 x_i
		var h float64
		for a := 0; a < d.P; a++ {
			var s float64
			for b := 0; b < d.P; b++ {
				s += invXtX.At(a, b) * d.X.At(i, b)
			}
			h += d.X.At(i, a) * s
		}
		out.Leverage[i] = h
		denom := sigma * math.Sqrt(1-h)
		if denom > 0 {
			out.StdResiduals[i] = out.Residuals[i] / denom
		}
	}

	sorted := append([]float64(nil), out.StdResiduals...)
	sort.Float64s(sorted)
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	out.QQSample = sorted
	out.QQTheoretical = make([]float64, n)
	for i := 0; i < n; i++ {
		out.QQTheoretical[i] = norm.Quantile((float64(i) + 0.5) / float64(n))
	}
	return out, nil
}
