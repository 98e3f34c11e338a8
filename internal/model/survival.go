package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"statpipe/internal/dataset"
)

// fitCox estimates a Cox proportional-hazards model by maximizing the
// Breslow partial likelihood. The design carries no intercept; reported
// estimates are log hazard ratios.
func fitCox(d *Design, opts Options) (*Fitted, error) {
	n, p := d.N, d.P
	if p == 0 {
		return nil, fmt.Errorf("%w: cox model needs at least one predictor", ErrBadOutcome)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Descending time so the risk set accumulates as we walk.
	sort.Slice(order, func(a, b int) bool { return d.Time[order[a]] > d.Time[order[b]] })

	nll := func(beta []float64) float64 {
		eta := make([]float64, n)
		for i := 0; i < n; i++ {
			var e float64
			for j := 0; j < p; j++ {
				e += d.X.At(i, j) * beta[j]
			}
			eta[i] = e
		}

		var ll float64
		riskSum := 0.0
		i := 0
		for i < n {
			// Group ties: everyone at this time joins the risk set before
			// its events are scored.
			j := i
			t := d.Time[order[i]]
			for j < n && d.Time[order[j]] == t {
				riskSum += math.Exp(eta[order[j]])
				j++
			}
			var events int
			for k := i; k < j; k++ {
				if d.Event[order[k]] == 1 {
					ll += eta[order[k]]
					events++
				}
			}
			if events > 0 {
				ll -= float64(events) * math.Log(riskSum)
			}
			i = j
		}
		return -ll
	}

	x0 := make([]float64, p)
	nullLogLik := -nll(x0)

	result, err := optimize.Minimize(optimize.Problem{Func: nll}, x0, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cox fit: %v", ErrNoConvergence, err)
	}
	beta := result.X

	hess := mat.NewSymDense(p, nil)
	fd.Hessian(hess, nll, beta, nil)
	cov := invertSPD(hess)
	if cov == nil {
		return nil, fmt.Errorf("%w: information matrix not positive definite", ErrNoConvergence)
	}

	coefs := waldCoefficients(d.ColNames, beta, cov, opts.ConfLevel)

	linpred := make([]float64, n)
	for i := 0; i < n; i++ {
		var e float64
		for j := 0; j < p; j++ {
			e += d.X.At(i, j) * beta[j]
		}
		linpred[i] = e
	}

	logLik := -result.F
	aic, bic := informationCriteria(logLik, p, n)

	return &Fitted{
		Family:       Cox,
		Formula:      d.Formula,
		N:            n,
		Coefficients: coefs,
		LogLik:       logLik,
		NullLogLik:   nullLogLik,
		Deviance:     -2 * logLik,
		NullDeviance: -2 * nullLogLik,
		AIC:          aic,
		BIC:          bic,
		CStat:        survivalConcordance(linpred, d.Time, d.Event),
		NagelkerkeR2: nagelkerkeR2(logLik, nullLogLik, n),
		Converged:    true,
		design:       d,
		params:       beta,
		linpred:      linpred,
		fitted:       linpred,
	}, nil
}

// survivalConcordance is Harrell's C for censored data: among comparable
// pairs (the earlier time is an observed event), the fraction where the
// shorter survivor carries the higher risk score.
func survivalConcordance(risk, time, event []float64) float64 {
	var concordant, ties, pairs float64
	n := len(time)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || event[i] != 1 || time[i] >= time[j] {
				continue
			}
			pairs++
			switch {
			case risk[i] > risk[j]:
				concordant++
			case risk[i] == risk[j]:
				ties++
			}
		}
	}
	if pairs == 0 {
		return math.NaN()
	}
	return (concordant + 0.5*ties) / pairs
}

// KMPoint is one step of a Kaplan-Meier curve.
type KMPoint struct {
	Time     float64 `json:"time"`
	AtRisk   int     `json:"at_risk"`
	Events   int     `json:"events"`
	Survival float64 `json:"survival"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// KMStratum is the Kaplan-Meier estimate within one stratum.
type KMStratum struct {
	Label      string    `json:"label"`
	N          int       `json:"n"`
	Events     int       `json:"events"`
	Points     []KMPoint `json:"points"`
	MedianTime float64   `json:"median_time"` // NaN when the curve never crosses 0.5
}

// KMFit is a stratified Kaplan-Meier estimate with a log-rank comparison
// across strata.
type KMFit struct {
	TimeColumn   string      `json:"time_column"`
	EventColumn  string      `json:"event_column"`
	StrataColumn string      `json:"strata_column,omitempty"`
	Strata       []KMStratum `json:"strata"`
	LogRankChi2  float64     `json:"log_rank_chi2"`
	LogRankDF    int         `json:"log_rank_df"`
	LogRankP     float64     `json:"log_rank_p"`
}

// FitKaplanMeier computes stratified Kaplan-Meier survival curves with
// Greenwood confidence bands at the given level. An empty strata column
// produces a single stratum. Rows missing any used column are excluded.
func FitKaplanMeier(tbl *dataset.Table, timeCol, eventCol, strataCol string, level float64) (*KMFit, error) {
	if level == 0 {
		level = 0.95
	}
	cols := []string{timeCol, eventCol}
	if strataCol != "" {
		cols = append(cols, strataCol)
	}
	rows, err := tbl.CompleteCases(cols...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no complete rows for survival fit", ErrMissingValues)
	}

	timeColumn, _ := tbl.Column(timeCol)
	var eventLevels []string
	events, err := encodeBinary(tbl, eventCol, rows, &eventLevels)
	if err != nil {
		return nil, err
	}

	times := make([]float64, len(rows))
	for k, i := range rows {
		v, ok := timeColumn.FloatAt(i)
		if !ok || v < 0 {
			return nil, fmt.Errorf("%w: time column %s must be non-negative numeric", ErrBadOutcome, timeCol)
		}
		times[k] = v
	}

	labels := make([]string, len(rows))
	if strataCol == "" {
		for k := range labels {
			labels[k] = "all"
		}
	} else {
		sc, _ := tbl.Column(strataCol)
		for k, i := range rows {
			v, ok := sc.StringAt(i)
			if !ok {
				return nil, fmt.Errorf("%w: stratum missing at row %d", ErrMissingValues, i)
			}
			labels[k] = v
		}
	}

	// Stable stratum order: first appearance.
	var order []string
	byLabel := map[string][]int{}
	for k, l := range labels {
		if _, seen := byLabel[l]; !seen {
			order = append(order, l)
		}
		byLabel[l] = append(byLabel[l], k)
	}

	fit := &KMFit{TimeColumn: timeCol, EventColumn: eventCol, StrataColumn: strataCol}
	for _, label := range order {
		idx := byLabel[label]
		st := kmStratum(label, idx, times, events, level)
		fit.Strata = append(fit.Strata, st)
	}

	if len(fit.Strata) > 1 {
		fit.LogRankChi2, fit.LogRankDF = logRank(labels, times, events, order)
		chi := distuv.ChiSquared{K: float64(fit.LogRankDF)}
		fit.LogRankP = chi.Survival(fit.LogRankChi2)
	}
	return fit, nil
}

func kmStratum(label string, idx []int, times, events []float64, level float64) KMStratum {
	type obs struct {
		t float64
		e bool
	}
	data := make([]obs, len(idx))
	nEvents := 0
	for k, i := range idx {
		data[k] = obs{t: times[i], e: events[i] == 1}
		if data[k].e {
			nEvents++
		}
	}
	sort.Slice(data, func(a, b int) bool { return data[a].t < data[b].t })

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - (1-level)/2)

	st := KMStratum{Label: label, N: len(idx), Events: nEvents, MedianTime: math.NaN()}
	surv := 1.0
	greenwood := 0.0
	atRisk := len(data)

	i := 0
	for i < len(data) {
		t := data[i].t
		d, c := 0, 0
		for i < len(data) && data[i].t == t {
			if data[i].e {
				d++
			} else {
				c++
			}
			i++
		}
		if d > 0 {
			surv *= 1 - float64(d)/float64(atRisk)
			if atRisk > d {
				greenwood += float64(d) / (float64(atRisk) * float64(atRisk-d))
			}
			lower, upper := surv, surv
			if surv > 0 {
				se := math.Sqrt(greenwood)
				lower = surv * math.Exp(-z*se)
				upper = surv * math.Exp(z*se)
				if upper > 1 {
					upper = 1
				}
			}
			st.Points = append(st.Points, KMPoint{
				Time: t, AtRisk: atRisk, Events: d,
				Survival: surv, Lower: lower, Upper: upper,
			})
			if math.IsNaN(st.MedianTime) && surv <= 0.5 {
				st.MedianTime = t
			}
		}
		atRisk -= d + c
	}
	return st
}

// logRank computes the log-rank statistic across strata. Two strata use the
// exact hypergeometric variance; more use the classical sum of
// (O-E)^2/E across groups.
func logRank(labels []string, times, events []float64, order []string) (chi2 float64, df int) {
	g := len(order)
	groupOf := make(map[string]int, g)
	for i, l := range order {
		groupOf[l] = i
	}

	type obs struct {
		t     float64
		e     bool
		group int
	}
	data := make([]obs, len(times))
	for i := range times {
		data[i] = obs{t: times[i], e: events[i] == 1, group: groupOf[labels[i]]}
	}
	sort.Slice(data, func(a, b int) bool { return data[a].t < data[b].t })

	atRisk := make([]float64, g)
	for _, o := range data {
		atRisk[o.group]++
	}

	observed := make([]float64, g)
	expected := make([]float64, g)
	var variance float64 // 2-group case

	i := 0
	for i < len(data) {
		t := data[i].t
		deaths := make([]float64, g)
		censored := make([]float64, g)
		var d float64
		for i < len(data) && data[i].t == t {
			if data[i].e {
				deaths[data[i].group]++
				d++
			} else {
				censored[data[i].group]++
			}
			i++
		}
		var n float64
		for _, r := range atRisk {
			n += r
		}
		if d > 0 && n > 1 {
			for j := 0; j < g; j++ {
				observed[j] += deaths[j]
				expected[j] += d * atRisk[j] / n
			}
			if g == 2 {
				variance += d * (atRisk[0] / n) * (atRisk[1] / n) * (n - d) / (n - 1)
			}
		}
		for j := 0; j < g; j++ {
			atRisk[j] -= deaths[j] + censored[j]
		}
	}

	df = g - 1
	if g == 2 {
		if variance > 0 {
			diff := observed[0] - expected[0]
			chi2 = diff * diff / variance
		}
		return chi2, df
	}
	for j := 0; j < g; j++ {
		if expected[j] > 0 {
			diff := observed[j] - expected[j]
			chi2 += diff * diff / expected[j]
		}
	}
	return chi2, df
}
