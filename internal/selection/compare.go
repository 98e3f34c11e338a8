package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"statpipe/internal/dataset"
	"statpipe/internal/model"
)

// ErrNoCandidates signals an empty or entirely failed candidate list.
var ErrNoCandidates = errors.New("no candidate model could be fitted")

// Candidate is one named model specification to fit and compare.
type Candidate struct {
	Name    string        `yaml:"name" validate:"required"`
	Formula model.Formula `yaml:"formula" validate:"required"`
	Options model.Options `yaml:"options" validate:"required"`
}

// Row summarizes one fitted candidate. Candidates whose fit failed keep
// their row with Err set so the comparison records why they dropped out.
type Row struct {
	Name      string  `json:"name"`
	Formula   string  `json:"formula"`
	Family    string  `json:"family"`
	N         int     `json:"n"`
	Params    int     `json:"params"`
	LogLik    float64 `json:"log_lik"`
	AIC       float64 `json:"aic"`
	BIC       float64 `json:"bic"`
	Statistic string  `json:"statistic"`
	Value     float64 `json:"value"`
	Err       string  `json:"error,omitempty"`

	fit *model.Fitted
}

// Fit exposes the underlying fitted model, nil when the fit failed.
func (r *Row) Fit() *model.Fitted { return r.fit }

// LRTest is a likelihood-ratio comparison of a restricted model against a
// wider one it is nested in.
type LRTest struct {
	Restricted string  `json:"restricted"`
	Full       string  `json:"full"`
	Chi2       float64 `json:"chi2"`
	DF         int     `json:"df"`
	P          float64 `json:"p"`
}

// VuongTest compares two non-nested models of the same outcome. Positive Z
// favors model A.
type VuongTest struct {
	ModelA    string  `json:"model_a"`
	ModelB    string  `json:"model_b"`
	Z         float64 `json:"z"`
	P         float64 `json:"p"`
	Preferred string  `json:"preferred,omitempty"`
}

// Comparison is the full output of a selection run.
type Comparison struct {
	Rows       []Row       `json:"rows"`
	LRTests    []LRTest    `json:"lr_tests,omitempty"`
	VuongTests []VuongTest `json:"vuong_tests,omitempty"`
	// Best names the most parsimonious candidate within the AIC margin of
	// the minimum.
	Best string `json:"best"`
}

// Compare fits every candidate on the table and assembles the comparison.
// The margin widens the AIC band inside which a simpler model wins the
// recommendation; zero means strict minimum AIC.
func Compare(ctx context.Context, logger *slog.Logger, tbl *dataset.Table, candidates []Candidate, margin float64) (*Comparison, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	cmp := &Comparison{Rows: make([]Row, len(candidates))}
	for i, c := range candidates {
		row := Row{Name: c.Name, Formula: c.Formula.String(), Family: string(c.Options.Family)}
		m, err := model.Fit(tbl, c.Formula, c.Options)
		if err != nil {
			row.Err = err.Error()
			logger.WarnContext(ctx, "candidate fit failed",
				"candidate", c.Name, "formula", row.Formula, "error", err)
		} else {
			statName, statValue := m.PrimaryStat()
			row.N = m.N
			row.Params = m.NumParams()
			row.LogLik = m.LogLik
			row.AIC = m.AIC
			row.BIC = m.BIC
			row.Statistic = statName
			row.Value = statValue
			row.fit = m
		}
		cmp.Rows[i] = row
	}

	for i := range cmp.Rows {
		for j := range cmp.Rows {
			if i == j {
				continue
			}
			a, b := &cmp.Rows[i], &cmp.Rows[j]
			if a.fit == nil || b.fit == nil || a.Family != b.Family || a.N != b.N {
				continue
			}
			ca, cb := candidates[i], candidates[j]
			if ca.Formula.Nested(cb.Formula) && b.fit.NumParams() > a.fit.NumParams() {
				cmp.LRTests = append(cmp.LRTests, likelihoodRatio(a, b))
			} else if i < j && !cb.Formula.Nested(ca.Formula) && ca.Formula.Outcome == cb.Formula.Outcome {
				if v, ok := vuong(a, b); ok {
					cmp.VuongTests = append(cmp.VuongTests, v)
				}
			}
		}
	}

	cmp.Best = pickBest(cmp.Rows, margin)
	if cmp.Best == "" {
		return nil, ErrNoCandidates
	}

	logger.InfoContext(ctx, "model comparison finished",
		"candidates", len(candidates),
		"lr_tests", len(cmp.LRTests),
		"vuong_tests", len(cmp.VuongTests),
		"best", cmp.Best)
	return cmp, nil
}

func likelihoodRatio(restricted, full *Row) LRTest {
	chi2 := 2 * (full.LogLik - restricted.LogLik)
	if chi2 < 0 {
		chi2 = 0
	}
	df := full.fit.NumParams() - restricted.fit.NumParams()
	dist := distuv.ChiSquared{K: float64(df)}
	return LRTest{
		Restricted: restricted.Name,
		Full:       full.Name,
		Chi2:       chi2,
		DF:         df,
		P:          dist.Survival(chi2),
	}
}

// vuong runs the Vuong closeness test over per-observation log-likelihood
// differences. Families that do not expose per-observation contributions
// are skipped.
func vuong(a, b *Row) (VuongTest, bool) {
	la, lb := a.fit.ObsLogLik(), b.fit.ObsLogLik()
	if la == nil || lb == nil || len(la) != len(lb) {
		return VuongTest{}, false
	}
	n := len(la)
	diff := make([]float64, n)
	for i := range diff {
		diff[i] = la[i] - lb[i]
	}
	mean, std := stat.MeanStdDev(diff, nil)
	if std == 0 || n < 2 {
		return VuongTest{}, false
	}
	z := math.Sqrt(float64(n)) * mean / std
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	p := 2 * norm.Survival(math.Abs(z))

	v := VuongTest{ModelA: a.Name, ModelB: b.Name, Z: z, P: p}
	if p < 0.05 {
		if z > 0 {
			v.Preferred = a.Name
		} else {
			v.Preferred = b.Name
		}
	}
	return v, true
}

// pickBest applies the parsimony rule: among candidates whose AIC is within
// the relative margin of the minimum, the one spending the fewest
// parameters wins; AIC breaks remaining ties.
func pickBest(rows []Row, margin float64) string {
	minAIC := math.Inf(1)
	for _, r := range rows {
		if r.fit != nil && r.AIC < minAIC {
			minAIC = r.AIC
		}
	}
	if math.IsInf(minAIC, 1) {
		return ""
	}
	band := minAIC + margin*math.Abs(minAIC)

	best := ""
	bestParams := 0
	bestAIC := math.Inf(1)
	for _, r := range rows {
		if r.fit == nil || r.AIC > band {
			continue
		}
		if best == "" || r.Params < bestParams || (r.Params == bestParams && r.AIC < bestAIC) {
			best = r.Name
			bestParams = r.Params
			bestAIC = r.AIC
		}
	}
	return best
}

// String renders one row for logs and text reports.
func (r Row) String() string {
	if r.Err != "" {
		return fmt.Sprintf("%s: failed (%s)", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: AIC=%.2f BIC=%.2f %s=%.4f df=%d", r.Name, r.AIC, r.BIC, r.Statistic, r.Value, r.Params)
}
