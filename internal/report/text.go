package report

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"
)

// RenderText renders the document as an aligned plain-text report.
func RenderText(doc *Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", doc.Title)
	fmt.Fprintf(&b, "run %s generated %s\n", doc.RunID, doc.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "dataset %s: %d rows, %d columns\n", doc.Dataset, doc.Rows, doc.Columns)

	if len(doc.Audits) > 0 {
		fmt.Fprintf(&b, "\nCleaning audit\n")
		w := newTab(&b)
		fmt.Fprintln(w, "step\tbefore\tafter\tdropped")
		for _, a := range doc.Audits {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", a.Step, a.Before, a.After, a.Before-a.After)
		}
		w.Flush()
	}

	if len(doc.Missingness) > 0 {
		fmt.Fprintf(&b, "\nMissingness\n")
		w := newTab(&b)
		fmt.Fprintln(w, "column\ttype\tmissing\ttotal\tpercent")
		for _, m := range doc.Missingness {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f%%\n", m.Column, m.Type, m.Missing, m.Total, m.Percent)
		}
		w.Flush()
	}

	if len(doc.Describe) > 0 {
		fmt.Fprintf(&b, "\nDescriptive statistics\n")
		w := newTab(&b)
		fmt.Fprintln(w, "column\tn\tmean\tsd\tmin\tq1\tmedian\tq3\tmax")
		for _, d := range doc.Describe {
			fmt.Fprintf(w, "%s\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n",
				d.Column, d.N, d.Mean, d.SD, d.Min, d.Q1, d.Median, d.Q3, d.Max)
		}
		w.Flush()
	}

	if doc.Spearman != nil {
		fmt.Fprintf(&b, "\nSpearman correlations\n")
		w := newTab(&b)
		fmt.Fprintf(w, "\t%s\n", strings.Join(doc.Spearman.Columns, "\t"))
		for i, name := range doc.Spearman.Columns {
			fmt.Fprintf(w, "%s", name)
			for j := range doc.Spearman.Columns {
				fmt.Fprintf(w, "\t%.3f", doc.Spearman.At(i, j))
			}
			fmt.Fprintln(w)
		}
		w.Flush()
	}

	if len(doc.VIF) > 0 {
		fmt.Fprintf(&b, "\nVariance inflation\n")
		w := newTab(&b)
		fmt.Fprintln(w, "column\tvif\tflagged")
		for _, v := range doc.VIF {
			fmt.Fprintf(w, "%s\t%.2f\t%v\n", v.Column, v.VIF, v.Flagged)
		}
		w.Flush()
	}

	if doc.Comparison != nil {
		fmt.Fprintf(&b, "\nModel comparison (best: %s)\n", doc.Comparison.Best)
		w := newTab(&b)
		fmt.Fprintln(w, "model\tformula\tdf\tlogLik\tAIC\tBIC\tstatistic")
		for _, r := range doc.Comparison.Rows {
			if r.Err != "" {
				fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\tfailed: %s\n", r.Name, r.Formula, r.Err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%s=%.4f\n",
				r.Name, r.Formula, r.Params, r.LogLik, r.AIC, r.BIC, r.Statistic, r.Value)
		}
		w.Flush()

		for _, lr := range doc.Comparison.LRTests {
			fmt.Fprintf(&b, "LR test %s vs %s: chi2=%.3f df=%d p=%.4f\n",
				lr.Restricted, lr.Full, lr.Chi2, lr.DF, lr.P)
		}
		for _, v := range doc.Comparison.VuongTests {
			pref := v.Preferred
			if pref == "" {
				pref = "indistinguishable"
			}
			fmt.Fprintf(&b, "Vuong test %s vs %s: z=%.3f p=%.4f (%s)\n",
				v.ModelA, v.ModelB, v.Z, v.P, pref)
		}

		if best := doc.BestFit(); best != nil {
			fmt.Fprintf(&b, "\nCoefficients: %s\n", doc.Comparison.Best)
			w := newTab(&b)
			fmt.Fprintln(w, "term\testimate\tstd err\tlower\tupper\tp")
			for _, c := range best.Coefficients {
				fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
					c.Name, c.Estimate, c.StdErr, c.Lower, c.Upper, c.P)
			}
			w.Flush()
		}
	}

	if len(doc.Validations) > 0 {
		fmt.Fprintf(&b, "\nValidation\n")
		w := newTab(&b)
		fmt.Fprintln(w, "formula\tprocedure\tstatistic\tapparent\tcorrected")
		for _, v := range doc.Validations {
			if v.Bootstrap != nil {
				fmt.Fprintf(w, "%s\tbootstrap(%d)\t%s\t%.4f\t%.4f\n",
					v.Formula, v.Bootstrap.Replicates, v.Bootstrap.Statistic,
					v.Bootstrap.Apparent, v.Bootstrap.Corrected)
			}
			if v.Holdout != nil {
				fmt.Fprintf(w, "%s\tholdout(n=%d)\t%s\t%.4f\t%.4f\n",
					v.Formula, v.Holdout.TestN, v.Holdout.Statistic,
					v.Holdout.Train, v.Holdout.Test)
			}
		}
		w.Flush()
	}

	if doc.Survival != nil {
		fmt.Fprintf(&b, "\nKaplan-Meier: %s\n", survivalHeading(doc))
		w := newTab(&b)
		fmt.Fprintln(w, "stratum\tn\tevents\tmedian")
		for _, st := range doc.Survival.Strata {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", st.Label, st.N, st.Events, formatMedian(st.MedianTime))
		}
		w.Flush()
		if doc.Survival.LogRankDF > 0 {
			fmt.Fprintf(&b, "log-rank: chi2=%.3f df=%d p=%.4f\n",
				doc.Survival.LogRankChi2, doc.Survival.LogRankDF, doc.Survival.LogRankP)
		}
	}

	return b.String()
}

func newTab(b *strings.Builder) *tabwriter.Writer {
	return tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
}

func survivalHeading(doc *Document) string {
	s := doc.Survival
	h := fmt.Sprintf("Surv(%s,%s)", s.TimeColumn, s.EventColumn)
	if s.StrataColumn != "" {
		h += " by " + s.StrataColumn
	}
	return h
}

func formatMedian(v float64) string {
	if math.IsNaN(v) {
		return "not reached"
	}
	return fmt.Sprintf("%.1f", v)
}
