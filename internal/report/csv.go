package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// RenderCoefficientsCSV renders every fitted candidate's coefficient table
// as one CSV document, one row per term.
func RenderCoefficientsCSV(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"model", "term", "estimate", "std_err", "lower", "upper", "z", "p"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	if doc.Comparison != nil {
		for i := range doc.Comparison.Rows {
			r := &doc.Comparison.Rows[i]
			fit := r.Fit()
			if fit == nil {
				continue
			}
			for _, c := range fit.Coefficients {
				record := []string{
					r.Name, c.Name,
					formatFloat(c.Estimate), formatFloat(c.StdErr),
					formatFloat(c.Lower), formatFloat(c.Upper),
					formatFloat(c.Z), formatFloat(c.P),
				}
				if err := w.Write(record); err != nil {
					return nil, fmt.Errorf("write csv row: %w", err)
				}
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderComparisonCSV renders the model comparison table as CSV.
func RenderComparisonCSV(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"model", "formula", "family", "n", "params", "log_lik", "aic", "bic", "statistic", "value", "error"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	if doc.Comparison != nil {
		for _, r := range doc.Comparison.Rows {
			record := []string{
				r.Name, r.Formula, r.Family,
				strconv.Itoa(r.N), strconv.Itoa(r.Params),
				formatFloat(r.LogLik), formatFloat(r.AIC), formatFloat(r.BIC),
				r.Statistic, formatFloat(r.Value), r.Err,
			}
			if err := w.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}
