package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes the document as an XLSX workbook: a summary sheet, the
// comparison table, the coefficient table of the recommended model, and the
// validation outcomes.
func WriteXLSX(doc *Document, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	f.SetSheetName("Sheet1", summary)
	setRow(f, summary, 1, "title", doc.Title)
	setRow(f, summary, 2, "run_id", doc.RunID)
	setRow(f, summary, 3, "dataset", doc.Dataset)
	setRow(f, summary, 4, "rows", doc.Rows)
	setRow(f, summary, 5, "columns", doc.Columns)
	setRow(f, summary, 6, "generated_at", doc.GeneratedAt.Format("2006-01-02 15:04:05"))

	if doc.Comparison != nil {
		sheet := "Comparison"
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		writeHeader(f, sheet, "model", "formula", "family", "n", "params", "log_lik", "aic", "bic", "statistic", "value", "error")
		for i, r := range doc.Comparison.Rows {
			row := i + 2
			writeCells(f, sheet, row, r.Name, r.Formula, r.Family, r.N, r.Params, r.LogLik, r.AIC, r.BIC, r.Statistic, r.Value, r.Err)
		}

		if best := doc.BestFit(); best != nil {
			sheet := "Coefficients"
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("create sheet %s: %w", sheet, err)
			}
			writeHeader(f, sheet, "term", "estimate", "std_err", "lower", "upper", "z", "p")
			for i, c := range best.Coefficients {
				writeCells(f, sheet, i+2, c.Name, c.Estimate, c.StdErr, c.Lower, c.Upper, c.Z, c.P)
			}
		}
	}

	if len(doc.Validations) > 0 {
		sheet := "Validation"
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		writeHeader(f, sheet, "formula", "procedure", "statistic", "apparent", "corrected")
		row := 2
		for _, v := range doc.Validations {
			if v.Bootstrap != nil {
				writeCells(f, sheet, row, v.Formula, fmt.Sprintf("bootstrap(%d)", v.Bootstrap.Replicates),
					v.Bootstrap.Statistic, v.Bootstrap.Apparent, v.Bootstrap.Corrected)
				row++
			}
			if v.Holdout != nil {
				writeCells(f, sheet, row, v.Formula, fmt.Sprintf("holdout(n=%d)", v.Holdout.TestN),
					v.Holdout.Statistic, v.Holdout.Train, v.Holdout.Test)
				row++
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, key string, value interface{}) {
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), key)
	f.SetCellValue(sheet, fmt.Sprintf("B%d", row), value)
}

func writeHeader(f *excelize.File, sheet string, names ...string) {
	for i, n := range names {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, n)
	}
}

func writeCells(f *excelize.File, sheet string, row int, values ...interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}
