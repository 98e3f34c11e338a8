package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Save renders every output format into a run-scoped directory under
// outDir and writes the manifest. It returns the run directory.
func Save(ctx context.Context, logger *slog.Logger, doc *Document, outDir string) (string, error) {
	runDir := filepath.Join(outDir, doc.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}

	var outputs []string
	write := func(name string, data []byte) error {
		path := filepath.Join(runDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		outputs = append(outputs, name)
		return nil
	}

	if err := write("report.txt", []byte(RenderText(doc))); err != nil {
		return "", err
	}

	html, err := RenderHTML(doc)
	if err != nil {
		return "", err
	}
	if err := write("report.html", html); err != nil {
		return "", err
	}

	if doc.Comparison != nil {
		coefs, err := RenderCoefficientsCSV(doc)
		if err != nil {
			return "", err
		}
		if err := write("coefficients.csv", coefs); err != nil {
			return "", err
		}

		comparison, err := RenderComparisonCSV(doc)
		if err != nil {
			return "", err
		}
		if err := write("comparison.csv", comparison); err != nil {
			return "", err
		}
	}

	xlsxPath := filepath.Join(runDir, "report.xlsx")
	if err := WriteXLSX(doc, xlsxPath); err != nil {
		return "", err
	}
	outputs = append(outputs, "report.xlsx")

	if err := NewManifest(doc, outputs).Save(runDir); err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "report saved",
		"run_id", doc.RunID,
		"dir", runDir,
		"outputs", len(outputs)+1)
	return runDir, nil
}
