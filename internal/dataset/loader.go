package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/time/rate"

	"statpipe/internal/config"
)

// ErrEmptyDataset is returned when a source contains no data rows.
var ErrEmptyDataset = errors.New("dataset contains no data rows")

// Format identifies a tabular file format
type Format string

const (
	// FormatCSV is comma-separated text
	FormatCSV Format = "csv"
	// FormatXLSX is an Excel workbook (first sheet is read)
	FormatXLSX Format = "xlsx"
)

// missing markers recognized during parsing, following the conventions of
// the public-health exports this tool consumes.
var missingMarkers = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, ".": true, "NULL": true,
}

// ReadCSV parses CSV data into a table. The first record is the header;
// column types are inferred per column: all-integer, then numeric, then
// string. Recognized missing markers ("", NA, N/A, NaN, ., NULL) become
// missing values of the inferred type.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV records: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrEmptyDataset
	}
	return buildTable(name, records[0], records[1:])
}

// ReadCSVFile parses a local CSV file into a table named after the file.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer f.Close()
	return ReadCSV(tableName(path), f)
}

// ReadXLSX parses the first sheet of an Excel workbook into a table.
func ReadXLSX(name string, r io.Reader) (*Table, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyDataset
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, ErrEmptyDataset
	}
	// Sheet rows can be ragged; pad to header width.
	header := rows[0]
	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make([]string, len(header))
		copy(rec, row)
		records = append(records, rec)
	}
	return buildTable(name, header, records)
}

// ReadXLSXFile parses a local workbook into a table named after the file.
func ReadXLSXFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook file: %w", err)
	}
	defer f.Close()
	return ReadXLSX(tableName(path), f)
}

// ReadFile loads a local dataset, dispatching on the file extension.
func ReadFile(path string) (*Table, error) {
	switch detectFormat(path) {
	case FormatXLSX:
		return ReadXLSXFile(path)
	default:
		return ReadCSVFile(path)
	}
}

// Fetcher retrieves remote datasets over HTTP with polite rate limiting.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *slog.Logger
}

// NewFetcher builds a fetcher from configuration.
func NewFetcher(cfg config.FetchConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Fetch downloads and parses a dataset from url, dispatching on the URL
// path extension.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Table, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	f.logger.InfoContext(ctx, "fetching dataset", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch dataset: unexpected status %s", resp.Status)
	}

	name := tableName(url)
	var table *Table
	switch detectFormat(url) {
	case FormatXLSX:
		table, err = ReadXLSX(name, resp.Body)
	default:
		table, err = ReadCSV(name, resp.Body)
	}
	if err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "dataset fetched",
		"url", url,
		"rows", table.NumRows(),
		"columns", table.NumCols(),
	)
	return table, nil
}

// Load resolves a dataset source that is either an HTTP(S) URL or a local
// path.
func (f *Fetcher) Load(ctx context.Context, source string) (*Table, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return f.Fetch(ctx, source)
	}
	return ReadFile(source)
}

func detectFormat(path string) Format {
	ext := strings.ToLower(filepath.Ext(strings.SplitN(path, "?", 2)[0]))
	if ext == ".xlsx" || ext == ".xlsm" {
		return FormatXLSX
	}
	return FormatCSV
}

func tableName(path string) string {
	base := filepath.Base(strings.SplitN(path, "?", 2)[0])
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// buildTable infers a type per column and materializes typed columns.
func buildTable(name string, header []string, records [][]string) (*Table, error) {
	ncols := len(header)
	cols := make([]*Column, 0, ncols)

	for j := 0; j < ncols; j++ {
		values := make([]string, len(records))
		for i, rec := range records {
			if j < len(rec) {
				values[i] = strings.TrimSpace(rec[j])
			}
		}
		cols = append(cols, inferColumn(strings.TrimSpace(header[j]), values))
	}

	return New(name, cols...)
}

// inferColumn picks the narrowest type that fits every non-missing value.
func inferColumn(name string, values []string) *Column {
	isInt, isFloat := true, true
	for _, v := range values {
		if missingMarkers[v] {
			continue
		}
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if !isInt && isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if !isInt && !isFloat {
			break
		}
	}

	missing := make([]bool, len(values))
	for i, v := range values {
		missing[i] = missingMarkers[v]
	}

	switch {
	case isInt:
		ints := make([]int64, len(values))
		for i, v := range values {
			if !missing[i] {
				ints[i], _ = strconv.ParseInt(v, 10, 64)
			}
		}
		return &Column{Name: name, Type: Int, Ints: ints, Missing: missing}
	case isFloat:
		floats := make([]float64, len(values))
		for i, v := range values {
			if !missing[i] {
				floats[i], _ = strconv.ParseFloat(v, 64)
			}
		}
		return &Column{Name: name, Type: Float, Floats: floats, Missing: missing}
	default:
		strs := make([]string, len(values))
		for i, v := range values {
			if !missing[i] {
				strs[i] = v
			}
		}
		return &Column{Name: name, Type: String, Strings: strs, Missing: missing}
	}
}
