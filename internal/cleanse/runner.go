package cleanse

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"statpipe/internal/dataset"
)

// Audit records the row counts around one row-dropping step.
type Audit struct {
	Step   string `json:"step"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// Result is the outcome of a cleaning pipeline: the cleaned analysis table
// and the audit trail of every row-dropping step.
type Result struct {
	Table  *dataset.Table
	Audits []Audit
}

// Apply runs the rule set against a raw table and produces the cleaned
// analysis table. The input table is never modified.
func Apply(ctx context.Context, logger *slog.Logger, tbl *dataset.Table, spec *Spec) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "cleaning pipeline started",
		"dataset", tbl.Name(),
		"rows", tbl.NumRows(),
		"columns", tbl.NumCols(),
	)

	res := &Result{}
	var err error

	if tbl, err = applySelect(tbl, spec.Select); err != nil {
		return nil, err
	}
	if tbl, err = applyTypes(tbl, spec.Types); err != nil {
		return nil, err
	}
	for _, dr := range spec.Derive {
		if tbl, err = applyDerive(tbl, dr); err != nil {
			return nil, err
		}
	}

	for _, fr := range spec.Filters {
		before := tbl.NumRows()
		if tbl, err = applyFilter(tbl, fr); err != nil {
			return nil, err
		}
		audit := Audit{Step: filterLabel(fr), Before: before, After: tbl.NumRows()}
		res.Audits = append(res.Audits, audit)
		logger.InfoContext(ctx, "filter applied",
			"step", audit.Step,
			"rows_before", audit.Before,
			"rows_after", audit.After,
		)
		if err = checkID(tbl, spec.IDColumn); err != nil {
			return nil, fmt.Errorf("after filter %q: %w", audit.Step, err)
		}
	}

	for _, cr := range spec.CollapseRare {
		if tbl, err = applyCollapse(ctx, logger, tbl, cr); err != nil {
			return nil, err
		}
	}

	if spec.DropUnusedLevels {
		tbl = tbl.DropUnusedLevels()
	}

	if spec.Sample != nil {
		before := tbl.NumRows()
		tbl, err = tbl.Sample(spec.Sample.N, spec.Sample.Seed)
		if err != nil {
			return nil, err
		}
		audit := Audit{Step: fmt.Sprintf("sample n=%d seed=%d", spec.Sample.N, spec.Sample.Seed), Before: before, After: tbl.NumRows()}
		res.Audits = append(res.Audits, audit)
		logger.InfoContext(ctx, "sample drawn",
			"n", spec.Sample.N,
			"seed", spec.Sample.Seed,
			"rows_before", before,
		)
		if err = checkID(tbl, spec.IDColumn); err != nil {
			return nil, fmt.Errorf("after sampling: %w", err)
		}
	}

	logger.InfoContext(ctx, "cleaning pipeline completed",
		"dataset", tbl.Name(),
		"rows", tbl.NumRows(),
		"columns", tbl.NumCols(),
		"steps_audited", len(res.Audits),
	)

	res.Table = tbl
	return res, nil
}

func checkID(tbl *dataset.Table, idColumn string) error {
	if idColumn == "" {
		return nil
	}
	return tbl.CheckUniqueID(idColumn)
}

func applySelect(tbl *dataset.Table, rules []SelectRule) (*dataset.Table, error) {
	if len(rules) == 0 {
		return tbl, nil
	}
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.From
	}
	out, err := tbl.Select(names...)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if r.As != "" && r.As != r.From {
			if out, err = out.Rename(r.From, r.As); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func applyTypes(tbl *dataset.Table, rules []TypeRule) (*dataset.Table, error) {
	var err error
	for _, r := range rules {
		col, cerr := tbl.Column(r.Column)
		if cerr != nil {
			return nil, cerr
		}
		var cast *dataset.Column
		switch r.To {
		case "categorical":
			cast = castCategorical(col, r.Levels)
		case "float":
			cast, err = castFloat(col)
		case "int":
			cast, err = castInt(col)
		case "string":
			cast = castString(col)
		}
		if err != nil {
			return nil, fmt.Errorf("retype %s to %s: %w", r.Column, r.To, err)
		}
		if tbl, err = tbl.WithColumn(cast); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func castCategorical(col *dataset.Column, levels []string) *dataset.Column {
	n := col.Len()
	values := make([]string, n)
	for i := 0; i < n; i++ {
		if v, ok := col.StringAt(i); ok {
			values[i] = v
		}
	}
	return dataset.NewCategoricalColumn(col.Name, values, levels)
}

func castFloat(col *dataset.Column) (*dataset.Column, error) {
	n := col.Len()
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		v, ok := col.FloatAt(i)
		if !ok {
			if !col.IsMissing(i) {
				return nil, fmt.Errorf("row %d is not numeric", i)
			}
			values[i] = math.NaN()
			continue
		}
		values[i] = v
	}
	return dataset.NewFloatColumn(col.Name, values), nil
}

func castInt(col *dataset.Column) (*dataset.Column, error) {
	n := col.Len()
	values := make([]int64, n)
	missing := make([]bool, n)
	for i := 0; i < n; i++ {
		v, ok := col.FloatAt(i)
		if !ok {
			if !col.IsMissing(i) {
				return nil, fmt.Errorf("row %d is not numeric", i)
			}
			missing[i] = true
			continue
		}
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("row %d value %g is not integral", i, v)
		}
		values[i] = int64(v)
	}
	return &dataset.Column{Name: col.Name, Type: dataset.Int, Ints: values, Missing: missing}, nil
}

func castString(col *dataset.Column) *dataset.Column {
	n := col.Len()
	values := make([]string, n)
	for i := 0; i < n; i++ {
		if v, ok := col.StringAt(i); ok {
			values[i] = v
		}
	}
	return dataset.NewStringColumn(col.Name, values)
}

func applyDerive(tbl *dataset.Table, rule DeriveRule) (*dataset.Table, error) {
	var col *dataset.Column
	var err error
	switch rule.Kind {
	case DeriveBucket:
		col, err = deriveBucket(tbl, rule)
	case DeriveLog, DeriveLog10, DeriveSqrt, DeriveScale:
		col, err = deriveTransform(tbl, rule)
	case DeriveRatio:
		col, err = deriveRatio(tbl, rule)
	default:
		err = fmt.Errorf("unknown derivation kind %q", rule.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", rule.Column, err)
	}
	return tbl.WithColumn(col)
}

func deriveBucket(tbl *dataset.Table, rule DeriveRule) (*dataset.Column, error) {
	src, err := tbl.Column(rule.Source)
	if err != nil {
		return nil, err
	}
	n := src.Len()
	values := make([]string, n)
	for i := 0; i < n; i++ {
		v, ok := src.FloatAt(i)
		if !ok {
			continue
		}
		values[i] = bucketLabel(v, rule.Breaks, rule.Labels)
	}
	return dataset.NewCategoricalColumn(rule.Column, values, rule.Labels), nil
}

// bucketLabel assigns v to the half-open interval [breaks[i], breaks[i+1]);
// the final interval is closed so the declared buckets partition the full
// break range exactly. Values outside the range get no label.
func bucketLabel(v float64, breaks []float64, labels []string) string {
	if v < breaks[0] || v > breaks[len(breaks)-1] {
		return ""
	}
	for i := 1; i < len(breaks); i++ {
		if v < breaks[i] {
			return labels[i-1]
		}
	}
	return labels[len(labels)-1]
}

func deriveTransform(tbl *dataset.Table, rule DeriveRule) (*dataset.Column, error) {
	src, err := tbl.Column(rule.Source)
	if err != nil {
		return nil, err
	}
	n := src.Len()
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		v, ok := src.FloatAt(i)
		if !ok {
			values[i] = math.NaN()
			continue
		}
		switch rule.Kind {
		case DeriveLog:
			if v <= 0 {
				values[i] = math.NaN()
			} else {
				values[i] = math.Log(v)
			}
		case DeriveLog10:
			if v <= 0 {
				values[i] = math.NaN()
			} else {
				values[i] = math.Log10(v)
			}
		case DeriveSqrt:
			if v < 0 {
				values[i] = math.NaN()
			} else {
				values[i] = math.Sqrt(v)
			}
		case DeriveScale:
			scale := rule.Scale
			if scale == 0 {
				scale = 1
			}
			values[i] = scale*v + rule.Offset
		}
	}
	return dataset.NewFloatColumn(rule.Column, values), nil
}

func deriveRatio(tbl *dataset.Table, rule DeriveRule) (*dataset.Column, error) {
	num, err := tbl.Column(rule.Numerator)
	if err != nil {
		return nil, err
	}
	den, err := tbl.Column(rule.Denominator)
	if err != nil {
		return nil, err
	}
	power := rule.DenominatorPower
	if power == 0 {
		power = 1
	}
	scale := rule.Scale
	if scale == 0 {
		scale = 1
	}
	n := num.Len()
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		nv, nok := num.FloatAt(i)
		dv, dok := den.FloatAt(i)
		if !nok || !dok || dv == 0 {
			values[i] = math.NaN()
			continue
		}
		values[i] = nv / math.Pow(dv, power) * scale
	}
	return dataset.NewFloatColumn(rule.Column, values), nil
}

// applyCollapse re-codes one categorical column so that every level observed
// fewer than MinCount times lands in the residual level. Row counts never
// change; only the level set does.
func applyCollapse(ctx context.Context, logger *slog.Logger, tbl *dataset.Table, rule CollapseRule) (*dataset.Table, error) {
	if rule.MinCount <= 0 {
		return nil, fmt.Errorf("collapse %s: min count must be positive", rule.Column)
	}
	col, err := tbl.Column(rule.Column)
	if err != nil {
		return nil, err
	}
	if col.Type != dataset.Categorical {
		return nil, fmt.Errorf("collapse %s: column is %s, not categorical", rule.Column, col.Type)
	}
	into := rule.Into
	if into == "" {
		into = "other"
	}

	counts := col.LevelCounts()
	rare := make(map[string]bool)
	var kept []string
	for i, l := range col.Levels {
		if counts[i] > 0 && counts[i] < rule.MinCount && l != into {
			rare[l] = true
			continue
		}
		kept = append(kept, l)
	}
	if len(rare) == 0 {
		return tbl, nil
	}
	hasInto := false
	for _, l := range kept {
		if l == into {
			hasInto = true
			break
		}
	}
	if !hasInto {
		kept = append(kept, into)
	}

	n := col.Len()
	values := make([]string, n)
	collapsed := 0
	for i := 0; i < n; i++ {
		label, ok := col.LevelAt(i)
		if !ok {
			continue
		}
		if rare[label] {
			label = into
			collapsed++
		}
		values[i] = label
	}
	out, err := tbl.WithColumn(dataset.NewCategoricalColumn(rule.Column, values, kept))
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "rare levels collapsed",
		"column", rule.Column,
		"into", into,
		"levels", len(rare),
		"rows", collapsed,
		"min_count", rule.MinCount,
	)
	return out, nil
}

func applyFilter(tbl *dataset.Table, rule FilterRule) (*dataset.Table, error) {
	col, err := tbl.Column(rule.Column)
	if err != nil {
		return nil, err
	}
	n := col.Len()
	keep := make([]bool, n)
	for i := 0; i < n; i++ {
		keep[i], err = evalFilter(col, i, rule)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", rule.Column, err)
		}
	}
	return tbl.FilterRows(keep)
}

func evalFilter(col *dataset.Column, i int, rule FilterRule) (bool, error) {
	switch rule.Op {
	case OpComplete:
		return !col.IsMissing(i), nil
	case OpIn, OpEq:
		v, ok := col.StringAt(i)
		if !ok {
			return false, nil
		}
		return containsString(filterValues(rule), v), nil
	case OpNotIn, OpNe:
		v, ok := col.StringAt(i)
		if !ok {
			return true, nil
		}
		return !containsString(filterValues(rule), v), nil
	case OpGt, OpGe, OpLt, OpLe:
		v, ok := col.FloatAt(i)
		if !ok {
			return false, nil
		}
		switch rule.Op {
		case OpGt:
			return v > *rule.Value, nil
		case OpGe:
			return v >= *rule.Value, nil
		case OpLt:
			return v < *rule.Value, nil
		default:
			return v <= *rule.Value, nil
		}
	}
	return false, fmt.Errorf("unknown operator %q", rule.Op)
}

func filterValues(rule FilterRule) []string {
	if len(rule.Values) > 0 {
		return rule.Values
	}
	if rule.Value != nil {
		return []string{fmt.Sprintf("%g", *rule.Value)}
	}
	return nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func filterLabel(rule FilterRule) string {
	switch rule.Op {
	case OpComplete:
		return fmt.Sprintf("%s complete", rule.Column)
	case OpIn, OpNotIn:
		return fmt.Sprintf("%s %s [%s]", rule.Column, rule.Op, strings.Join(rule.Values, ","))
	default:
		if rule.Value != nil {
			return fmt.Sprintf("%s %s %g", rule.Column, rule.Op, *rule.Value)
		}
		return fmt.Sprintf("%s %s %s", rule.Column, rule.Op, strings.Join(rule.Values, ","))
	}
}
