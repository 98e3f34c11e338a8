package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"statpipe/internal/dataset"
)

type termKind int

const (
	termNumeric termKind = iota
	termCategorical
)

// termEncoding captures how one formula term maps to design-matrix columns.
// Encodings are frozen at training time (observed levels, spline knots) so
// that prediction on new data uses the training parameterization.
type termEncoding struct {
	term        Term
	kind        termKind
	levels      []string  // observed levels, reference first
	knots       []float64 // rcs knots for spline terms
	interKind   termKind
	interLevels []string
	names       []string
}

// Design is the numeric rendition of a formula over a table: the design
// matrix with intercept, the encoded outcome, and the per-term encoders
// needed to re-encode new rows.
type Design struct {
	Formula  Formula
	Family   Family
	ColNames []string
	X        *mat.Dense
	Y        []float64
	YLevels  []string  // outcome levels for categorical outcomes
	Time     []float64 // survival time
	Event    []float64 // survival event indicator
	N        int
	P        int // design columns, including intercept when present
	Rows     []int

	terms     []*termEncoding
	intercept bool
}

// NumParams returns the predictor degrees of freedom (design columns beyond
// the intercept).
func (d *Design) NumParams() int {
	if d.intercept {
		return d.P - 1
	}
	return d.P
}

// BuildDesign constructs the design matrix for a formula on a table.
// When dropIncomplete is false, any row with a missing value in a used
// column is an error; when true, such rows are silently restricted away and
// the caller is expected to report the resulting N.
func BuildDesign(tbl *dataset.Table, f Formula, family Family, dropIncomplete bool) (*Design, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFamily, family)
	}
	if family == Cox && f.Event == "" {
		return nil, fmt.Errorf("%w: cox model needs an event column", ErrBadOutcome)
	}

	vars := f.Variables()
	for _, v := range vars {
		if !tbl.HasColumn(v) {
			return nil, fmt.Errorf("%w: %s", dataset.ErrColumnNotFound, v)
		}
	}

	rows, err := tbl.CompleteCases(vars...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no complete rows", ErrMissingValues)
	}
	if !dropIncomplete && len(rows) < tbl.NumRows() {
		return nil, fmt.Errorf("%w: %d of %d rows have missing values in %v",
			ErrMissingValues, tbl.NumRows()-len(rows), tbl.NumRows(), vars)
	}

	d := &Design{
		Formula:   f,
		Family:    family,
		N:         len(rows),
		Rows:      rows,
		intercept: family != Cox,
	}

	if err := d.encodeOutcome(tbl, rows); err != nil {
		return nil, err
	}

	for _, t := range f.Terms {
		enc, err := newTermEncoding(tbl, rows, t)
		if err != nil {
			return nil, err
		}
		d.terms = append(d.terms, enc)
	}

	if d.X, err = d.encodeRows(tbl, rows); err != nil {
		return nil, err
	}
	d.P = d.X.RawMatrix().Cols

	if err := checkRank(d.X); err != nil {
		return nil, fmt.Errorf("%s: %w", f.String(), err)
	}
	return d, nil
}

// EncodeTable re-encodes a new table with the training encoders, returning
// the design matrix and encoded outcome for the rows complete in the used
// columns.
func (d *Design) EncodeTable(tbl *dataset.Table) (*mat.Dense, []float64, error) {
	rows, err := tbl.CompleteCases(d.Formula.Variables()...)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no complete rows", ErrMissingValues)
	}
	x, err := d.encodeRows(tbl, rows)
	if err != nil {
		return nil, nil, err
	}
	y, err := d.encodeOutcomeValues(tbl, rows)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func (d *Design) encodeRows(tbl *dataset.Table, rows []int) (*mat.Dense, error) {
	var names []string
	if d.intercept {
		names = append(names, "(Intercept)")
	}
	for _, enc := range d.terms {
		names = append(names, enc.names...)
	}

	x := mat.NewDense(len(rows), len(names), nil)
	col := 0
	if d.intercept {
		for i := range rows {
			x.Set(i, 0, 1)
		}
		col = 1
	}
	for _, enc := range d.terms {
		block, err := enc.encode(tbl, rows)
		if err != nil {
			return nil, err
		}
		for j := 0; j < len(enc.names); j++ {
			for i := range rows {
				x.Set(i, col+j, block[i][j])
			}
		}
		col += len(enc.names)
	}
	d.ColNames = names
	return x, nil
}

func (d *Design) encodeOutcome(tbl *dataset.Table, rows []int) error {
	y, err := d.encodeOutcomeValues(tbl, rows)
	if err != nil {
		return err
	}
	if d.Family == Cox {
		d.Time = y
		d.Event, err = encodeBinary(tbl, d.Formula.Event, rows, &d.YLevels)
		return err
	}
	d.Y = y
	return nil
}

func (d *Design) encodeOutcomeValues(tbl *dataset.Table, rows []int) ([]float64, error) {
	col, err := tbl.Column(d.Formula.Outcome)
	if err != nil {
		return nil, err
	}

	switch d.Family {
	case Gaussian, Cox:
		return numericOutcome(col, rows)
	case Poisson, ZeroInflatedPoisson:
		y, err := numericOutcome(col, rows)
		if err != nil {
			return nil, err
		}
		for _, v := range y {
			if v < 0 || v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: count outcome %s has non-count value %g", ErrBadOutcome, col.Name, v)
			}
		}
		return y, nil
	case Binomial:
		return encodeBinary(tbl, d.Formula.Outcome, rows, &d.YLevels)
	case Ordinal, Multinomial:
		return d.encodeCategoricalOutcome(col, rows)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFamily, d.Family)
}

func (d *Design) encodeCategoricalOutcome(col *dataset.Column, rows []int) ([]float64, error) {
	if col.Type != dataset.Categorical {
		return nil, fmt.Errorf("%w: %s outcome %s must be categorical", ErrBadOutcome, d.Family, col.Name)
	}
	if d.YLevels == nil {
		d.YLevels = observedLevels(col, rows)
		if len(d.YLevels) < 2 {
			return nil, fmt.Errorf("%w: outcome %s", ErrDegenerateFactor, col.Name)
		}
	}
	index := make(map[string]int, len(d.YLevels))
	for i, l := range d.YLevels {
		index[l] = i
	}
	y := make([]float64, len(rows))
	for k, i := range rows {
		label, _ := col.LevelAt(i)
		code, ok := index[label]
		if !ok {
			return nil, fmt.Errorf("%w: outcome level %q absent from training levels", ErrBadOutcome, label)
		}
		y[k] = float64(code)
	}
	return y, nil
}

func numericOutcome(col *dataset.Column, rows []int) ([]float64, error) {
	y := make([]float64, len(rows))
	for k, i := range rows {
		v, ok := col.FloatAt(i)
		if !ok {
			return nil, fmt.Errorf("%w: outcome %s is not numeric", ErrBadOutcome, col.Name)
		}
		y[k] = v
	}
	return y, nil
}

// encodeBinary accepts a numeric 0/1 column or a two-level categorical
// column. For categorical columns the second observed level is the event.
func encodeBinary(tbl *dataset.Table, name string, rows []int, levels *[]string) ([]float64, error) {
	col, err := tbl.Column(name)
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(rows))
	if col.Type == dataset.Categorical {
		obs := *levels
		if obs == nil {
			obs = observedLevels(col, rows)
			if len(obs) != 2 {
				return nil, fmt.Errorf("%w: binary column %s has %d observed levels", ErrBadOutcome, name, len(obs))
			}
			*levels = obs
		}
		for k, i := range rows {
			label, _ := col.LevelAt(i)
			switch label {
			case obs[0]:
				y[k] = 0
			case obs[1]:
				y[k] = 1
			default:
				return nil, fmt.Errorf("%w: unexpected level %q in %s", ErrBadOutcome, label, name)
			}
		}
		return y, nil
	}
	for k, i := range rows {
		v, ok := col.FloatAt(i)
		if !ok || (v != 0 && v != 1) {
			return nil, fmt.Errorf("%w: binary column %s must be 0/1", ErrBadOutcome, name)
		}
		y[k] = v
	}
	return y, nil
}

func observedLevels(col *dataset.Column, rows []int) []string {
	counts := make(map[string]int)
	for _, i := range rows {
		if label, ok := col.LevelAt(i); ok {
			counts[label]++
		}
	}
	var out []string
	for _, l := range col.Levels {
		if counts[l] > 0 {
			out = append(out, l)
		}
	}
	return out
}

func newTermEncoding(tbl *dataset.Table, rows []int, t Term) (*termEncoding, error) {
	col, err := tbl.Column(t.Variable)
	if err != nil {
		return nil, err
	}
	enc := &termEncoding{term: t}

	switch col.Type {
	case dataset.Categorical:
		if t.Spline >= 3 {
			return nil, fmt.Errorf("spline term on categorical column %s", t.Variable)
		}
		enc.kind = termCategorical
		enc.levels = observedLevels(col, rows)
		if len(enc.levels) < 2 {
			return nil, fmt.Errorf("%w: %s", ErrDegenerateFactor, t.Variable)
		}
	case dataset.Float, dataset.Int:
		enc.kind = termNumeric
		if t.Spline >= 3 {
			values := make([]float64, len(rows))
			for k, i := range rows {
				values[k], _ = col.FloatAt(i)
			}
			enc.knots, err = rcsKnots(values, t.Spline)
			if err != nil {
				return nil, fmt.Errorf("spline term %s: %w", t.Variable, err)
			}
		}
	default:
		return nil, fmt.Errorf("column %s is %s; string columns must be retyped before fitting", t.Variable, col.Type)
	}

	if t.InteractWith != "" {
		icol, err := tbl.Column(t.InteractWith)
		if err != nil {
			return nil, err
		}
		switch icol.Type {
		case dataset.Categorical:
			enc.interKind = termCategorical
			enc.interLevels = observedLevels(icol, rows)
			if len(enc.interLevels) < 2 {
				return nil, fmt.Errorf("%w: %s", ErrDegenerateFactor, t.InteractWith)
			}
		case dataset.Float, dataset.Int:
			enc.interKind = termNumeric
		default:
			return nil, fmt.Errorf("column %s is %s; string columns must be retyped before fitting", t.InteractWith, icol.Type)
		}
	}

	enc.names = enc.columnNames()
	return enc, nil
}

// mainNames are the column names of the term before any interaction.
func (e *termEncoding) mainNames() []string {
	if e.kind == termCategorical {
		names := make([]string, 0, len(e.levels)-1)
		for _, l := range e.levels[1:] {
			names = append(names, e.term.Variable+"="+l)
		}
		return names
	}
	if len(e.knots) >= 3 {
		names := []string{e.term.Variable}
		primes := ""
		for j := 0; j < len(e.knots)-2; j++ {
			primes += "'"
			names = append(names, e.term.Variable+primes)
		}
		return names
	}
	return []string{e.term.Variable}
}

func (e *termEncoding) interNames() []string {
	if e.interKind == termCategorical {
		names := make([]string, 0, len(e.interLevels)-1)
		for _, l := range e.interLevels[1:] {
			names = append(names, e.term.InteractWith+"="+l)
		}
		return names
	}
	return []string{e.term.InteractWith}
}

func (e *termEncoding) columnNames() []string {
	main := e.mainNames()
	if e.term.InteractWith == "" {
		return main
	}
	var names []string
	for _, m := range main {
		for _, o := range e.interNames() {
			names = append(names, m+":"+o)
		}
	}
	return names
}

// encode produces the term's design columns for the given rows.
func (e *termEncoding) encode(tbl *dataset.Table, rows []int) ([][]float64, error) {
	main, err := e.encodeMain(tbl, rows)
	if err != nil {
		return nil, err
	}
	if e.term.InteractWith == "" {
		return main, nil
	}
	inter, err := e.encodeInter(tbl, rows)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i := range rows {
		row := make([]float64, 0, len(main[i])*len(inter[i]))
		for _, m := range main[i] {
			for _, o := range inter[i] {
				row = append(row, m*o)
			}
		}
		out[i] = row
	}
	return out, nil
}

func (e *termEncoding) encodeMain(tbl *dataset.Table, rows []int) ([][]float64, error) {
	col, err := tbl.Column(e.term.Variable)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))

	if e.kind == termCategorical {
		index := levelIndex(e.levels)
		for k, i := range rows {
			label, _ := col.LevelAt(i)
			code, ok := index[label]
			if !ok {
				return nil, fmt.Errorf("level %q of %s absent from training levels", label, e.term.Variable)
			}
			row := make([]float64, len(e.levels)-1)
			if code > 0 {
				row[code-1] = 1
			}
			out[k] = row
		}
		return out, nil
	}

	for k, i := range rows {
		v, ok := col.FloatAt(i)
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d", ErrMissingValues, e.term.Variable, i)
		}
		if len(e.knots) >= 3 {
			out[k] = rcsBasis(v, e.knots)
		} else {
			out[k] = []float64{v}
		}
	}
	return out, nil
}

func (e *termEncoding) encodeInter(tbl *dataset.Table, rows []int) ([][]float64, error) {
	col, err := tbl.Column(e.term.InteractWith)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))

	if e.interKind == termCategorical {
		index := levelIndex(e.interLevels)
		for k, i := range rows {
			label, _ := col.LevelAt(i)
			code, ok := index[label]
			if !ok {
				return nil, fmt.Errorf("level %q of %s absent from training levels", label, e.term.InteractWith)
			}
			row := make([]float64, len(e.interLevels)-1)
			if code > 0 {
				row[code-1] = 1
			}
			out[k] = row
		}
		return out, nil
	}

	for k, i := range rows {
		v, ok := col.FloatAt(i)
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d", ErrMissingValues, e.term.InteractWith, i)
		}
		out[k] = []float64{v}
	}
	return out, nil
}

func levelIndex(levels []string) map[string]int {
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}
	return index
}

// rcsQuantiles follows the conventional outer-quantile placement for
// restricted cubic spline knots by knot count.
var rcsQuantiles = map[int][]float64{
	3: {0.10, 0.50, 0.90},
	4: {0.05, 0.35, 0.65, 0.95},
	5: {0.05, 0.275, 0.50, 0.725, 0.95},
	6: {0.05, 0.23, 0.41, 0.59, 0.77, 0.95},
	7: {0.025, 0.1833, 0.3417, 0.50, 0.6583, 0.8167, 0.975},
}

func rcsKnots(values []float64, k int) ([]float64, error) {
	qs, ok := rcsQuantiles[k]
	if !ok {
		return nil, fmt.Errorf("unsupported knot count %d", k)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	knots := make([]float64, k)
	n := len(sorted)
	for i, q := range qs {
		pos := q * float64(n-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		frac := pos - float64(lo)
		knots[i] = sorted[lo]*(1-frac) + sorted[hi]*frac
	}
	for i := 1; i < k; i++ {
		if knots[i] <= knots[i-1] {
			return nil, fmt.Errorf("degenerate knots: too few distinct values for %d knots", k)
		}
	}
	return knots, nil
}

// rcsBasis evaluates the restricted cubic spline basis at x: the linear
// term followed by k-2 nonlinear terms, normalized by the squared outer
// knot span so coefficients stay on comparable scales.
func rcsBasis(x float64, knots []float64) []float64 {
	k := len(knots)
	out := make([]float64, k-1)
	out[0] = x

	t1 := knots[0]
	tk := knots[k-1]
	tk1 := knots[k-2]
	norm := (tk - t1) * (tk - t1)

	cube := func(v float64) float64 {
		if v <= 0 {
			return 0
		}
		return v * v * v
	}

	for j := 0; j < k-2; j++ {
		tj := knots[j]
		v := cube(x-tj) -
			cube(x-tk1)*(tk-tj)/(tk-tk1) +
			cube(x-tk)*(tk1-tj)/(tk-tk1)
		out[j+1] = v / norm
	}
	return out
}

// checkRank fails when the design matrix has (numerically) dependent
// columns.
func checkRank(x *mat.Dense) error {
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return ErrRankDeficient
	}
	sv := svd.Values(nil)
	if len(sv) == 0 || sv[0] == 0 {
		return ErrRankDeficient
	}
	if sv[len(sv)-1] < 1e-10*sv[0] {
		return ErrRankDeficient
	}
	return nil
}
