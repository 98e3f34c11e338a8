package cleanse

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Spec is the declarative cleaning rule set for one dataset. Rules apply in
// the order: select, types, derive, filters, collapse rare levels, drop
// unused levels, sample.
type Spec struct {
	// Select projects and optionally renames columns. Empty keeps all.
	Select []SelectRule `yaml:"select" validate:"dive"`
	// Types retypes columns after selection.
	Types []TypeRule `yaml:"types" validate:"dive"`
	// Derive adds computed columns; each may only reference columns that
	// already exist when its rule runs.
	Derive []DeriveRule `yaml:"derive" validate:"dive"`
	// Filters drop rows; each filter is audited with before/after counts.
	Filters []FilterRule `yaml:"filters" validate:"dive"`
	// CollapseRare merges infrequent categorical levels into a residual
	// level after filtering, so rare categories cannot produce degenerate
	// or unstable model terms.
	CollapseRare []CollapseRule `yaml:"collapse_rare" validate:"dive"`
	// DropUnusedLevels re-codes categorical columns over observed levels
	// after filtering.
	DropUnusedLevels bool `yaml:"drop_unused_levels"`
	// Sample draws a fixed-size seeded uniform subsample after filtering.
	Sample *SampleRule `yaml:"sample"`
	// IDColumn names a unique-identifier column whose distinctness is
	// verified after every row-dropping step.
	IDColumn string `yaml:"id_column"`
}

// SelectRule projects one source column, optionally under a new name.
type SelectRule struct {
	From string `yaml:"from" validate:"required"`
	As   string `yaml:"as"`
}

// TypeRule casts a column to a declared type. Categorical casts must
// enumerate their valid levels; source values outside the level set become
// missing.
type TypeRule struct {
	Column string   `yaml:"column" validate:"required"`
	To     string   `yaml:"to" validate:"required,oneof=float int string categorical"`
	Levels []string `yaml:"levels"`
}

// Derivation kinds supported by DeriveRule.
const (
	DeriveBucket = "bucket"
	DeriveLog    = "log"
	DeriveLog10  = "log10"
	DeriveSqrt   = "sqrt"
	DeriveScale  = "scale"
	DeriveRatio  = "ratio"
)

// DeriveRule materializes a new column as a deterministic function of
// existing columns.
//
//   - bucket: cut Source at Breaks into len(Breaks)-1 labeled intervals;
//     each interval is [lo,hi), the last is [lo,hi]. Values outside the
//     break range become missing.
//   - log/log10/sqrt: transform Source; out-of-domain values become missing.
//   - scale: Scale*Source + Offset.
//   - ratio: Numerator / Denominator^DenominatorPower * Scale, the shape of
//     index derivations like BMI.
type DeriveRule struct {
	Column           string    `yaml:"column" validate:"required"`
	Kind             string    `yaml:"kind" validate:"required,oneof=bucket log log10 sqrt scale ratio"`
	Source           string    `yaml:"source"`
	Numerator        string    `yaml:"numerator"`
	Denominator      string    `yaml:"denominator"`
	DenominatorPower float64   `yaml:"denominator_power"`
	Scale            float64   `yaml:"scale"`
	Offset           float64   `yaml:"offset"`
	Breaks           []float64 `yaml:"breaks"`
	Labels           []string  `yaml:"labels"`
}

// Filter operators supported by FilterRule.
const (
	OpIn       = "in"
	OpNotIn    = "not_in"
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGe       = "ge"
	OpLt       = "lt"
	OpLe       = "le"
	OpComplete = "complete"
)

// FilterRule keeps rows satisfying a predicate on one column. Membership
// and equality predicates compare textual values (level labels for
// categorical columns); ordering predicates compare numeric values. Rows
// with a missing value fail positive predicates (in, eq, ordering) and pass
// negative ones (not_in, ne); the complete operator keeps only non-missing
// rows.
type FilterRule struct {
	Column string   `yaml:"column" validate:"required"`
	Op     string   `yaml:"op" validate:"required,oneof=in not_in eq ne gt ge lt le complete"`
	Values []string `yaml:"values"`
	Value  *float64 `yaml:"value"`
}

// CollapseRule merges the levels of a categorical column observed fewer
// than MinCount times into the Into level. Into defaults to "other" and may
// name an existing level, in which case rare levels merge into it. MinCount
// zero defers to the configured min_level_count policy threshold.
type CollapseRule struct {
	Column   string `yaml:"column" validate:"required"`
	Into     string `yaml:"into"`
	MinCount int    `yaml:"min_count" validate:"gte=0"`
}

// SampleRule draws a reproducible uniform sample without replacement.
type SampleRule struct {
	N    int   `yaml:"n" validate:"gt=0"`
	Seed int64 `yaml:"seed"`
}

var validate = validator.New()

// Validate checks the rule set for structural problems before any data is
// touched: tag constraints plus the cross-field rules the tags cannot
// express.
func (s *Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("cleaning spec: %w", err)
	}
	for _, tr := range s.Types {
		if tr.To == "categorical" && len(tr.Levels) < 2 {
			return fmt.Errorf("cleaning spec: categorical cast of %s must enumerate at least two levels", tr.Column)
		}
	}
	for _, dr := range s.Derive {
		switch dr.Kind {
		case DeriveBucket:
			if dr.Source == "" {
				return fmt.Errorf("cleaning spec: bucket derivation %s needs a source column", dr.Column)
			}
			if len(dr.Breaks) < 2 {
				return fmt.Errorf("cleaning spec: bucket derivation %s needs at least two breaks", dr.Column)
			}
			if len(dr.Labels) != len(dr.Breaks)-1 {
				return fmt.Errorf("cleaning spec: bucket derivation %s needs %d labels for %d breaks, got %d",
					dr.Column, len(dr.Breaks)-1, len(dr.Breaks), len(dr.Labels))
			}
			for i := 1; i < len(dr.Breaks); i++ {
				if dr.Breaks[i] <= dr.Breaks[i-1] {
					return fmt.Errorf("cleaning spec: bucket derivation %s has non-increasing breaks", dr.Column)
				}
			}
		case DeriveLog, DeriveLog10, DeriveSqrt, DeriveScale:
			if dr.Source == "" {
				return fmt.Errorf("cleaning spec: %s derivation %s needs a source column", dr.Kind, dr.Column)
			}
		case DeriveRatio:
			if dr.Numerator == "" || dr.Denominator == "" {
				return fmt.Errorf("cleaning spec: ratio derivation %s needs numerator and denominator columns", dr.Column)
			}
		}
	}
	for _, fr := range s.Filters {
		switch fr.Op {
		case OpIn, OpNotIn:
			if len(fr.Values) == 0 {
				return fmt.Errorf("cleaning spec: filter %s %s needs values", fr.Column, fr.Op)
			}
		case OpEq, OpNe:
			if len(fr.Values) != 1 && fr.Value == nil {
				return fmt.Errorf("cleaning spec: filter %s %s needs one value", fr.Column, fr.Op)
			}
		case OpGt, OpGe, OpLt, OpLe:
			if fr.Value == nil {
				return fmt.Errorf("cleaning spec: filter %s %s needs a numeric value", fr.Column, fr.Op)
			}
		}
	}
	return nil
}
