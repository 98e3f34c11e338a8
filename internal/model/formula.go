package model

import (
	"fmt"
	"strings"
)

// Family selects the model family to fit.
type Family string

const (
	// Gaussian fits ordinary least squares on a continuous outcome
	Gaussian Family = "gaussian"
	// Binomial fits a logistic regression on a binary outcome
	Binomial Family = "binomial"
	// Ordinal fits a proportional-odds cumulative logit on an ordered
	// categorical outcome
	Ordinal Family = "ordinal"
	// Multinomial fits a baseline-category logit on an unordered
	// categorical outcome
	Multinomial Family = "multinomial"
	// Poisson fits a log-linear count regression
	Poisson Family = "poisson"
	// ZeroInflatedPoisson fits a Poisson count process mixed with a
	// structural-zero logit
	ZeroInflatedPoisson Family = "zip"
	// Cox fits a proportional-hazards regression on censored times
	Cox Family = "cox"
)

// Valid reports whether f is a known family selector.
func (f Family) Valid() bool {
	switch f {
	case Gaussian, Binomial, Ordinal, Multinomial, Poisson, ZeroInflatedPoisson, Cox:
		return true
	}
	return false
}

// Term is one predictor term of a formula.
//
// A plain term uses the variable linearly (or dummy-coded for categorical
// variables). Spline requests a restricted cubic spline expansion with the
// given knot count (3-7) for numeric variables. InteractWith adds the
// products of this term's columns with the other variable's columns instead
// of main effects; the interacting variables should also appear as plain
// terms so the interaction is interpretable.
type Term struct {
	Variable     string `yaml:"var" validate:"required"`
	Spline       int    `yaml:"spline" validate:"omitempty,min=3,max=7"`
	InteractWith string `yaml:"interact_with"`
}

// Label renders the term the way it appears in coefficient names.
func (t Term) Label() string {
	base := t.Variable
	if t.Spline >= 3 {
		base = fmt.Sprintf("rcs(%s,%d)", t.Variable, t.Spline)
	}
	if t.InteractWith != "" {
		return base + ":" + t.InteractWith
	}
	return base
}

// Formula binds an outcome column to an ordered list of predictor terms.
// For survival families Outcome names the time column and Event the event
// indicator column.
type Formula struct {
	Outcome string `yaml:"outcome" validate:"required"`
	Event   string `yaml:"event"`
	Terms   []Term `yaml:"terms" validate:"min=1,dive"`
}

// String renders the formula in conventional outcome ~ terms notation.
func (f Formula) String() string {
	labels := make([]string, len(f.Terms))
	for i, t := range f.Terms {
		labels[i] = t.Label()
	}
	lhs := f.Outcome
	if f.Event != "" {
		lhs = fmt.Sprintf("Surv(%s,%s)", f.Outcome, f.Event)
	}
	return lhs + " ~ " + strings.Join(labels, " + ")
}

// Variables returns every column the formula references, outcome first.
func (f Formula) Variables() []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(f.Outcome)
	add(f.Event)
	for _, t := range f.Terms {
		add(t.Variable)
		add(t.InteractWith)
	}
	return out
}

// Nested reports whether f's terms are a subset of other's, the condition
// for a likelihood-ratio comparison between the two fits.
func (f Formula) Nested(other Formula) bool {
	if f.Outcome != other.Outcome || f.Event != other.Event {
		return false
	}
	has := map[string]bool{}
	for _, t := range other.Terms {
		has[t.Label()] = true
	}
	for _, t := range f.Terms {
		if !has[t.Label()] {
			return false
		}
	}
	return len(f.Terms) <= len(other.Terms)
}
