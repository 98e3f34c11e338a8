package operations

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"statpipe/internal/cleanse"
	"statpipe/internal/resample"
	"statpipe/internal/selection"
)

// AnalysisSpec is the declarative description of one analysis run.
type AnalysisSpec struct {
	Title   string      `yaml:"title" validate:"required"`
	Dataset DatasetSpec `yaml:"dataset" validate:"required"`

	// Clean is the optional cleaning rule set applied before any analysis.
	Clean *cleanse.Spec `yaml:"clean"`

	// Explore selects which exploratory summaries to compute.
	Explore ExploreSpec `yaml:"explore"`

	// Models are the candidate specifications to fit and compare.
	Models []selection.Candidate `yaml:"models" validate:"dive"`

	// Validation applies to the recommended model from the comparison.
	Validation *resample.Plan `yaml:"validation"`

	// Survival requests a Kaplan-Meier analysis alongside the regression
	// candidates.
	Survival *SurvivalSpec `yaml:"survival"`
}

// DatasetSpec names the dataset source: a local CSV/XLSX path or an HTTP
// URL. Cache points at an optional gob snapshot reused across runs.
type DatasetSpec struct {
	Source string `yaml:"source" validate:"required"`
	Cache  string `yaml:"cache"`
}

// ExploreSpec selects exploratory summaries. Describe and Spearman default
// to skipped when empty; missingness always runs.
type ExploreSpec struct {
	Describe []string `yaml:"describe"`
	Spearman []string `yaml:"spearman"`
	VIF      []string `yaml:"vif"`
}

// SurvivalSpec describes a Kaplan-Meier analysis.
type SurvivalSpec struct {
	Time   string `yaml:"time" validate:"required"`
	Event  string `yaml:"event" validate:"required"`
	Strata string `yaml:"strata"`
}

var validate = validator.New()

// LoadSpec reads and validates an analysis spec file.
func LoadSpec(path string) (*AnalysisSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis spec %s: %w", path, err)
	}
	return ParseSpec(data)
}

// ParseSpec parses and validates analysis spec YAML.
func ParseSpec(data []byte) (*AnalysisSpec, error) {
	spec := &AnalysisSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("parse analysis spec: %w", err)
	}
	if err := validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("analysis spec: %w", err)
	}
	if spec.Clean != nil {
		if err := spec.Clean.Validate(); err != nil {
			return nil, err
		}
	}
	if len(spec.Models) == 0 && spec.Survival == nil {
		return nil, fmt.Errorf("analysis spec: needs at least one model or a survival section")
	}
	return spec, nil
}
