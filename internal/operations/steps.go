package operations

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"statpipe/internal/cleanse"
	"statpipe/internal/dataset"
	"statpipe/internal/explore"
	"statpipe/internal/model"
	"statpipe/internal/report"
	"statpipe/internal/resample"
	"statpipe/internal/selection"
)

// StandardSteps builds the canonical load → clean → explore → fit →
// validate → survival → report pipeline.
func StandardSteps(logger *slog.Logger) []Step {
	return []Step{
		&LoadStep{logger: logger},
		&CleanStep{logger: logger},
		&ExploreStep{logger: logger},
		&FitStep{logger: logger},
		&ValidateStep{logger: logger},
		&SurvivalStep{logger: logger},
		&ReportStep{logger: logger},
	}
}

// LoadStep reads the dataset from its source, preferring the gob cache
// when the spec names one and the snapshot exists.
type LoadStep struct {
	logger *slog.Logger
}

func (s *LoadStep) ID() string   { return "load" }
func (s *LoadStep) Name() string { return "Load dataset" }

func (s *LoadStep) Run(ctx context.Context, state *State) error {
	ds := state.Spec.Dataset

	if ds.Cache != "" {
		if _, err := os.Stat(ds.Cache); err == nil {
			tbl, err := dataset.LoadCached(ds.Cache)
			if err != nil {
				return fmt.Errorf("load cached table: %w", err)
			}
			s.logger.InfoContext(ctx, "dataset loaded from cache",
				"cache", ds.Cache, "rows", tbl.NumRows())
			state.Raw = tbl
			s.ensureDocument(state)
			return nil
		}
	}

	fetcher := dataset.NewFetcher(state.Config.Fetch, s.logger)
	tbl, err := fetcher.Load(ctx, ds.Source)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "dataset loaded",
		"source", ds.Source, "rows", tbl.NumRows(), "columns", tbl.NumCols())

	if ds.Cache != "" {
		if err := dataset.Save(tbl, ds.Cache); err != nil {
			return fmt.Errorf("cache table: %w", err)
		}
	}

	state.Raw = tbl
	s.ensureDocument(state)
	return nil
}

// ensureDocument keeps a caller-provided document (callers may pre-create
// one to obtain the run ID before the pipeline starts).
func (s *LoadStep) ensureDocument(state *State) {
	if state.Document == nil {
		state.Document = report.NewDocument(state.Spec.Title)
	}
}

// CleanStep applies the declarative cleaning rules. Without a clean
// section the raw table passes through unchanged.
type CleanStep struct {
	logger *slog.Logger
}

func (s *CleanStep) ID() string   { return "clean" }
func (s *CleanStep) Name() string { return "Clean dataset" }

func (s *CleanStep) Run(ctx context.Context, state *State) error {
	if state.Spec.Clean == nil {
		state.Clean = state.Raw
	} else {
		spec := withPolicyLevelThreshold(state.Spec.Clean, state.Config.Policy.MinLevelCount)
		res, err := cleanse.Apply(ctx, s.logger, state.Raw, spec)
		if err != nil {
			return err
		}
		state.Clean = res.Table
		state.Audits = res.Audits
	}

	state.Document.Dataset = state.Clean.Name()
	state.Document.Rows = state.Clean.NumRows()
	state.Document.Columns = state.Clean.NumCols()
	state.Document.Audits = state.Audits
	return nil
}

// withPolicyLevelThreshold fills the policy minimum level count into
// collapse rules that leave it at zero, without mutating the parsed spec.
func withPolicyLevelThreshold(spec *cleanse.Spec, minCount int) *cleanse.Spec {
	needsDefault := false
	for _, cr := range spec.CollapseRare {
		if cr.MinCount == 0 {
			needsDefault = true
			break
		}
	}
	if !needsDefault {
		return spec
	}
	filled := *spec
	filled.CollapseRare = append([]cleanse.CollapseRule(nil), spec.CollapseRare...)
	for i := range filled.CollapseRare {
		if filled.CollapseRare[i].MinCount == 0 {
			filled.CollapseRare[i].MinCount = minCount
		}
	}
	return &filled
}

// ExploreStep computes the exploratory summaries the spec requests.
// Missingness always runs.
type ExploreStep struct {
	logger *slog.Logger
}

func (s *ExploreStep) ID() string   { return "explore" }
func (s *ExploreStep) Name() string { return "Exploratory summaries" }

func (s *ExploreStep) Run(ctx context.Context, state *State) error {
	ex := state.Spec.Explore
	state.Document.Missingness = explore.Missingness(state.Clean)

	if len(ex.Describe) > 0 {
		desc, err := explore.Describe(state.Clean, ex.Describe...)
		if err != nil {
			return fmt.Errorf("describe: %w", err)
		}
		state.Document.Describe = desc
	}
	if len(ex.Spearman) > 1 {
		corr, err := explore.SpearmanMatrix(state.Clean, ex.Spearman)
		if err != nil {
			return fmt.Errorf("spearman: %w", err)
		}
		state.Document.Spearman = corr
	}
	if len(ex.VIF) > 1 {
		vif, err := explore.VIF(state.Clean, ex.VIF, state.Config.Policy.VIFThreshold)
		if err != nil {
			return fmt.Errorf("vif: %w", err)
		}
		state.Document.VIF = vif
		for _, v := range vif {
			if v.Flagged {
				s.logger.WarnContext(ctx, "collinear predictor",
					"column", v.Column, "vif", v.VIF,
					"threshold", state.Config.Policy.VIFThreshold)
			}
		}
	}
	return nil
}

// FitStep fits the candidate models and runs the comparison. Policy
// defaults fill in any fit options the spec leaves at zero.
type FitStep struct {
	logger *slog.Logger
}

func (s *FitStep) ID() string   { return "fit" }
func (s *FitStep) Name() string { return "Fit candidate models" }

func (s *FitStep) Run(ctx context.Context, state *State) error {
	if len(state.Spec.Models) == 0 {
		return nil
	}
	policy := state.Config.Policy
	n := state.Clean.NumRows()

	candidates := make([]selection.Candidate, len(state.Spec.Models))
	for i, c := range state.Spec.Models {
		if c.Options.ConfLevel == 0 {
			c.Options.ConfLevel = policy.ConfidenceLevel
		}
		if c.Options.DFBudget == 0 {
			c.Options.DFBudget = policy.DFBudget(n)
		}
		candidates[i] = c
	}

	cmp, err := selection.Compare(ctx, s.logger, state.Clean, candidates, policy.ParsimonyMargin)
	if err != nil {
		return err
	}
	state.Document.Comparison = cmp
	return nil
}

// ValidateStep validates the recommended model with the spec's plan.
type ValidateStep struct {
	logger *slog.Logger
}

func (s *ValidateStep) ID() string   { return "validate" }
func (s *ValidateStep) Name() string { return "Validate recommended model" }

func (s *ValidateStep) Run(ctx context.Context, state *State) error {
	plan := state.Spec.Validation
	cmp := state.Document.Comparison
	if plan == nil || cmp == nil {
		return nil
	}

	var chosen *selection.Candidate
	for i := range state.Spec.Models {
		if state.Spec.Models[i].Name == cmp.Best {
			chosen = &state.Spec.Models[i]
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("recommended model %q not found among candidates", cmp.Best)
	}

	opts := chosen.Options
	if opts.ConfLevel == 0 {
		opts.ConfLevel = state.Config.Policy.ConfidenceLevel
	}
	if plan.Bootstrap != nil && plan.Bootstrap.Replicates == 0 {
		b := *plan.Bootstrap
		b.Replicates = state.Config.Policy.BootstrapReplicates
		plan = &resample.Plan{Bootstrap: &b, Holdout: plan.Holdout}
	}

	rep, err := resample.Validate(ctx, s.logger, state.Clean, chosen.Formula, opts, *plan)
	if err != nil {
		return err
	}
	state.Document.Validations = append(state.Document.Validations, rep)
	return nil
}

// SurvivalStep runs the optional Kaplan-Meier analysis.
type SurvivalStep struct {
	logger *slog.Logger
}

func (s *SurvivalStep) ID() string   { return "survival" }
func (s *SurvivalStep) Name() string { return "Kaplan-Meier analysis" }

func (s *SurvivalStep) Run(ctx context.Context, state *State) error {
	sv := state.Spec.Survival
	if sv == nil {
		return nil
	}
	km, err := model.FitKaplanMeier(state.Clean, sv.Time, sv.Event, sv.Strata, state.Config.Policy.ConfidenceLevel)
	if err != nil {
		return fmt.Errorf("kaplan-meier: %w", err)
	}
	state.Document.Survival = km

	for _, st := range km.Strata {
		s.logger.InfoContext(ctx, "survival stratum",
			"stratum", st.Label, "n", st.N, "events", st.Events)
	}
	return nil
}

// ReportStep renders and saves the report bundle.
type ReportStep struct {
	logger *slog.Logger
}

func (s *ReportStep) ID() string   { return "report" }
func (s *ReportStep) Name() string { return "Render reports" }

func (s *ReportStep) Run(ctx context.Context, state *State) error {
	runDir, err := report.Save(ctx, s.logger, state.Document, state.Config.Paths.ReportsDir)
	if err != nil {
		return err
	}
	state.RunDir = runDir
	return nil
}
