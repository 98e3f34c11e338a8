package report

import (
	"time"

	"github.com/google/uuid"

	"statpipe/internal/cleanse"
	"statpipe/internal/explore"
	"statpipe/internal/model"
	"statpipe/internal/resample"
	"statpipe/internal/selection"
)

// Document aggregates the outputs of one analysis run for rendering.
type Document struct {
	RunID       string    `json:"run_id"`
	Title       string    `json:"title"`
	Dataset     string    `json:"dataset"`
	Rows        int       `json:"rows"`
	Columns     int       `json:"columns"`
	GeneratedAt time.Time `json:"generated_at"`

	Audits      []cleanse.Audit         `json:"audits,omitempty"`
	Missingness []explore.ColumnMissing `json:"missingness,omitempty"`
	Describe    []explore.Description   `json:"describe,omitempty"`
	Spearman    *explore.CorrMatrix     `json:"spearman,omitempty"`
	VIF         []explore.VIFResult     `json:"vif,omitempty"`

	Comparison  *selection.Comparison `json:"comparison,omitempty"`
	Validations []*resample.Report    `json:"validations,omitempty"`
	Survival    *model.KMFit          `json:"survival,omitempty"`
}

// NewDocument starts a document with a fresh run identifier.
func NewDocument(title string) *Document {
	return &Document{
		RunID:       uuid.New().String(),
		Title:       title,
		GeneratedAt: time.Now().UTC(),
	}
}

// BestFit returns the recommended model's fit, nil when no comparison ran
// or the recommendation's fit is unavailable.
func (d *Document) BestFit() *model.Fitted {
	if d.Comparison == nil {
		return nil
	}
	for i := range d.Comparison.Rows {
		r := &d.Comparison.Rows[i]
		if r.Name == d.Comparison.Best {
			return r.Fit()
		}
	}
	return nil
}
