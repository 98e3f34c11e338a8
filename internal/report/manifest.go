package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"statpipe/internal/cleanse"
)

// Manifest is the machine-readable record of one analysis run, written next
// to the rendered reports so the report server can list runs without
// parsing them.
type Manifest struct {
	RunID       string          `json:"run_id"`
	Title       string          `json:"title"`
	Dataset     string          `json:"dataset"`
	Rows        int             `json:"rows"`
	Columns     int             `json:"columns"`
	GeneratedAt time.Time       `json:"generated_at"`
	BestModel   string          `json:"best_model,omitempty"`
	Audits      []cleanse.Audit `json:"audits,omitempty"`
	Outputs     []string        `json:"outputs"`
}

// NewManifest derives a manifest from a document and the files its
// rendering produced.
func NewManifest(doc *Document, outputs []string) *Manifest {
	m := &Manifest{
		RunID:       doc.RunID,
		Title:       doc.Title,
		Dataset:     doc.Dataset,
		Rows:        doc.Rows,
		Columns:     doc.Columns,
		GeneratedAt: doc.GeneratedAt,
		Audits:      doc.Audits,
		Outputs:     outputs,
	}
	if doc.Comparison != nil {
		m.BestModel = doc.Comparison.Best
	}
	return m
}

// Save writes the manifest as manifest.json in the given directory.
func (m *Manifest) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest.json from a run directory.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
