package dataset

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// tableSnapshot is the gob wire form of a Table. Column is exported and
// self-describing, so the snapshot only needs to add the table name.
type tableSnapshot struct {
	Name    string
	Columns []*Column
}

// Save writes the table to a binary cache file, creating parent directories
// as needed. Used to persist a cleaned table so later runs can skip the
// cleaning pipeline.
func Save(t *Table, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	defer f.Close()

	snap := tableSnapshot{Name: t.name, Columns: t.cols}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	return nil
}

// LoadCached reads a table previously written by Save.
func LoadCached(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}
	defer f.Close()

	var snap tableSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	return New(snap.Name, snap.Columns...)
}
