package dataset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	tbl := sampleTable(t)
	path := filepath.Join(t.TempDir(), "cache", "vehicles.bin")

	require.NoError(t, Save(tbl, path))

	got, err := LoadCached(path)
	require.NoError(t, err)

	assert.Equal(t, tbl.Name(), got.Name())
	assert.Equal(t, tbl.NumRows(), got.NumRows())
	assert.Equal(t, tbl.ColumnNames(), got.ColumnNames())

	displ, err := got.Column("displ")
	require.NoError(t, err)
	assert.Equal(t, Float, displ.Type)
	assert.True(t, displ.IsMissing(2), "missingness survives the round trip")

	drive, err := got.Column("drive")
	require.NoError(t, err)
	assert.Equal(t, []string{"FWD", "RWD", "AWD", "4WD"}, drive.Levels)
}

func TestLoadCachedMissingFile(t *testing.T) {
	_, err := LoadCached(filepath.Join(t.TempDir(), "absent.bin"))
	assert.Error(t, err)
}
