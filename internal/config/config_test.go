package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "data", cfg.Paths.DataDir)
	assert.Equal(t, 4, cfg.Policy.DFBudgetBase)
	assert.Equal(t, 5.0, cfg.Policy.VIFThreshold)
	assert.Equal(t, 0.95, cfg.Policy.ConfidenceLevel)
	assert.Equal(t, 200, cfg.Policy.BootstrapReplicates)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
policy:
  vif_threshold: 10
  bootstrap_replicates: 500
paths:
  reports_dir: out/reports
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.Policy.VIFThreshold)
	assert.Equal(t, 500, cfg.Policy.BootstrapReplicates)
	assert.Equal(t, "out/reports", cfg.Paths.ReportsDir)
	// Untouched sections keep defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0644))

	t.Setenv("STATPIPE_SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"confidence too high", func(c *Config) { c.Policy.ConfidenceLevel = 1.0 }, true},
		{"confidence negative", func(c *Config) { c.Policy.ConfidenceLevel = -0.5 }, true},
		{"zero replicates", func(c *Config) { c.Policy.BootstrapReplicates = 0 }, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"zero rps", func(c *Config) { c.Fetch.RPS = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDFBudget(t *testing.T) {
	p := PolicyConfig{DFBudgetBase: 4, DFBudgetPerObs: 100}

	tests := []struct {
		n    int
		want int
	}{
		{50, 4},
		{100, 4},
		{200, 5},
		{1200, 15},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.DFBudget(tt.n), "n=%d", tt.n)
	}
}
