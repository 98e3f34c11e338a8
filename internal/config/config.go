package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Fetch   FetchConfig   `yaml:"fetch" envconfig:"FETCH"`
	Policy  PolicyConfig  `yaml:"policy" envconfig:"POLICY"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/statpipe.log"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	CacheDir   string `yaml:"cache_dir" envconfig:"CACHE_DIR" default:"data/cache"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"reports"`
}

// FetchConfig controls HTTP retrieval of remote datasets
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"60s"`
	RPS       float64       `yaml:"rps" envconfig:"RPS" default:"2"`
	Burst     int           `yaml:"burst" envconfig:"BURST" default:"2"`
	UserAgent string        `yaml:"user_agent" envconfig:"USER_AGENT" default:"statpipe/1.0"`
}

// PolicyConfig holds the statistical policy thresholds applied across
// analyses. These are conventions rather than laws: the degrees-of-freedom
// budget follows the usual 4 + (n-100)/100 rule of thumb and the VIF cutoff
// follows the conventional 5, but both are overridable per deployment.
type PolicyConfig struct {
	DFBudgetBase        int     `yaml:"df_budget_base" envconfig:"DF_BUDGET_BASE" default:"4"`
	DFBudgetPerObs      int     `yaml:"df_budget_per_obs" envconfig:"DF_BUDGET_PER_OBS" default:"100"`
	VIFThreshold        float64 `yaml:"vif_threshold" envconfig:"VIF_THRESHOLD" default:"5"`
	MinLevelCount       int     `yaml:"min_level_count" envconfig:"MIN_LEVEL_COUNT" default:"20"`
	ConfidenceLevel     float64 `yaml:"confidence_level" envconfig:"CONFIDENCE_LEVEL" default:"0.95"`
	BootstrapReplicates int     `yaml:"bootstrap_replicates" envconfig:"BOOTSTRAP_REPLICATES" default:"200"`
	ParsimonyMargin     float64 `yaml:"parsimony_margin" envconfig:"PARSIMONY_MARGIN" default:"0.01"`
}

// ServerConfig contains HTTP server configuration for the report server
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// Load reads configuration from the optional YAML file at path, then applies
// environment variable overrides with the STATPIPE prefix. An empty path
// skips the file layer entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Defaults first so a partial YAML file does not zero the rest.
	if err := envconfig.Process("STATPIPE", cfg); err != nil {
		return nil, fmt.Errorf("process defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Environment wins over the file.
	if err := envconfig.Process("STATPIPE", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration invariants that envconfig defaults cannot
// express.
func (c *Config) Validate() error {
	if c.Policy.ConfidenceLevel <= 0 || c.Policy.ConfidenceLevel >= 1 {
		return fmt.Errorf("confidence level must be in (0,1), got %v", c.Policy.ConfidenceLevel)
	}
	if c.Policy.BootstrapReplicates < 1 {
		return fmt.Errorf("bootstrap replicates must be positive, got %d", c.Policy.BootstrapReplicates)
	}
	if c.Policy.DFBudgetPerObs < 1 {
		return fmt.Errorf("df budget per-observation divisor must be positive, got %d", c.Policy.DFBudgetPerObs)
	}
	if c.Fetch.RPS <= 0 {
		return fmt.Errorf("fetch rps must be positive, got %v", c.Fetch.RPS)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	return nil
}

// DFBudget returns the usable predictor degrees of freedom for an effective
// sample size n under the configured budget rule. Analyses with rare outcome
// categories should reduce this further by hand.
func (p PolicyConfig) DFBudget(n int) int {
	if n <= p.DFBudgetPerObs {
		return p.DFBudgetBase
	}
	return p.DFBudgetBase + (n-p.DFBudgetPerObs)/p.DFBudgetPerObs
}
