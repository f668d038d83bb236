// Package config loads and validates swarm-wide settings: worker limits,
// storage paths, and the LLM endpoint every worker and the planner call.
//
// Settings come from three layers, lowest priority first: built-in
// defaults, an optional YAML file, then environment variables (matching
// the env-var-with-default shape of the Python prototype this system was
// ported from).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "120s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// LLM holds the external chat-completions endpoint the planner, workers,
// and (optionally) the reconciler call. Out of scope: the endpoint's own
// implementation — only the contract in spec.md §6 is consumed here.
type LLM struct {
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	PlannerModel    string `yaml:"planner_model"`
	ReconcilerModel string `yaml:"reconciler_model"`
}

// Reconciler tunes the background health-sweep loop (C6).
type Reconciler struct {
	Interval    Duration `yaml:"interval"`
	LLMAnalysis bool     `yaml:"llm_analysis"`
}

// Settings holds the swarm's operational limits and on-disk layout.
type Settings struct {
	MaxWorkers    int        `yaml:"max_workers"`
	MaxTasks      int        `yaml:"max_tasks"`
	WorkerTimeout Duration   `yaml:"worker_timeout"`
	MaxRetries    int        `yaml:"max_retries"`
	RateLimitRPM  int        `yaml:"api_rate_limit_rpm"`
	TreeDepth     int        `yaml:"tree_depth"`
	WorkspaceDir  string     `yaml:"workspace_dir"`
	LogsDir       string     `yaml:"logs_dir"`
	DBPath        string     `yaml:"db_path"`
	OutputsDir    string     `yaml:"outputs_dir"`
	Reconciler    Reconciler `yaml:"reconciler"`
}

// Config is the full swarm configuration.
type Config struct {
	SchemaVersion string   `yaml:"schema_version,omitempty"`
	LLM           LLM      `yaml:"llm"`
	Settings      Settings `yaml:"settings"`
}

// SupportedSchemaRange is the range of config schema versions this binary
// understands. Bumped when a breaking change lands in the YAML shape.
const SupportedSchemaRange = ">=1.0.0, <2.0.0"

// Default returns the built-in defaults, matching config.py's env-var
// fallbacks in the Python prototype this was ported from.
func Default() *Config {
	return &Config{
		LLM: LLM{
			BaseURL:         "https://api.minimax.io/v1",
			Model:           "MiniMax-M2.5",
			PlannerModel:    "MiniMax-M2.5",
			ReconcilerModel: "MiniMax-M2.5",
		},
		Settings: Settings{
			MaxWorkers:    15,
			MaxTasks:      100,
			WorkerTimeout: Duration(300 * time.Second),
			MaxRetries:    3,
			RateLimitRPM:  20,
			TreeDepth:     2,
			WorkspaceDir:  "./swarm/workspace",
			LogsDir:       "./swarm/logs",
			DBPath:        "./swarm/db/tasks.db",
			OutputsDir:    "./swarm/outputs",
			Reconciler: Reconciler{
				Interval: Duration(120 * time.Second),
			},
		},
	}
}

// Load reads a YAML config file (if path is non-empty) over the defaults,
// then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays the environment variables named in spec.md §6 onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settings.MaxWorkers = n
		}
	}
	if v := os.Getenv("MAX_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settings.MaxTasks = n
		}
	}
	if v := os.Getenv("RECONCILER_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settings.Reconciler.Interval = Duration(time.Duration(n) * time.Second)
		}
	}
	if v := os.Getenv("WORKER_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settings.WorkerTimeout = Duration(time.Duration(n) * time.Second)
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settings.MaxRetries = n
		}
	}
	if v := os.Getenv("API_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settings.RateLimitRPM = n
		}
	}
	if v := os.Getenv("WORKSPACE_DIR"); v != "" {
		cfg.Settings.WorkspaceDir = v
	}
	if v := os.Getenv("LOGS_DIR"); v != "" {
		cfg.Settings.LogsDir = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Settings.DBPath = v
	}
	if v := os.Getenv("OUTPUTS_DIR"); v != "" {
		cfg.Settings.OutputsDir = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
}

// Validate checks a config for required fields and internal consistency.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api_key is required"))
	}
	if cfg.LLM.BaseURL == "" {
		errs = append(errs, fmt.Errorf("llm.base_url is required"))
	}
	if cfg.Settings.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("settings.max_workers must be positive"))
	}
	if cfg.Settings.RateLimitRPM <= 0 {
		errs = append(errs, fmt.Errorf("settings.api_rate_limit_rpm must be positive"))
	}

	if cfg.SchemaVersion != "" {
		if err := validateSchemaVersion(cfg.SchemaVersion); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// validateSchemaVersion checks that v satisfies SupportedSchemaRange.
func validateSchemaVersion(v string) error {
	constraint, err := semver.NewConstraint(SupportedSchemaRange)
	if err != nil {
		return fmt.Errorf("internal: bad schema constraint %q: %w", SupportedSchemaRange, err)
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("schema_version %q is not a valid semantic version: %w", v, err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("schema_version %q does not satisfy %s", v, SupportedSchemaRange)
	}
	return nil
}
