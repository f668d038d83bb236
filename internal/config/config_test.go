package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesPrototypeDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Settings.MaxWorkers != 15 {
		t.Errorf("MaxWorkers = %d, want 15", cfg.Settings.MaxWorkers)
	}
	if cfg.Settings.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Settings.MaxRetries)
	}
	if cfg.Settings.RateLimitRPM != 20 {
		t.Errorf("RateLimitRPM = %d, want 20", cfg.Settings.RateLimitRPM)
	}
	if cfg.Settings.WorkerTimeout.Duration() != 300*time.Second {
		t.Errorf("WorkerTimeout = %s, want 300s", cfg.Settings.WorkerTimeout.Duration())
	}
	if cfg.Settings.Reconciler.Interval.Duration() != 120*time.Second {
		t.Errorf("ReconcilerInterval = %s, want 120s", cfg.Settings.Reconciler.Interval.Duration())
	}
}

func TestLoadOverlaysYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.yaml")
	yamlBody := "settings:\n  max_workers: 4\nllm:\n  api_key: test-key\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Settings.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4 (from file)", cfg.Settings.MaxWorkers)
	}
	if cfg.Settings.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3 (default preserved)", cfg.Settings.MaxRetries)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want test-key", cfg.LLM.APIKey)
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.yaml")
	yamlBody := "settings:\n  max_workers: 4\n  api_rate_limit_rpm: 9\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_WORKERS", "7")
	t.Setenv("API_RATE_LIMIT_RPM", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Settings.MaxWorkers != 7 {
		t.Errorf("MaxWorkers = %d, want 7 (from env)", cfg.Settings.MaxWorkers)
	}
	if cfg.Settings.RateLimitRPM != 5 {
		t.Errorf("RateLimitRPM = %d, want 5 (from env)", cfg.Settings.RateLimitRPM)
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := Default()
	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatal("Validate() = no errors, want missing api_key error")
	}
}

func TestValidateSchemaVersion(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "k"

	cfg.SchemaVersion = "1.2.0"
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate() with schema 1.2.0 = %v, want no errors", errs)
	}

	cfg.SchemaVersion = "2.0.0"
	if errs := Validate(cfg); len(errs) == 0 {
		t.Error("Validate() with schema 2.0.0 = no errors, want out-of-range error")
	}

	cfg.SchemaVersion = "not-a-version"
	if errs := Validate(cfg); len(errs) == 0 {
		t.Error("Validate() with malformed schema_version = no errors, want parse error")
	}
}
