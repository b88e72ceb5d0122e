package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.Provider != DefaultModelProvider {
		t.Errorf("Provider = %q", cfg.Model.Provider)
	}
	if cfg.Bus.Kind != "memory" {
		t.Errorf("Bus.Kind = %q", cfg.Bus.Kind)
	}
	if cfg.Agent.ConfirmationTimeout != DefaultConfirmationTimeout {
		t.Errorf("ConfirmationTimeout = %v", cfg.Agent.ConfirmationTimeout)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.yaml")
	content := `
model:
  name: openai/gpt-4.1
  timeout: 30s
agent:
  thresholds:
    intent_high: 0.8
    intent_low: 0.3
    reflection_low: 0.2
  confirm_medium_risk: true
  batch_threshold: 3
bus:
  kind: nats
  url: nats://127.0.0.1:4222
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.Name != "openai/gpt-4.1" {
		t.Errorf("Model.Name = %q", cfg.Model.Name)
	}
	if cfg.Model.Timeout != 30*time.Second {
		t.Errorf("Model.Timeout = %v", cfg.Model.Timeout)
	}
	if cfg.Bus.Kind != "nats" || cfg.Bus.URL == "" {
		t.Errorf("Bus = %+v", cfg.Bus)
	}

	prefs := cfg.DefaultPreferences()
	if prefs.Thresholds.IntentHigh != 0.8 {
		t.Errorf("IntentHigh = %v", prefs.Thresholds.IntentHigh)
	}
	if !prefs.ConfirmMediumRisk {
		t.Error("ConfirmMediumRisk should be true")
	}
	if prefs.BatchThreshold != 3 {
		t.Errorf("BatchThreshold = %v", prefs.BatchThreshold)
	}
	// Unset flag keeps the default.
	if !prefs.ConfirmHighRisk {
		t.Error("ConfirmHighRisk should default to true")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad bus kind", func(c *Config) { c.Bus.Kind = "kafka" }},
		{"nats without url", func(c *Config) { c.Bus.Kind = "nats"; c.Bus.URL = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"threshold out of range", func(c *Config) { c.Agent.Thresholds.IntentHigh = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TALLY_LEDGER_BASE_URL", "https://ledger.example.com")
	t.Setenv("TALLY_BIND", "0.0.0.0:9000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.BaseURL != "https://ledger.example.com" {
		t.Errorf("Ledger.BaseURL = %q", cfg.Ledger.BaseURL)
	}
	if cfg.Server.Bind != "0.0.0.0:9000" {
		t.Errorf("Server.Bind = %q", cfg.Server.Bind)
	}
}
