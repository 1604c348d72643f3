package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Mode != "strict" {
		t.Errorf("Mode = %q, want strict", cfg.Mode)
	}
	if cfg.MaxPlanRetries != DefaultMaxPlanRetries {
		t.Errorf("MaxPlanRetries = %d", cfg.MaxPlanRetries)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
		check   func(*testing.T, *Config)
	}{
		{
			name:   "empty mode defaults to strict",
			mutate: func(c *Config) { c.Mode = "" },
			check: func(t *testing.T, c *Config) {
				if c.Mode != "strict" {
					t.Errorf("Mode = %q", c.Mode)
				}
			},
		},
		{
			name:   "mode is normalized",
			mutate: func(c *Config) { c.Mode = " Normal " },
			check: func(t *testing.T, c *Config) {
				if c.Mode != "normal" {
					t.Errorf("Mode = %q", c.Mode)
				}
			},
		},
		{
			name:    "unknown mode rejected",
			mutate:  func(c *Config) { c.Mode = "paranoid" },
			wantErr: "mode must be",
		},
		{
			name:   "retries clamp to the ceiling",
			mutate: func(c *Config) { c.MaxPlanRetries = 99 },
			check: func(t *testing.T, c *Config) {
				if c.MaxPlanRetries != MaxPlanRetriesCeiling {
					t.Errorf("MaxPlanRetries = %d", c.MaxPlanRetries)
				}
			},
		},
		{
			name:   "zero retries fall back to the default",
			mutate: func(c *Config) { c.MaxPlanRetries = 0 },
			check: func(t *testing.T, c *Config) {
				if c.MaxPlanRetries != DefaultMaxPlanRetries {
					t.Errorf("MaxPlanRetries = %d", c.MaxPlanRetries)
				}
			},
		},
		{
			name:    "unknown provider rejected",
			mutate:  func(c *Config) { c.Planner.Provider = "cohere" },
			wantErr: "planner provider",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestValidateEnvOverride(t *testing.T) {
	t.Setenv(EnvMaxPlanRetries, "3")
	cfg := Default()
	cfg.MaxPlanRetries = 7
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.MaxPlanRetries != 3 {
		t.Errorf("MaxPlanRetries = %d, want env override 3", cfg.MaxPlanRetries)
	}

	t.Setenv(EnvMaxPlanRetries, "50")
	cfg = Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.MaxPlanRetries != MaxPlanRetriesCeiling {
		t.Errorf("MaxPlanRetries = %d, want clamp to %d", cfg.MaxPlanRetries, MaxPlanRetriesCeiling)
	}

	t.Setenv(EnvMaxPlanRetries, "many")
	cfg = Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted a non-integer override")
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
planner:
  provider: anthropic
  model: claude-sonnet-4-5
mode: normal
max_plan_retries: 5
logging:
  level: debug
  format: text
`)
	cfg, err := Parse(data, ".yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Planner.Provider != "anthropic" || cfg.Planner.Model != "claude-sonnet-4-5" {
		t.Errorf("Planner = %+v", cfg.Planner)
	}
	if cfg.Mode != "normal" || cfg.MaxPlanRetries != 5 {
		t.Errorf("Mode = %q retries = %d", cfg.Mode, cfg.MaxPlanRetries)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestParseYAMLRejectsMultipleDocuments(t *testing.T) {
	_, err := Parse([]byte("mode: strict\n---\nmode: normal\n"), ".yaml")
	if err == nil || !strings.Contains(err.Error(), "single document") {
		t.Errorf("Parse() error = %v", err)
	}
}

func TestParseJSON5(t *testing.T) {
	data := []byte(`{
	  // planner backend
	  "planner": {"provider": "openai", "model": "gpt-4o"},
	  "mode": "strict",
	}`)
	cfg, err := Parse(data, ".json5")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Planner.Provider != "openai" {
		t.Errorf("Planner = %+v", cfg.Planner)
	}
	// fields absent from the file keep their defaults
	if cfg.MaxPlanRetries != DefaultMaxPlanRetries {
		t.Errorf("MaxPlanRetries = %d", cfg.MaxPlanRetries)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_CAMEL_KEY", "sk-test-123")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "planner:\n  provider: openai\n  api_key: ${TEST_CAMEL_KEY}\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Planner.APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q, want expanded env value", cfg.Planner.APIKey)
	}
}
