// Package config loads the runtime configuration: model backends for the
// planner and extractor, the evaluation mode, and retry bounds. Files may
// be YAML or JSON5; environment variables expand inside values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Retry bounds for planning. The ceiling is hard: no configuration can
// raise it.
const (
	DefaultMaxPlanRetries = 10
	MaxPlanRetriesCeiling = 10
)

// EnvMaxPlanRetries overrides the plan retry budget, clamped to [1, 10].
const EnvMaxPlanRetries = "OPENCLAW_CAMEL_MAX_PLAN_RETRIES"

// Config is the full runtime configuration.
type Config struct {
	// Planner is the model that writes programs.
	Planner ModelConfig `yaml:"planner" json:"planner"`

	// Extractor is the quarantined extraction model. When empty, the
	// planner's backend is reused.
	Extractor ModelConfig `yaml:"extractor" json:"extractor"`

	// Mode is "strict" (default) or "normal".
	Mode string `yaml:"mode" json:"mode"`

	// MaxPlanRetries bounds repair attempts per run, clamped to [1, 10].
	MaxPlanRetries int `yaml:"max_plan_retries" json:"max_plan_retries"`

	// ExtraSystemPrompt is appended to the planner system prompt.
	ExtraSystemPrompt string `yaml:"extra_system_prompt" json:"extra_system_prompt"`

	// Logging configures structured log output.
	Logging LogConfig `yaml:"logging" json:"logging"`
}

// ModelConfig selects one model backend.
type ModelConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model" json:"model"`

	// APIKey authenticates against the provider. Values like
	// ${OPENAI_API_KEY} expand from the environment at load time.
	APIKey string `yaml:"api_key" json:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// MaxRetries bounds transient-failure retries per model call.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error". Default "info".
	Level string `yaml:"level" json:"level"`

	// Format is "json" or "text". Default "json".
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Mode:           "strict",
		MaxPlanRetries: DefaultMaxPlanRetries,
		Logging:        LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks cross-field consistency and applies defaults in place.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "":
		c.Mode = "strict"
	case "normal", "strict":
		c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	default:
		return fmt.Errorf("mode must be \"normal\" or \"strict\", got %q", c.Mode)
	}

	c.MaxPlanRetries = clampRetries(c.MaxPlanRetries)
	if env := os.Getenv(EnvMaxPlanRetries); env != "" {
		n, err := strconv.Atoi(strings.TrimSpace(env))
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", EnvMaxPlanRetries, env)
		}
		c.MaxPlanRetries = clampRetries(n)
	}

	if c.Planner.Provider != "" && !validProvider(c.Planner.Provider) {
		return fmt.Errorf("planner provider must be \"openai\" or \"anthropic\", got %q", c.Planner.Provider)
	}
	if c.Extractor.Provider != "" && !validProvider(c.Extractor.Provider) {
		return fmt.Errorf("extractor provider must be \"openai\" or \"anthropic\", got %q", c.Extractor.Provider)
	}
	return nil
}

func clampRetries(n int) int {
	if n <= 0 {
		return DefaultMaxPlanRetries
	}
	if n > MaxPlanRetriesCeiling {
		return MaxPlanRetriesCeiling
	}
	return n
}

func validProvider(p string) bool {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "openai", "anthropic":
		return true
	}
	return false
}
