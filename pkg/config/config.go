// Package config loads and validates the YAML configuration for the ace
// learning loop. Defaults are always applied first; a config file only
// overrides what it names.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for the ace system.
type Config struct {
	// LLM configures the gateway provider.
	LLM LLMConfig `yaml:"llm" validate:"required"`

	// Playbook configures the bullet store.
	Playbook PlaybookConfig `yaml:"playbook,omitempty"`

	// Generator configures prompt assembly.
	Generator GeneratorConfig `yaml:"generator,omitempty"`

	// Reflector configures the insight extraction loop.
	Reflector ReflectorConfig `yaml:"reflector,omitempty"`

	// Curator configures delta synthesis and deduplication.
	Curator CuratorConfig `yaml:"curator,omitempty"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Storage configures playbook persistence.
	Storage StorageConfig `yaml:"storage,omitempty"`
}

// LLMConfig holds gateway provider settings.
type LLMConfig struct {
	// Provider name; only anthropic ships in-tree.
	Provider string `yaml:"provider" validate:"required,oneof=anthropic"`

	// ModelID selects the model (e.g. claude-sonnet-4-5).
	ModelID string `yaml:"model_id" validate:"required"`

	// APIKey authenticates with the provider. The ANTHROPIC_API_KEY
	// environment variable takes precedence when set.
	APIKey string `yaml:"api_key,omitempty"`

	// MaxTokens caps generation length.
	MaxTokens int `yaml:"max_tokens" validate:"min=1"`

	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`

	// Timeout bounds a single gateway call.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// PlaybookConfig holds bullet store settings.
type PlaybookConfig struct {
	// MaxBullets caps playbook size.
	MaxBullets int `yaml:"max_bullets" validate:"min=1"`
}

// GeneratorConfig holds prompt assembly settings.
type GeneratorConfig struct {
	// MaxBullets caps how many bullets one prompt carries.
	MaxBullets int `yaml:"max_bullets" validate:"min=1"`

	// PrioritySections are preferred during bullet selection.
	PrioritySections []string `yaml:"priority_sections,omitempty"`
}

// ReflectorConfig holds reflection loop settings.
type ReflectorConfig struct {
	// MaxIterations bounds the refinement loop.
	MaxIterations int `yaml:"max_iterations" validate:"min=1"`

	// QualityThreshold stops the loop early.
	QualityThreshold float64 `yaml:"quality_threshold" validate:"gt=0,max=1"`
}

// CuratorConfig holds curation settings.
type CuratorConfig struct {
	// MinConfidence filters insights before synthesis.
	MinConfidence float64 `yaml:"min_confidence" validate:"min=0,max=1"`

	// EnableDeduplication toggles embedding-based dedup of ADDs.
	EnableDeduplication bool `yaml:"enable_deduplication"`

	// DedupThreshold is the cosine similarity treated as a duplicate.
	DedupThreshold float64 `yaml:"dedup_threshold" validate:"gt=0,max=1"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error, fatal.
	Level string `yaml:"level" validate:"oneof=debug info warn error fatal"`

	// File, when set, mirrors logs to the given path.
	File string `yaml:"file,omitempty"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Path is the SQLite database file; empty disables persistence.
	Path string `yaml:"path,omitempty"`
}

// Load reads the config file at path, overlays it on the defaults and
// validates the result. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var messages []string
	for _, e := range errs {
		messages = append(messages, fmt.Sprintf("%s failed on %s", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(messages, "; "))
}
