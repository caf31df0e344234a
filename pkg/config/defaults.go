package config

import "time"

// Default returns the standard configuration. Callers overlay file and
// environment values on top of it.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "anthropic",
			ModelID:     "claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Playbook: PlaybookConfig{
			MaxBullets: 500,
		},
		Generator: GeneratorConfig{
			MaxBullets: 20,
		},
		Reflector: ReflectorConfig{
			MaxIterations:    5,
			QualityThreshold: 0.8,
		},
		Curator: CuratorConfig{
			MinConfidence:       0.5,
			EnableDeduplication: true,
			DedupThreshold:      0.85,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
