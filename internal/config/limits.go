package config

import "time"

// Limits bounds the pipeline's resource usage and retry behavior.
type Limits struct {
	MaxConcurrentWriters int             `yaml:"max_concurrent_writers" validate:"required,min=1,max=100"`
	MaxPromptSize        int             `yaml:"max_prompt_size" validate:"required,min=1000,max=1000000"`
	MaxRetries           int             `yaml:"max_retries" validate:"required,min=0,max=10"`
	TotalTimeout         time.Duration   `yaml:"total_timeout" validate:"required,min=1m,max=24h"`
	StageTimeouts        StageTimeouts   `yaml:"stage_timeouts"`
	RateLimit            RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

// StageTimeouts bounds each pipeline stage independently of TotalTimeout.
type StageTimeouts struct {
	ConceptExpansion   time.Duration `yaml:"concept_expansion" validate:"min=30s,max=1h"`
	OutlineConstruction time.Duration `yaml:"outline_construction" validate:"min=1m,max=6h"`
	CharacterSynthesis time.Duration `yaml:"character_synthesis" validate:"min=30s,max=1h"`
	ChapterGeneration  time.Duration `yaml:"chapter_generation" validate:"min=1m,max=6h"`
	QualityAssessment  time.Duration `yaml:"quality_assessment" validate:"min=30s,max=1h"`
}

// RateLimitConfig is the fallback per-provider token-bucket shape applied
// when a provider doesn't set its own requests_per_minute/burst.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=100"`
}

// DefaultLimits matches §6's defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentWriters: 10,
		MaxPromptSize:        200000,
		MaxRetries:           5,
		TotalTimeout:         6 * time.Hour,
		StageTimeouts: StageTimeouts{
			ConceptExpansion:    2 * time.Minute,
			OutlineConstruction: 60 * time.Minute,
			CharacterSynthesis:  5 * time.Minute,
			ChapterGeneration:   3 * time.Hour,
			QualityAssessment:   10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         15,
		},
	}
}
