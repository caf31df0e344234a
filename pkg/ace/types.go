package ace

import (
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/llm"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Trajectory is one recorded query/response interaction together with bullet
// attribution. It is immutable once returned by the generator.
type Trajectory struct {
	Query          string             `json:"query"`
	Response       string             `json:"response"`
	BulletsUsed    []string           `json:"bullets_used"`
	BulletsHelpful []string           `json:"bullets_helpful"`
	BulletsHarmful []string           `json:"bullets_harmful"`
	Metadata       TrajectoryMetadata `json:"metadata"`
}

// TrajectoryMetadata records how the response was produced.
type TrajectoryMetadata struct {
	Model      string    `json:"model,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUsed int       `json:"tokens_used,omitempty"`
}

// Insight is a candidate lesson extracted from a trajectory, not yet
// committed to the playbook.
type Insight struct {
	Observation     string  `json:"observation"`
	Lesson          string  `json:"lesson"`
	SuggestedBullet string  `json:"suggested_bullet"`
	Confidence      float64 `json:"confidence"`
	Section         string  `json:"section"`
}

// ReflectionResult carries the final insight set with loop accounting.
type ReflectionResult struct {
	Insights     []Insight `json:"insights"`
	Iterations   int       `json:"iterations"`
	QualityScore float64   `json:"quality_score"`
}

// CurationStats counts operations per type.
type CurationStats struct {
	Adds    int `json:"adds"`
	Updates int `json:"updates"`
	Deletes int `json:"deletes"`
}

// CurationResult is the curator's output: delta operations ready for
// playbook.Store.ApplyDeltas plus a human-readable summary.
type CurationResult struct {
	Operations []playbook.DeltaOperation `json:"operations"`
	Summary    string                    `json:"summary"`
	Statistics CurationStats             `json:"statistics"`
}

// GenerateOptions tunes a single Generate call.
type GenerateOptions struct {
	// MaxBullets caps how many bullets are injected into the prompt.
	MaxBullets int

	// PrioritySections are preferred during bullet selection.
	PrioritySections []string

	// Chat is passed through to the gateway.
	Chat *llm.ChatOptions
}

// DefaultGenerateOptions returns the standard generation settings.
func DefaultGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		MaxBullets: 20,
	}
}

// ReflectOptions tunes the reflection loop.
type ReflectOptions struct {
	// MaxIterations bounds the analysis/refinement loop.
	MaxIterations int

	// QualityThreshold stops the loop once the assessed quality reaches it.
	QualityThreshold float64

	// Chat is passed through to the gateway.
	Chat *llm.ChatOptions
}

// DefaultReflectOptions returns the standard reflection settings.
func DefaultReflectOptions() *ReflectOptions {
	return &ReflectOptions{
		MaxIterations:    5,
		QualityThreshold: 0.8,
	}
}

// CurateOptions tunes curation.
type CurateOptions struct {
	// MinConfidence filters out low-confidence insights.
	MinConfidence float64

	// EnableDeduplication turns on embedding-based duplicate detection for
	// ADD operations. It degrades silently when the gateway cannot embed.
	EnableDeduplication bool

	// DedupThreshold is the cosine similarity above which an existing bullet
	// counts as a duplicate candidate.
	DedupThreshold float64

	// Chat is passed through to the gateway.
	Chat *llm.ChatOptions
}

// DefaultCurateOptions returns the standard curation settings.
func DefaultCurateOptions() *CurateOptions {
	return &CurateOptions{
		MinConfidence:       0.5,
		EnableDeduplication: true,
		DedupThreshold:      0.85,
	}
}
