// Package playbook implements the authoritative store of guidance bullets.
//
// A playbook is the full collection of bullets available for prompt
// injection. The Store owns every bullet exclusively: other components hold
// only ids, and all mutation flows through Store operations. One mutex per
// Store instance makes each operation atomic; independent Store instances
// share no state.
package playbook

import (
	"strings"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Bullet is a single atomic guidance item stored in the playbook.
type Bullet struct {
	ID       string         `json:"id"`
	Section  string         `json:"section"`
	Content  string         `json:"content"`
	Metadata BulletMetadata `json:"metadata"`
}

// BulletMetadata tracks usage counters and the optional embedding vector.
type BulletMetadata struct {
	Created      time.Time  `json:"created"`
	HelpfulCount int        `json:"helpful_count"`
	HarmfulCount int        `json:"harmful_count"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	Embedding    []float64  `json:"embedding,omitempty"`
}

// HelpfulnessRatio returns helpful/(helpful+harmful). Unused bullets score a
// neutral 0.5 so that new guidance is neither favored nor penalized.
func (b *Bullet) HelpfulnessRatio() float64 {
	total := b.Metadata.HelpfulCount + b.Metadata.HarmfulCount
	if total == 0 {
		return 0.5
	}
	return float64(b.Metadata.HelpfulCount) / float64(total)
}

// clone returns a deep copy so callers never alias store-owned state.
func (b *Bullet) clone() Bullet {
	out := *b
	if b.Metadata.LastUsed != nil {
		used := *b.Metadata.LastUsed
		out.Metadata.LastUsed = &used
	}
	if b.Metadata.Embedding != nil {
		out.Metadata.Embedding = append([]float64(nil), b.Metadata.Embedding...)
	}
	return out
}

func validateSectionContent(section, content string) error {
	if strings.TrimSpace(section) == "" {
		return errors.New(errors.ValidationFailed, "bullet section cannot be empty")
	}
	if strings.TrimSpace(content) == "" {
		return errors.New(errors.ValidationFailed, "bullet content cannot be empty")
	}
	return nil
}

// MetadataOverrides optionally seeds metadata fields at Add time or replaces
// them during Update. Nil pointer fields leave the existing value untouched.
type MetadataOverrides struct {
	Created      *time.Time
	HelpfulCount *int
	HarmfulCount *int
	LastUsed     *time.Time
	Embedding    []float64
}

// BulletUpdate carries the partial fields of an UPDATE operation.
// Nil fields are left unchanged; the bullet id is always preserved.
type BulletUpdate struct {
	Section  *string            `json:"section,omitempty"`
	Content  *string            `json:"content,omitempty"`
	Metadata *MetadataOverrides `json:"-"`
}

// DeltaType tags the variant of a DeltaOperation.
type DeltaType string

const (
	DeltaAdd    DeltaType = "ADD"
	DeltaUpdate DeltaType = "UPDATE"
	DeltaDelete DeltaType = "DELETE"
)

// DeltaOperation is a single add/update/delete instruction applied to the
// playbook. Produced by the curator, consumed by the store, then discarded.
type DeltaOperation struct {
	Type     DeltaType     `json:"type"`
	Bullet   *Bullet       `json:"bullet,omitempty"`
	BulletID string        `json:"bulletId,omitempty"`
	Updates  *BulletUpdate `json:"updates,omitempty"`
}

// FeedbackKind classifies attribution feedback for a bullet.
type FeedbackKind string

const (
	FeedbackHelpful FeedbackKind = "helpful"
	FeedbackHarmful FeedbackKind = "harmful"
)
