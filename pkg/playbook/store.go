package playbook

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// DefaultMaxBullets bounds a store when no capacity is configured.
const DefaultMaxBullets = 500

// EmbedFunc produces an embedding vector for a piece of text. The store
// treats it as an optional injected capability: a nil function disables
// embedding-based search.
type EmbedFunc func(ctx context.Context, text string) ([]float64, error)

// Config configures a Store instance.
type Config struct {
	// MaxBullets caps the playbook size; Add fails with CapacityExceeded
	// beyond it. Zero or negative means DefaultMaxBullets.
	MaxBullets int

	// Embed, when set, lets Search embed query strings on demand.
	Embed EmbedFunc
}

// Store is the authoritative, single-tenant collection of bullets.
// All methods are individually atomic; the mutex is the one concurrency
// boundary for the playbook.
type Store struct {
	mu         sync.RWMutex
	bullets    map[string]*Bullet
	order      []string // insertion order, for deterministic iteration
	maxBullets int
	embed      EmbedFunc
	logger     *logging.Logger
}

// NewStore creates an empty playbook store.
func NewStore(cfg Config) *Store {
	maxBullets := cfg.MaxBullets
	if maxBullets <= 0 {
		maxBullets = DefaultMaxBullets
	}
	return &Store{
		bullets:    make(map[string]*Bullet),
		maxBullets: maxBullets,
		embed:      cfg.Embed,
		logger:     logging.GetLogger(),
	}
}

// Add validates and inserts a new bullet, assigning a fresh id and zeroed
// counters unless overridden.
func (s *Store) Add(section, content string, overrides *MetadataOverrides) (Bullet, error) {
	if err := validateSectionContent(section, content); err != nil {
		return Bullet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.bullets) >= s.maxBullets {
		return Bullet{}, errors.WithFields(
			errors.New(errors.CapacityExceeded, "playbook is full"),
			errors.Fields{"max_bullets": s.maxBullets})
	}

	b := &Bullet{
		ID:      uuid.New().String(),
		Section: strings.TrimSpace(section),
		Content: strings.TrimSpace(content),
		Metadata: BulletMetadata{
			Created: time.Now(),
		},
	}
	applyOverrides(&b.Metadata, overrides)

	s.bullets[b.ID] = b
	s.order = append(s.order, b.ID)

	return b.clone(), nil
}

// Get returns the bullet with the given id.
func (s *Store) Get(id string) (Bullet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bullets[id]
	if !ok {
		return Bullet{}, false
	}
	return b.clone(), true
}

// Update applies partial fields to an existing bullet. The id is preserved
// and metadata overrides are merged field by field.
func (s *Store) Update(id string, updates BulletUpdate) (Bullet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bullets[id]
	if !ok {
		return Bullet{}, errors.WithFields(
			errors.New(errors.ResourceNotFound, "bullet not found"),
			errors.Fields{"id": id})
	}

	section := b.Section
	if updates.Section != nil {
		section = *updates.Section
	}
	content := b.Content
	if updates.Content != nil {
		content = *updates.Content
	}
	if err := validateSectionContent(section, content); err != nil {
		return Bullet{}, err
	}

	b.Section = strings.TrimSpace(section)
	b.Content = strings.TrimSpace(content)
	applyOverrides(&b.Metadata, updates.Metadata)

	return b.clone(), nil
}

// Delete removes a bullet. Returns false when the id is absent; a missing
// bullet is not an error so deletes stay idempotent.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bullets[id]; !ok {
		return false
	}
	delete(s.bullets, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Filter holds conjunctive query predicates. Nil or zero fields impose no
// constraint.
type Filter struct {
	Section         *string
	MinHelpful      *int
	MaxHarmful      *int
	ContentContains string // case-insensitive substring
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	UsedAfter       *time.Time
	UsedBefore      *time.Time
}

func (f *Filter) matches(b *Bullet) bool {
	if f.Section != nil && b.Section != *f.Section {
		return false
	}
	if f.MinHelpful != nil && b.Metadata.HelpfulCount < *f.MinHelpful {
		return false
	}
	if f.MaxHarmful != nil && b.Metadata.HarmfulCount > *f.MaxHarmful {
		return false
	}
	if f.ContentContains != "" &&
		!strings.Contains(strings.ToLower(b.Content), strings.ToLower(f.ContentContains)) {
		return false
	}
	if f.CreatedAfter != nil && b.Metadata.Created.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && b.Metadata.Created.After(*f.CreatedBefore) {
		return false
	}
	if f.UsedAfter != nil &&
		(b.Metadata.LastUsed == nil || b.Metadata.LastUsed.Before(*f.UsedAfter)) {
		return false
	}
	if f.UsedBefore != nil &&
		(b.Metadata.LastUsed == nil || b.Metadata.LastUsed.After(*f.UsedBefore)) {
		return false
	}
	return true
}

// Query returns copies of all bullets matching the filter, in insertion order.
func (s *Store) Query(filter Filter) []Bullet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Bullet
	for _, id := range s.order {
		b := s.bullets[id]
		if filter.matches(b) {
			out = append(out, b.clone())
		}
	}
	return out
}

// RecordFeedback increments helpful or harmful counters and stamps last_used
// for each id. Unknown ids are silently skipped, tolerating races with
// concurrent deletes.
func (s *Store) RecordFeedback(ids []string, kind FeedbackKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		b, ok := s.bullets[id]
		if !ok {
			continue
		}
		switch kind {
		case FeedbackHelpful:
			b.Metadata.HelpfulCount++
		case FeedbackHarmful:
			b.Metadata.HarmfulCount++
		}
		used := now
		b.Metadata.LastUsed = &used
	}
}

// ApplyResult summarizes a non-transactional batch of delta operations.
type ApplyResult struct {
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors,omitempty"`
}

// ApplyDeltas applies operations in order. Each failure is recorded and the
// remaining operations still run; a failure on operation k never rolls back
// earlier ones. Callers needing atomicity should Export a snapshot first.
func (s *Store) ApplyDeltas(ops []DeltaOperation) ApplyResult {
	var result ApplyResult

	for i, op := range ops {
		var err error
		switch op.Type {
		case DeltaAdd:
			err = s.applyAdd(op)
			if err == nil {
				result.Added++
			}
		case DeltaUpdate:
			err = s.applyUpdate(op)
			if err == nil {
				result.Updated++
			}
		case DeltaDelete:
			if op.BulletID == "" {
				err = errors.New(errors.InvalidInput, "DELETE operation missing bullet id")
			} else {
				// Missing ids are soft no-ops, same as feedback.
				if s.Delete(op.BulletID) {
					result.Deleted++
				}
			}
		default:
			err = errors.WithFields(
				errors.New(errors.InvalidInput, "unknown delta operation type"),
				errors.Fields{"type": string(op.Type)})
		}

		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("operation %d: %v", i, err))
		}
	}

	if len(result.Errors) > 0 {
		s.logger.Warn(context.Background(), "applied deltas with %d failures: added=%d updated=%d deleted=%d",
			len(result.Errors), result.Added, result.Updated, result.Deleted)
	}

	return result
}

func (s *Store) applyAdd(op DeltaOperation) error {
	if op.Bullet == nil {
		return errors.New(errors.InvalidInput, "ADD operation missing bullet")
	}

	overrides := &MetadataOverrides{
		HelpfulCount: &op.Bullet.Metadata.HelpfulCount,
		HarmfulCount: &op.Bullet.Metadata.HarmfulCount,
		LastUsed:     op.Bullet.Metadata.LastUsed,
		Embedding:    op.Bullet.Metadata.Embedding,
	}
	if !op.Bullet.Metadata.Created.IsZero() {
		created := op.Bullet.Metadata.Created
		overrides.Created = &created
	}

	if op.Bullet.ID != "" {
		return s.addWithID(op.Bullet.ID, op.Bullet.Section, op.Bullet.Content, overrides)
	}
	_, err := s.Add(op.Bullet.Section, op.Bullet.Content, overrides)
	return err
}

func (s *Store) applyUpdate(op DeltaOperation) error {
	if op.BulletID == "" {
		return errors.New(errors.InvalidInput, "UPDATE operation missing bullet id")
	}
	updates := BulletUpdate{}
	if op.Updates != nil {
		updates = *op.Updates
	}
	_, err := s.Update(op.BulletID, updates)
	return err
}

// addWithID inserts a bullet under a caller-chosen id. Used by delta
// application and import, where ids were minted elsewhere.
func (s *Store) addWithID(id, section, content string, overrides *MetadataOverrides) error {
	if err := validateSectionContent(section, content); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bullets[id]; exists {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "bullet id already exists"),
			errors.Fields{"id": id})
	}
	if len(s.bullets) >= s.maxBullets {
		return errors.WithFields(
			errors.New(errors.CapacityExceeded, "playbook is full"),
			errors.Fields{"max_bullets": s.maxBullets})
	}

	b := &Bullet{
		ID:      id,
		Section: strings.TrimSpace(section),
		Content: strings.TrimSpace(content),
		Metadata: BulletMetadata{
			Created: time.Now(),
		},
	}
	applyOverrides(&b.Metadata, overrides)

	s.bullets[id] = b
	s.order = append(s.order, id)
	return nil
}

// Len returns the number of stored bullets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bullets)
}

// Clear removes every bullet.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bullets = make(map[string]*Bullet)
	s.order = nil
}

func applyOverrides(m *BulletMetadata, overrides *MetadataOverrides) {
	if overrides == nil {
		return
	}
	if overrides.Created != nil {
		m.Created = *overrides.Created
	}
	if overrides.HelpfulCount != nil {
		m.HelpfulCount = *overrides.HelpfulCount
	}
	if overrides.HarmfulCount != nil {
		m.HarmfulCount = *overrides.HarmfulCount
	}
	if overrides.LastUsed != nil {
		used := *overrides.LastUsed
		m.LastUsed = &used
	}
	if overrides.Embedding != nil {
		m.Embedding = append([]float64(nil), overrides.Embedding...)
	}
}
