package playbook

import (
	"context"
	"strings"
)

// Stats summarizes the playbook contents.
type Stats struct {
	Total       int            `json:"total"`
	BySection   map[string]int `json:"by_section"`
	AvgHelpful  float64        `json:"avg_helpful"`
	AvgHarmful  float64        `json:"avg_harmful"`
	MostRecent  *Bullet        `json:"most_recent,omitempty"`
	MostHelpful *Bullet        `json:"most_helpful,omitempty"`
}

// Stats computes aggregate statistics over all bullets.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		BySection: make(map[string]int),
	}

	var totalHelpful, totalHarmful int
	var mostRecent, mostHelpful *Bullet

	for _, id := range s.order {
		b := s.bullets[id]
		stats.Total++
		stats.BySection[b.Section]++
		totalHelpful += b.Metadata.HelpfulCount
		totalHarmful += b.Metadata.HarmfulCount

		if b.Metadata.LastUsed != nil {
			if mostRecent == nil || mostRecent.Metadata.LastUsed == nil ||
				b.Metadata.LastUsed.After(*mostRecent.Metadata.LastUsed) {
				mostRecent = b
			}
		}
		if mostHelpful == nil || b.Metadata.HelpfulCount > mostHelpful.Metadata.HelpfulCount {
			mostHelpful = b
		}
	}

	if stats.Total > 0 {
		stats.AvgHelpful = float64(totalHelpful) / float64(stats.Total)
		stats.AvgHarmful = float64(totalHarmful) / float64(stats.Total)
	}
	if mostRecent != nil {
		clone := mostRecent.clone()
		stats.MostRecent = &clone
	}
	if mostHelpful != nil {
		clone := mostHelpful.clone()
		stats.MostHelpful = &clone
	}

	return stats
}

// Export returns a snapshot of the full bullet list, in insertion order.
// The snapshot is a deep copy suitable for handing to a persistence
// collaborator.
func (s *Store) Export() []Bullet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Bullet, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.bullets[id].clone())
	}
	return out
}

// Import loads bullets from a snapshot. Entries missing id, section, content
// or created metadata are silently skipped rather than failing the whole
// import; so are ids that already exist. Returns the number imported.
func (s *Store) Import(bullets []Bullet) int {
	imported := 0
	for _, b := range bullets {
		if b.ID == "" || strings.TrimSpace(b.Section) == "" ||
			strings.TrimSpace(b.Content) == "" || b.Metadata.Created.IsZero() {
			continue
		}

		created := b.Metadata.Created
		overrides := &MetadataOverrides{
			Created:      &created,
			HelpfulCount: &b.Metadata.HelpfulCount,
			HarmfulCount: &b.Metadata.HarmfulCount,
			LastUsed:     b.Metadata.LastUsed,
			Embedding:    b.Metadata.Embedding,
		}
		if err := s.addWithID(b.ID, b.Section, b.Content, overrides); err != nil {
			s.logger.Debug(context.Background(), "skipping import of bullet %s: %v", b.ID, err)
			continue
		}
		imported++
	}
	return imported
}
