package playbook

import (
	"context"
	"sort"
	"strings"
)

// MatchType records which strategy produced a search hit.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchSubstring MatchType = "substring"
	MatchEmbedding MatchType = "embedding"
)

// SearchResult pairs a bullet with its relevance score.
type SearchResult struct {
	Bullet Bullet    `json:"bullet"`
	Score  float64   `json:"score"`
	Match  MatchType `json:"matchType"`
}

// SearchOptions tunes Search behavior.
type SearchOptions struct {
	// Limit truncates the ranked result list. Zero or negative means no limit.
	Limit int

	// MinSimilarity drops results scoring below it.
	MinSimilarity float64

	// UseEmbeddings enables cosine matching when the store has an injected
	// embedding function and the bullet carries an embedding.
	UseEmbeddings bool
}

// Search ranks bullets against a query string. An exact content match scores
// 1.0; a substring match scores min(|query|/|content|*2, 0.9); embedding
// matches score cosine similarity. Each bullet keeps its best score. Results
// sort descending with insertion order as the stable tie-break.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) []SearchResult {
	var queryVec []float64
	if opts.UseEmbeddings && s.embed != nil {
		// Embedding failures silently fall back to textual matching.
		if vec, err := s.embed(ctx, query); err == nil {
			queryVec = vec
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	queryLower := strings.ToLower(query)

	var results []SearchResult
	for _, id := range s.order {
		b := s.bullets[id]

		score := -1.0
		match := MatchType("")

		if b.Content == query {
			score = 1.0
			match = MatchExact
		} else if strings.Contains(strings.ToLower(b.Content), queryLower) {
			sub := float64(len(query)) / float64(len(b.Content)) * 2
			if sub > 0.9 {
				sub = 0.9
			}
			score = sub
			match = MatchSubstring
		}

		if queryVec != nil && len(b.Metadata.Embedding) > 0 {
			if sim, err := CosineSimilarity(queryVec, b.Metadata.Embedding); err == nil && sim > score {
				score = sim
				match = MatchEmbedding
			}
		}

		if match == "" || score < opts.MinSimilarity {
			continue
		}

		results = append(results, SearchResult{Bullet: b.clone(), Score: score, Match: match})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results
}

// FindSimilar returns bullets whose embeddings score at or above the
// threshold against the given vector, most similar first. Bullets without
// embeddings, or with mismatched dimensions, do not participate.
func (s *Store) FindSimilar(embedding []float64, threshold float64) []Bullet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		bullet Bullet
		score  float64
	}

	var hits []scored
	for _, id := range s.order {
		b := s.bullets[id]
		if len(b.Metadata.Embedding) == 0 {
			continue
		}
		sim, err := CosineSimilarity(embedding, b.Metadata.Embedding)
		if err != nil || sim < threshold {
			continue
		}
		hits = append(hits, scored{bullet: b.clone(), score: sim})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	out := make([]Bullet, len(hits))
	for i, h := range hits {
		out[i] = h.bullet
	}
	return out
}
