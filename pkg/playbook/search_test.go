package playbook

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchExactBeatsSubstring(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Add("Notes", "this bullet mentions exact phrase among other words", nil)
	require.NoError(t, err)
	exact, err := store.Add("Notes", "exact phrase", nil)
	require.NoError(t, err)

	results := store.Search(context.Background(), "exact phrase", SearchOptions{Limit: 5})
	require.NotEmpty(t, results)

	assert.Equal(t, exact.ID, results[0].Bullet.ID)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, MatchExact, results[0].Match)

	require.Len(t, results, 2)
	assert.Equal(t, MatchSubstring, results[1].Match)
	assert.Less(t, results[1].Score, 1.0)
}

func TestSearchSubstringScore(t *testing.T) {
	store := newTestStore(t)

	// 10-char query inside 40-char content: 10/40*2 = 0.5
	content := "aaaaaaaaaa" + "1234567890" + "aaaaaaaaaaaaaaaaaaaa"
	require.Len(t, content, 40)
	_, err := store.Add("Notes", content, nil)
	require.NoError(t, err)

	results := store.Search(context.Background(), "1234567890", SearchOptions{})
	require.Len(t, results, 1)
	assert.InDelta(t, 0.5, results[0].Score, 1e-9)

	// Substring score is capped at 0.9 even for near-identical content.
	store.Clear()
	_, err = store.Add("Notes", "abcdef", nil)
	require.NoError(t, err)
	results = store.Search(context.Background(), "abcde", SearchOptions{})
	require.Len(t, results, 1)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
}

func TestSearchCaseInsensitiveSubstring(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Add("Notes", "Always VALIDATE user input before parsing", nil)
	require.NoError(t, err)

	results := store.Search(context.Background(), "validate user", SearchOptions{})
	require.Len(t, results, 1)
	assert.Equal(t, MatchSubstring, results[0].Match)
}

func TestSearchMinSimilarityAndLimit(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 10; i++ {
		_, err := store.Add("Notes", fmt.Sprintf("needle padding %02d wwwwwwwwwwwwwwwwwwwwwwwwwwwwwwwwwwww", i), nil)
		require.NoError(t, err)
	}

	all := store.Search(context.Background(), "needle", SearchOptions{})
	require.Len(t, all, 10)

	limited := store.Search(context.Background(), "needle", SearchOptions{Limit: 3})
	assert.Len(t, limited, 3)

	none := store.Search(context.Background(), "needle", SearchOptions{MinSimilarity: 0.95})
	assert.Empty(t, none)
}

func TestSearchStableTieBreakByInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	first, err := store.Add("Notes", "needle aaaaaaaaaaaaaa", nil)
	require.NoError(t, err)
	second, err := store.Add("Notes", "needle bbbbbbbbbbbbbb", nil)
	require.NoError(t, err)

	results := store.Search(context.Background(), "needle", SearchOptions{})
	require.Len(t, results, 2)
	assert.Equal(t, first.ID, results[0].Bullet.ID)
	assert.Equal(t, second.ID, results[1].Bullet.ID)
}

func TestSearchWithEmbeddings(t *testing.T) {
	embed := func(ctx context.Context, text string) ([]float64, error) {
		return []float64{1, 0, 0}, nil
	}
	store := NewStore(Config{MaxBullets: 100, Embed: embed})

	aligned, err := store.Add("Notes", "completely different wording", &MetadataOverrides{
		Embedding: []float64{0.99, 0.01, 0},
	})
	require.NoError(t, err)
	_, err = store.Add("Notes", "another unrelated bullet", &MetadataOverrides{
		Embedding: []float64{0, 1, 0},
	})
	require.NoError(t, err)

	results := store.Search(context.Background(), "semantic query", SearchOptions{
		UseEmbeddings: true,
		MinSimilarity: 0.5,
	})
	require.Len(t, results, 1)
	assert.Equal(t, aligned.ID, results[0].Bullet.ID)
	assert.Equal(t, MatchEmbedding, results[0].Match)
}

func TestSearchEmbeddingsDisabledWithoutFlag(t *testing.T) {
	called := false
	embed := func(ctx context.Context, text string) ([]float64, error) {
		called = true
		return []float64{1}, nil
	}
	store := NewStore(Config{MaxBullets: 100, Embed: embed})
	_, err := store.Add("Notes", "some bullet", &MetadataOverrides{Embedding: []float64{1}})
	require.NoError(t, err)

	store.Search(context.Background(), "query", SearchOptions{})
	assert.False(t, called)
}

func TestFindSimilar(t *testing.T) {
	store := newTestStore(t)

	near, err := store.Add("Notes", "near", &MetadataOverrides{Embedding: []float64{0.1, 0.2, 0.3}})
	require.NoError(t, err)
	_, err = store.Add("Notes", "far", &MetadataOverrides{Embedding: []float64{-0.3, 0.1, -0.2}})
	require.NoError(t, err)
	_, err = store.Add("Notes", "no embedding", nil)
	require.NoError(t, err)

	hits := store.FindSimilar([]float64{0.1, 0.2, 0.31}, 0.85)
	require.Len(t, hits, 1)
	assert.Equal(t, near.ID, hits[0].ID)
}

func TestFindSimilarSkipsMismatchedDimensions(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Add("Notes", "tiny vector", &MetadataOverrides{Embedding: []float64{1}})
	require.NoError(t, err)

	hits := store.FindSimilar([]float64{0.1, 0.2, 0.3}, 0.0)
	assert.Empty(t, hits)
}
