package playbook

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(Config{MaxBullets: 100})
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestAddThenGet(t *testing.T) {
	store := newTestStore(t)

	b, err := store.Add("Algorithms", "Prefer binary search on sorted input", nil)
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)

	got, ok := store.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, "Algorithms", got.Section)
	assert.Equal(t, "Prefer binary search on sorted input", got.Content)
	assert.Zero(t, got.Metadata.HelpfulCount)
	assert.Zero(t, got.Metadata.HarmfulCount)
	assert.Nil(t, got.Metadata.LastUsed)
	assert.False(t, got.Metadata.Created.IsZero())
}

func TestAddValidation(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name    string
		section string
		content string
	}{
		{"empty section", "", "content"},
		{"whitespace section", "   ", "content"},
		{"empty content", "Testing", ""},
		{"whitespace content", "Testing", "\t\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Add(tt.section, tt.content, nil)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ValidationFailed))
		})
	}
}

func TestAddCapacity(t *testing.T) {
	store := NewStore(Config{MaxBullets: 2})

	_, err := store.Add("a", "one", nil)
	require.NoError(t, err)
	_, err = store.Add("a", "two", nil)
	require.NoError(t, err)

	_, err = store.Add("a", "three", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CapacityExceeded))
	assert.Equal(t, 2, store.Len())
}

func TestAddMetadataOverrides(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	b, err := store.Add("Errors", "Wrap errors with context", &MetadataOverrides{
		Created:      &created,
		HelpfulCount: intPtr(3),
		Embedding:    []float64{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.Equal(t, created, b.Metadata.Created)
	assert.Equal(t, 3, b.Metadata.HelpfulCount)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, b.Metadata.Embedding)
}

func TestUpdate(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Add("Style", "Keep functions short", nil)
	require.NoError(t, err)

	updated, err := store.Update(b.ID, BulletUpdate{
		Content:  strPtr("Keep functions short and focused"),
		Metadata: &MetadataOverrides{HelpfulCount: intPtr(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, b.ID, updated.ID)
	assert.Equal(t, "Style", updated.Section)
	assert.Equal(t, "Keep functions short and focused", updated.Content)
	assert.Equal(t, 5, updated.Metadata.HelpfulCount)
}

func TestUpdateNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Update("no-such-id", BulletUpdate{Content: strPtr("x")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ResourceNotFound))
}

func TestUpdateRevalidates(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Add("Style", "Keep functions short", nil)
	require.NoError(t, err)

	_, err = store.Update(b.ID, BulletUpdate{Content: strPtr("   ")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ValidationFailed))

	// Unchanged after failed update.
	got, ok := store.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, "Keep functions short", got.Content)
}

func TestDeleteIdempotent(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Add("a", "content", nil)
	require.NoError(t, err)

	assert.True(t, store.Delete(b.ID))
	assert.False(t, store.Delete(b.ID))
	_, ok := store.Get(b.ID)
	assert.False(t, ok)
}

func TestQueryFilters(t *testing.T) {
	store := newTestStore(t)

	b1, err := store.Add("Algorithms", "Prefer binary search", &MetadataOverrides{HelpfulCount: intPtr(4)})
	require.NoError(t, err)
	_, err = store.Add("Errors", "Check error returns", &MetadataOverrides{HarmfulCount: intPtr(3)})
	require.NoError(t, err)
	b3, err := store.Add("Algorithms", "Avoid quadratic loops", nil)
	require.NoError(t, err)

	t.Run("empty filter returns all in insertion order", func(t *testing.T) {
		all := store.Query(Filter{})
		require.Len(t, all, 3)
		assert.Equal(t, b1.ID, all[0].ID)
	})

	t.Run("section equality", func(t *testing.T) {
		algos := store.Query(Filter{Section: strPtr("Algorithms")})
		require.Len(t, algos, 2)
		assert.Equal(t, b1.ID, algos[0].ID)
		assert.Equal(t, b3.ID, algos[1].ID)
	})

	t.Run("min helpful", func(t *testing.T) {
		helpful := store.Query(Filter{MinHelpful: intPtr(1)})
		require.Len(t, helpful, 1)
		assert.Equal(t, b1.ID, helpful[0].ID)
	})

	t.Run("max harmful", func(t *testing.T) {
		safe := store.Query(Filter{MaxHarmful: intPtr(0)})
		assert.Len(t, safe, 2)
	})

	t.Run("content substring is case-insensitive", func(t *testing.T) {
		hits := store.Query(Filter{ContentContains: "BINARY"})
		require.Len(t, hits, 1)
		assert.Equal(t, b1.ID, hits[0].ID)
	})

	t.Run("conjunction", func(t *testing.T) {
		hits := store.Query(Filter{Section: strPtr("Algorithms"), MinHelpful: intPtr(1)})
		require.Len(t, hits, 1)
		assert.Equal(t, b1.ID, hits[0].ID)
	})
}

func TestRecordFeedbackMonotonic(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Add("a", "content", nil)
	require.NoError(t, err)

	prevHelpful, prevHarmful := 0, 0
	for i := 0; i < 5; i++ {
		store.RecordFeedback([]string{b.ID}, FeedbackHelpful)
		store.RecordFeedback([]string{b.ID, "unknown-id"}, FeedbackHarmful)

		got, ok := store.Get(b.ID)
		require.True(t, ok)
		assert.GreaterOrEqual(t, got.Metadata.HelpfulCount, prevHelpful)
		assert.GreaterOrEqual(t, got.Metadata.HarmfulCount, prevHarmful)
		prevHelpful = got.Metadata.HelpfulCount
		prevHarmful = got.Metadata.HarmfulCount
		require.NotNil(t, got.Metadata.LastUsed)
	}

	assert.Equal(t, 5, prevHelpful)
	assert.Equal(t, 5, prevHarmful)
}

func TestApplyDeltasPartialFailure(t *testing.T) {
	store := newTestStore(t)

	ops := []DeltaOperation{
		{Type: DeltaAdd, Bullet: &Bullet{Section: "Errors", Content: "Wrap with context"}},
		{Type: DeltaUpdate, BulletID: "missing", Updates: &BulletUpdate{Content: strPtr("x")}},
	}

	result := store.ApplyDeltas(ops)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 0, result.Updated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "operation 1")
	assert.Equal(t, 1, store.Len())
}

func TestApplyDeltasAllTypes(t *testing.T) {
	store := newTestStore(t)
	victim, err := store.Add("a", "to be deleted", nil)
	require.NoError(t, err)
	target, err := store.Add("a", "to be updated", nil)
	require.NoError(t, err)

	result := store.ApplyDeltas([]DeltaOperation{
		{Type: DeltaAdd, Bullet: &Bullet{ID: "fixed-id", Section: "b", Content: "added"}},
		{Type: DeltaUpdate, BulletID: target.ID, Updates: &BulletUpdate{Content: strPtr("updated content")}},
		{Type: DeltaDelete, BulletID: victim.ID},
		{Type: DeltaDelete, BulletID: "already-gone"}, // soft no-op
	})

	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, result.Errors)

	added, ok := store.Get("fixed-id")
	require.True(t, ok)
	assert.Equal(t, "added", added.Content)

	got, ok := store.Get(target.ID)
	require.True(t, ok)
	assert.Equal(t, "updated content", got.Content)
}

func TestApplyDeltasMissingFields(t *testing.T) {
	store := newTestStore(t)

	result := store.ApplyDeltas([]DeltaOperation{
		{Type: DeltaAdd},                // no bullet
		{Type: DeltaUpdate},             // no id
		{Type: DeltaDelete},             // no id
		{Type: DeltaType("MYSTERIOUS")}, // unknown type
	})

	assert.Zero(t, result.Added+result.Updated+result.Deleted)
	assert.Len(t, result.Errors, 4)
}

func TestCodesSurfaceThroughErrorsAs(t *testing.T) {
	store := NewStore(Config{MaxBullets: 1})
	_, err := store.Add("a", "one", nil)
	require.NoError(t, err)
	_, err = store.Add("a", "two", nil)

	var structured *errors.Error
	require.True(t, stderrors.As(err, &structured))
	assert.Equal(t, errors.CapacityExceeded, structured.Code())
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Add("a", "one", nil)
	require.NoError(t, err)
	store.Clear()
	assert.Zero(t, store.Len())
	assert.Empty(t, store.Query(Filter{}))
}
