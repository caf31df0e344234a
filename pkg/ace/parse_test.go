package ace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

func TestParseInsightsStructured(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{
			name: "bare array",
			text: `[{"observation": "o", "lesson": "l", "suggested_bullet": "s", "confidence": 0.7, "section": "general"}]`,
			want: 1,
		},
		{
			name: "array wrapped in prose",
			text: "Here are the insights:\n```json\n" +
				`[{"observation": "o", "lesson": "l", "suggested_bullet": "s"}]` +
				"\n```\nLet me know if you need more.",
			want: 1,
		},
		{
			name: "insights object wrapper",
			text: `{"insights": [{"observation": "o", "lesson": "l", "suggested_bullet": "s"},
				{"observation": "o2", "lesson": "l2", "suggested_bullet": "s2"}]}`,
			want: 2,
		},
		{
			name: "incomplete entries discarded",
			text: `[{"observation": "o", "lesson": "l", "suggested_bullet": "s"},
				{"observation": "only an observation"}]`,
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insights, branch := parseInsights(tt.text)
			assert.Equal(t, ParsedStructured, branch)
			assert.Len(t, insights, tt.want)
		})
	}
}

func TestParseInsightsTextualFallback(t *testing.T) {
	text := "observation: the model guessed a library version\n" +
		"lesson: pin dependency versions in suggestions\n" +
		"suggested_bullet: Always name exact dependency versions\n" +
		"confidence: 0.6\n" +
		"section: Dependencies\n" +
		"\n" +
		"observation: second block\n" +
		"lesson: second lesson\n" +
		"suggested_bullet: second bullet\n"

	insights, branch := parseInsights(text)
	assert.Equal(t, ParsedTextual, branch)
	require.Len(t, insights, 2)
	assert.Equal(t, "Always name exact dependency versions", insights[0].SuggestedBullet)
	assert.InDelta(t, 0.6, insights[0].Confidence, 1e-9)
	assert.Equal(t, "Dependencies", insights[0].Section)
	assert.Equal(t, "second bullet", insights[1].SuggestedBullet)
}

func TestParseInsightsTextualDiscardsIncompleteBlocks(t *testing.T) {
	text := "observation: has no lesson\n" +
		"suggested_bullet: incomplete\n" +
		"observation: complete one\n" +
		"lesson: complete lesson\n" +
		"suggested_bullet: complete bullet\n"

	insights, branch := parseInsights(text)
	assert.Equal(t, ParsedTextual, branch)
	require.Len(t, insights, 1)
	assert.Equal(t, "complete one", insights[0].Observation)
}

func TestParseInsightsDefault(t *testing.T) {
	for _, text := range []string{"", "free-form prose with no structure", "{broken json"} {
		insights, branch := parseInsights(text)
		assert.Equal(t, ParsedDefault, branch, "input %q", text)
		assert.Empty(t, insights)
	}
}

func TestParseAssessment(t *testing.T) {
	insights := []Insight{
		{Observation: "o", Lesson: "l", SuggestedBullet: "s", Confidence: 0.9},
		{Observation: "o2", Lesson: "l2", SuggestedBullet: "s2", Confidence: 0.5},
	}

	t.Run("structured", func(t *testing.T) {
		a, branch := parseAssessment(`{"quality_score": 0.75, "needs_refinement": true}`, insights)
		assert.Equal(t, ParsedStructured, branch)
		assert.InDelta(t, 0.75, a.Quality, 1e-9)
		assert.True(t, a.NeedsRefinement)
	})

	t.Run("structured zero score", func(t *testing.T) {
		a, branch := parseAssessment(`{"quality_score": 0, "needs_refinement": true}`, insights)
		assert.Equal(t, ParsedStructured, branch)
		assert.Zero(t, a.Quality)
	})

	t.Run("textual", func(t *testing.T) {
		a, branch := parseAssessment("quality_score: 0.4\nneeds_refinement: yes\n", insights)
		assert.Equal(t, ParsedTextual, branch)
		assert.InDelta(t, 0.4, a.Quality, 1e-9)
		assert.True(t, a.NeedsRefinement)
	})

	t.Run("default uses confidence mean", func(t *testing.T) {
		a, branch := parseAssessment("nothing usable here", insights)
		assert.Equal(t, ParsedDefault, branch)
		assert.InDelta(t, 0.7, a.Quality, 1e-9)
		assert.False(t, a.NeedsRefinement)
	})

	t.Run("empty insights force refinement", func(t *testing.T) {
		a, branch := parseAssessment(`{"quality_score": 0.99, "needs_refinement": false}`, nil)
		assert.Equal(t, ParsedDefault, branch)
		assert.Zero(t, a.Quality)
		assert.True(t, a.NeedsRefinement)
	})
}

func TestParseDeltasStructured(t *testing.T) {
	text := `[
		{"type": "add", "bullet": {"section": "general", "content": "new bullet"}},
		{"type": "DELETE", "bulletId": "b-1"}
	]`

	ops, branch := parseDeltas(text)
	assert.Equal(t, ParsedStructured, branch)
	require.Len(t, ops, 2)
	// Lowercase types normalize to the canonical form.
	assert.Equal(t, playbook.DeltaAdd, ops[0].Type)
	assert.Equal(t, playbook.DeltaDelete, ops[1].Type)
	assert.Equal(t, "b-1", ops[1].BulletID)
}

func TestParseDeltasOperationsWrapper(t *testing.T) {
	text := `{"operations": [{"type": "update", "bulletId": "b-2",
		"updates": {"content": "revised"}}]}`

	ops, branch := parseDeltas(text)
	assert.Equal(t, ParsedStructured, branch)
	require.Len(t, ops, 1)
	assert.Equal(t, playbook.DeltaUpdate, ops[0].Type)
	require.NotNil(t, ops[0].Updates)
	require.NotNil(t, ops[0].Updates.Content)
	assert.Equal(t, "revised", *ops[0].Updates.Content)
}

func TestParseDeltasTextualFallback(t *testing.T) {
	text := "I would add a bullet \"Prefer table-driven tests\" to the playbook.\n" +
		"Also adding another bullet: \"Wrap errors with context\".\n" +
		"No other changes are needed.\n"

	ops, branch := parseDeltas(text)
	assert.Equal(t, ParsedTextual, branch)
	require.Len(t, ops, 2)
	for _, op := range ops {
		assert.Equal(t, playbook.DeltaAdd, op.Type)
	}
	assert.Equal(t, "Prefer table-driven tests", ops[0].Bullet.Content)
	assert.Equal(t, "Wrap errors with context", ops[1].Bullet.Content)
}

func TestParseDeltasDefault(t *testing.T) {
	ops, branch := parseDeltas("the playbook already covers this, no changes")
	assert.Equal(t, ParsedDefault, branch)
	assert.Empty(t, ops)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `[1, 2]`, extractJSON("prefix [1, 2] suffix", '[', ']'))
	assert.Equal(t, `{"a": 1}`, extractJSON("```json\n{\"a\": 1}\n```", '{', '}'))
	assert.Empty(t, extractJSON("no brackets", '[', ']'))
	assert.Empty(t, extractJSON("] reversed [", '[', ']'))
}
