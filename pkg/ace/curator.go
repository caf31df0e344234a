package ace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/llm"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

func init() {
	message.Set(language.English, "%d bullets added",
		plural.Selectf(1, "%d",
			plural.One, "%d bullet added",
			plural.Other, "%d bullets added"))
	message.Set(language.English, "%d bullets updated",
		plural.Selectf(1, "%d",
			plural.One, "%d bullet updated",
			plural.Other, "%d bullets updated"))
	message.Set(language.English, "%d bullets deleted",
		plural.Selectf(1, "%d",
			plural.One, "%d bullet deleted",
			plural.Other, "%d bullets deleted"))
}

// Curator turns insights into safe, deduplicated delta operations against
// the playbook. It never applies operations itself; the caller hands the
// result to playbook.Store.ApplyDeltas.
type Curator struct {
	store   *playbook.Store
	gateway llm.Gateway
	logger  *logging.Logger
	printer *message.Printer
}

// NewCurator creates a curator bound to a store and gateway.
func NewCurator(store *playbook.Store, gateway llm.Gateway) *Curator {
	return &Curator{
		store:   store,
		gateway: gateway,
		logger:  logging.GetLogger(),
		printer: message.NewPrinter(language.English),
	}
}

// Curate filters insights by confidence, synthesizes delta operations via
// the gateway, normalizes them and deduplicates ADDs against existing
// bullets. Synthesis gateway failures propagate as CurationFailed;
// deduplication failures degrade to keeping the pending addition.
func (c *Curator) Curate(ctx context.Context, insights []Insight, opts *CurateOptions) (*CurationResult, error) {
	if opts == nil {
		opts = DefaultCurateOptions()
	}
	if err := errors.CheckContext(ctx, "curation"); err != nil {
		return nil, err
	}

	if len(insights) == 0 {
		return &CurationResult{Summary: "no insights to curate"}, nil
	}

	var survivors []Insight
	for _, in := range insights {
		if in.Confidence >= opts.MinConfidence {
			survivors = append(survivors, in)
		}
	}
	if len(survivors) == 0 {
		return &CurationResult{
			Summary: fmt.Sprintf("all %d insights below confidence threshold %.2f", len(insights), opts.MinConfidence),
		}, nil
	}

	ops, err := c.synthesize(ctx, survivors, opts.Chat)
	if err != nil {
		return nil, err
	}

	ops = normalizeOperations(ops, survivors)

	if opts.EnableDeduplication {
		ops = c.deduplicate(ctx, ops, opts)
	}

	stats := CurationStats{}
	for _, op := range ops {
		switch op.Type {
		case playbook.DeltaAdd:
			stats.Adds++
		case playbook.DeltaUpdate:
			stats.Updates++
		case playbook.DeltaDelete:
			stats.Deletes++
		}
	}

	return &CurationResult{
		Operations: ops,
		Summary:    c.summarize(stats),
		Statistics: stats,
	}, nil
}

func (c *Curator) synthesize(ctx context.Context, insights []Insight, chat *llm.ChatOptions) ([]playbook.DeltaOperation, error) {
	listing := renderBulletListing(c.store.Query(playbook.Filter{}))
	user := fmt.Sprintf("Current playbook:\n%s\n\nNew insights:\n%s", listing, renderInsights(insights))

	response, err := c.gateway.Chat(ctx, llm.SystemUser(synthesisSystemPrompt, user), chat)
	if err != nil {
		return nil, errors.Wrap(err, errors.CurationFailed, "synthesis call failed")
	}

	ops, branch := parseDeltas(response)
	if branch != ParsedStructured {
		c.logger.Debug(ctx, "delta parsing fell back to %s branch", branch)
	}
	return ops, nil
}

// normalizeOperations fills generated ids and default metadata on ADDs,
// defaults missing UPDATE field sets, and drops operations missing required
// fields for their type.
func normalizeOperations(ops []playbook.DeltaOperation, insights []Insight) []playbook.DeltaOperation {
	sectionFor := func(content string) string {
		for _, in := range insights {
			if in.SuggestedBullet == content && in.Section != "" {
				return in.Section
			}
		}
		return "general"
	}

	var out []playbook.DeltaOperation
	for _, op := range ops {
		switch op.Type {
		case playbook.DeltaAdd:
			if op.Bullet == nil || strings.TrimSpace(op.Bullet.Content) == "" {
				continue
			}
			if op.Bullet.ID == "" {
				op.Bullet.ID = uuid.New().String()
			}
			if op.Bullet.Section == "" {
				op.Bullet.Section = sectionFor(op.Bullet.Content)
			}
			out = append(out, op)
		case playbook.DeltaUpdate:
			if op.BulletID == "" {
				continue
			}
			if op.Updates == nil {
				op.Updates = &playbook.BulletUpdate{}
			}
			out = append(out, op)
		case playbook.DeltaDelete:
			if op.BulletID == "" {
				continue
			}
			out = append(out, op)
		}
	}
	return out
}

// deduplicate rewrites or drops ADD operations that overlap existing
// bullets. Any embedding or assessment failure leaves the ADD unchanged:
// dedup never blocks a pending addition.
func (c *Curator) deduplicate(ctx context.Context, ops []playbook.DeltaOperation, opts *CurateOptions) []playbook.DeltaOperation {
	embedder, ok := llm.AsEmbedder(c.gateway)
	if !ok {
		return ops
	}

	threshold := opts.DedupThreshold
	if threshold <= 0 {
		threshold = DefaultCurateOptions().DedupThreshold
	}

	var out []playbook.DeltaOperation
	for _, op := range ops {
		if op.Type != playbook.DeltaAdd {
			out = append(out, op)
			continue
		}

		embedding, err := embedder.Embed(ctx, op.Bullet.Content)
		if err != nil {
			c.logger.Warn(ctx, "dedup embedding failed, keeping ADD: %v", err)
			out = append(out, op)
			continue
		}
		op.Bullet.Metadata.Embedding = embedding

		similar := c.store.FindSimilar(embedding, threshold)
		if len(similar) == 0 {
			out = append(out, op)
			continue
		}

		resolved := c.resolveDuplicate(ctx, op, similar[0], opts.Chat)
		if resolved != nil {
			out = append(out, *resolved)
		}
	}
	return out
}

// duplicateVerdict is the model's call on a candidate/existing pair.
type duplicateVerdict struct {
	Assessment     string `json:"assessment"`     // DUPLICATE, SIMILAR or UNIQUE
	Recommendation string `json:"recommendation"` // merge, update, keep_separate or discard
}

// resolveDuplicate asks the gateway how to treat an ADD overlapping an
// existing bullet. Returns nil to drop the operation entirely.
func (c *Curator) resolveDuplicate(ctx context.Context, op playbook.DeltaOperation, existing playbook.Bullet, chat *llm.ChatOptions) *playbook.DeltaOperation {
	user := fmt.Sprintf("Existing bullet [%s]: %s\n\nCandidate addition: %s",
		existing.ID, existing.Content, op.Bullet.Content)

	response, err := c.gateway.Chat(ctx, llm.SystemUser(dedupSystemPrompt, user), chat)
	if err != nil {
		// Assessment failures are treated as keep_separate.
		c.logger.Warn(ctx, "dedup assessment failed, keeping ADD: %v", err)
		return &op
	}

	verdict := parseDuplicateVerdict(response)
	switch verdict.Recommendation {
	case "discard":
		c.logger.Debug(ctx, "discarding duplicate of bullet %s", existing.ID)
		return nil
	case "merge":
		merged := existing.Content + " " + op.Bullet.Content
		return &playbook.DeltaOperation{
			Type:     playbook.DeltaUpdate,
			BulletID: existing.ID,
			Updates:  &playbook.BulletUpdate{Content: &merged},
		}
	case "update":
		content := op.Bullet.Content
		return &playbook.DeltaOperation{
			Type:     playbook.DeltaUpdate,
			BulletID: existing.ID,
			Updates:  &playbook.BulletUpdate{Content: &content},
		}
	default:
		return &op
	}
}

func parseDuplicateVerdict(text string) duplicateVerdict {
	if raw := extractJSON(text, '{', '}'); raw != "" {
		var v duplicateVerdict
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			v.Recommendation = strings.ToLower(strings.TrimSpace(v.Recommendation))
			return v
		}
	}
	return duplicateVerdict{Assessment: "UNIQUE", Recommendation: "keep_separate"}
}

func (c *Curator) summarize(stats CurationStats) string {
	parts := []string{
		c.printer.Sprintf("%d bullets added", stats.Adds),
		c.printer.Sprintf("%d bullets updated", stats.Updates),
		c.printer.Sprintf("%d bullets deleted", stats.Deletes),
	}
	return strings.Join(parts, ", ")
}

func renderBulletListing(bullets []playbook.Bullet) string {
	if len(bullets) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for _, b := range bullets {
		fmt.Fprintf(&sb, "[%s] (%s) %s\n", b.ID, b.Section, b.Content)
	}
	return sb.String()
}

const synthesisSystemPrompt = `You maintain a playbook of guidance bullets for a coding assistant.
Given the current playbook and new insights, emit the operations needed to
incorporate the insights. Return a JSON array of operations:
{"type": "ADD", "bullet": {"section": "...", "content": "..."}}
{"type": "UPDATE", "bulletId": "...", "updates": {"content": "..."}}
{"type": "DELETE", "bulletId": "..."}
Prefer small, surgical changes over rewrites.`

const dedupSystemPrompt = `You compare a candidate playbook addition to an existing bullet.
Return JSON: {"assessment": "DUPLICATE"|"SIMILAR"|"UNIQUE",
"recommendation": "merge"|"update"|"keep_separate"|"discard"}.
Use "discard" when the candidate adds nothing, "merge" when both halves have
value, "update" when the candidate supersedes the existing bullet.`
