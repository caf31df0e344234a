package ace

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/llm"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Generator selects playbook bullets, composes the prompt, calls the gateway
// and attributes the response back to individual bullets.
type Generator struct {
	store   *playbook.Store
	gateway llm.Gateway
	logger  *logging.Logger
}

// NewGenerator creates a generator bound to a store and gateway.
func NewGenerator(store *playbook.Store, gateway llm.Gateway) *Generator {
	return &Generator{
		store:   store,
		gateway: gateway,
		logger:  logging.GetLogger(),
	}
}

// Generate runs one full interaction: bullet selection, prompt composition,
// gateway call, attribution parsing and feedback write-back.
func (g *Generator) Generate(ctx context.Context, query string, opts *GenerateOptions) (*Trajectory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.InvalidInput, "query cannot be empty")
	}
	if err := errors.CheckContext(ctx, "generation"); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = DefaultGenerateOptions()
	}
	maxBullets := opts.MaxBullets
	if maxBullets <= 0 {
		maxBullets = DefaultGenerateOptions().MaxBullets
	}

	selected := g.selectBullets(opts.PrioritySections, maxBullets)
	system := renderSystemPrompt(selected)

	response, err := g.gateway.Chat(ctx, llm.SystemUser(system, query), opts.Chat)
	if err != nil {
		return nil, errors.Wrap(err, errors.GenerationFailed, "gateway call failed")
	}

	helpful, harmful := ParseAttributionMarkers(response)
	if len(helpful) > 0 {
		g.store.RecordFeedback(helpful, playbook.FeedbackHelpful)
	}
	if len(harmful) > 0 {
		g.store.RecordFeedback(harmful, playbook.FeedbackHarmful)
	}

	used := make([]string, len(selected))
	for i, b := range selected {
		used[i] = b.ID
	}

	model := ""
	if opts.Chat != nil {
		model = opts.Chat.Model
	}

	g.logger.Debug(ctx, "generated trajectory: %d bullets used, %d helpful, %d harmful",
		len(used), len(helpful), len(harmful))

	return &Trajectory{
		Query:          query,
		Response:       response,
		BulletsUsed:    used,
		BulletsHelpful: helpful,
		BulletsHarmful: harmful,
		Metadata: TrajectoryMetadata{
			Model:     model,
			Timestamp: time.Now(),
		},
	}, nil
}

// selectBullets ranks the playbook deterministically: priority sections
// first, then helpfulness ratio, then last-used recency as the final
// tie-break. The sort is stable so equal bullets keep insertion order.
func (g *Generator) selectBullets(prioritySections []string, maxBullets int) []playbook.Bullet {
	bullets := g.store.Query(playbook.Filter{})

	priority := make(map[string]bool, len(prioritySections))
	for _, s := range prioritySections {
		priority[s] = true
	}

	sort.SliceStable(bullets, func(i, j int) bool {
		pi, pj := priority[bullets[i].Section], priority[bullets[j].Section]
		if pi != pj {
			return pi
		}
		ri, rj := bullets[i].HelpfulnessRatio(), bullets[j].HelpfulnessRatio()
		if ri != rj {
			return ri > rj
		}
		ui, uj := bullets[i].Metadata.LastUsed, bullets[j].Metadata.LastUsed
		switch {
		case ui == nil && uj == nil:
			return false
		case uj == nil:
			return true
		case ui == nil:
			return false
		default:
			return ui.After(*uj)
		}
	})

	if len(bullets) > maxBullets {
		bullets = bullets[:maxBullets]
	}
	return bullets
}

// renderSystemPrompt groups bullets by section and appends the attribution
// marker instructions.
func renderSystemPrompt(bullets []playbook.Bullet) string {
	var sb strings.Builder
	sb.WriteString("You are a coding assistant with access to a curated playbook of guidance.\n")

	if len(bullets) > 0 {
		sb.WriteString("\n## Playbook\n")

		bySection := make(map[string][]playbook.Bullet)
		var sectionOrder []string
		for _, b := range bullets {
			if _, seen := bySection[b.Section]; !seen {
				sectionOrder = append(sectionOrder, b.Section)
			}
			bySection[b.Section] = append(bySection[b.Section], b)
		}

		for _, section := range sectionOrder {
			fmt.Fprintf(&sb, "\n### %s\n", section)
			for _, b := range bySection[section] {
				fmt.Fprintf(&sb, "- [%s] %s\n", b.ID, b.Content)
			}
		}

		sb.WriteString("\nAfter your answer, list which playbook bullets helped or hurt, one per line:\n")
		sb.WriteString("#helpful-<bulletId> for bullets that guided you well\n")
		sb.WriteString("#harmful-<bulletId> for bullets that were misleading\n")
	}

	return sb.String()
}

var markerRegex = regexp.MustCompile(`#(helpful|harmful)-([A-Za-z0-9_-]+)`)

// ParseAttributionMarkers scans response text line by line for attribution
// entries. Unrecognized text is ignored; duplicate ids are collapsed
// preserving first-seen order.
func ParseAttributionMarkers(text string) (helpful, harmful []string) {
	seenHelpful := make(map[string]bool)
	seenHarmful := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		for _, match := range markerRegex.FindAllStringSubmatch(line, -1) {
			id := match[2]
			switch match[1] {
			case "helpful":
				if !seenHelpful[id] {
					helpful = append(helpful, id)
					seenHelpful[id] = true
				}
			case "harmful":
				if !seenHarmful[id] {
					harmful = append(harmful, id)
					seenHarmful[id] = true
				}
			}
		}
	}
	return helpful, harmful
}
