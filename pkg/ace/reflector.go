package ace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/llm"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// Reflector mines a completed trajectory into structured insights through a
// bounded analysis, quality-assessment and refinement loop. Gateway calls
// run strictly sequentially: each prompt depends on the prior output.
type Reflector struct {
	gateway llm.Gateway
	logger  *logging.Logger
}

// NewReflector creates a reflector bound to a gateway.
func NewReflector(gateway llm.Gateway) *Reflector {
	return &Reflector{
		gateway: gateway,
		logger:  logging.GetLogger(),
	}
}

// Reflect analyzes a trajectory. Gateway failures propagate wrapped as
// ReflectionFailed; malformed model output only degrades through parse
// fallbacks and never raises.
func (r *Reflector) Reflect(ctx context.Context, trajectory *Trajectory, opts *ReflectOptions) (*ReflectionResult, error) {
	if trajectory == nil || strings.TrimSpace(trajectory.Query) == "" ||
		strings.TrimSpace(trajectory.Response) == "" {
		return nil, errors.New(errors.InvalidInput, "trajectory must have a query and a response")
	}
	if err := errors.CheckContext(ctx, "reflection"); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = DefaultReflectOptions()
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultReflectOptions().MaxIterations
	}
	threshold := opts.QualityThreshold
	if threshold <= 0 {
		threshold = DefaultReflectOptions().QualityThreshold
	}

	insights, err := r.analyze(ctx, trajectory, opts.Chat)
	if err != nil {
		return nil, err
	}

	var quality float64
	iterations := 0

	// Explicit bounded loop carrying {insights, quality, iterations}; the
	// accumulator never regresses to an empty insight set.
	for {
		iterations++

		verdict, err := r.assess(ctx, trajectory, insights, opts.Chat)
		if err != nil {
			return nil, err
		}
		quality = verdict.Quality

		if quality >= threshold || !verdict.NeedsRefinement || iterations >= maxIterations {
			break
		}

		refined, err := r.refine(ctx, trajectory, insights, quality, opts.Chat)
		if err != nil {
			return nil, err
		}
		if len(refined) > 0 {
			insights = refined
		}
	}

	r.logger.Debug(ctx, "reflection finished: %d insights, %d iterations, quality %.2f",
		len(insights), iterations, quality)

	return &ReflectionResult{
		Insights:     insights,
		Iterations:   iterations,
		QualityScore: quality,
	}, nil
}

func (r *Reflector) analyze(ctx context.Context, trajectory *Trajectory, chat *llm.ChatOptions) ([]Insight, error) {
	response, err := r.gateway.Chat(ctx, llm.SystemUser(analysisSystemPrompt, renderTrajectory(trajectory)), chat)
	if err != nil {
		return nil, errors.Wrap(err, errors.ReflectionFailed, "analysis call failed")
	}

	insights, branch := parseInsights(response)
	if branch != ParsedStructured {
		r.logger.Debug(ctx, "insight parsing fell back to %s branch", branch)
	}
	return insights, nil
}

func (r *Reflector) assess(ctx context.Context, trajectory *Trajectory, insights []Insight, chat *llm.ChatOptions) (assessment, error) {
	// An empty set forces quality 0 and refinement without spending a call.
	if len(insights) == 0 {
		return assessment{Quality: 0, NeedsRefinement: true}, nil
	}

	user := fmt.Sprintf("Query:\n%s\n\nInsights under review:\n%s", trajectory.Query, renderInsights(insights))
	response, err := r.gateway.Chat(ctx, llm.SystemUser(assessmentSystemPrompt, user), chat)
	if err != nil {
		return assessment{}, errors.Wrap(err, errors.ReflectionFailed, "quality assessment call failed")
	}

	verdict, _ := parseAssessment(response, insights)
	return verdict, nil
}

func (r *Reflector) refine(ctx context.Context, trajectory *Trajectory, insights []Insight, quality float64, chat *llm.ChatOptions) ([]Insight, error) {
	user := fmt.Sprintf("Original trajectory:\n%s\n\nCurrent insights (assessed quality %.2f):\n%s",
		renderTrajectory(trajectory), quality, renderInsights(insights))

	response, err := r.gateway.Chat(ctx, llm.SystemUser(refinementSystemPrompt, user), chat)
	if err != nil {
		return nil, errors.Wrap(err, errors.ReflectionFailed, "refinement call failed")
	}

	refined, _ := parseInsights(response)
	return refined, nil
}

func renderTrajectory(t *Trajectory) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query:\n%s\n\nResponse:\n%s\n", t.Query, t.Response)
	if len(t.BulletsHelpful) > 0 {
		fmt.Fprintf(&sb, "\nBullets marked helpful: %s\n", strings.Join(t.BulletsHelpful, ", "))
	}
	if len(t.BulletsHarmful) > 0 {
		fmt.Fprintf(&sb, "Bullets marked harmful: %s\n", strings.Join(t.BulletsHarmful, ", "))
	}
	return sb.String()
}

func renderInsights(insights []Insight) string {
	data, err := json.MarshalIndent(insights, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

const analysisSystemPrompt = `You analyze a coding-assistant interaction and extract reusable lessons.
Return a JSON array of insights, each with fields:
"observation" (what happened), "lesson" (what to learn from it),
"suggested_bullet" (a short guidance item for future prompts),
"confidence" (0 to 1) and "section" (a category name).`

const assessmentSystemPrompt = `You judge the quality of extracted insights.
Return JSON: {"quality_score": <0 to 1>, "needs_refinement": <true|false>}.
Score low when insights are vague, redundant or unsupported by the trajectory.`

const refinementSystemPrompt = `You improve a set of extracted insights given quality feedback.
Make them more specific, deduplicate them and drop unsupported ones.
Return the improved insights as a JSON array with fields
"observation", "lesson", "suggested_bullet", "confidence" and "section".`
