package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/aixiv/backend/internal/llm"
)

// MethodologySystemPrompt drives methodology generation and refinement.
const MethodologySystemPrompt = `You are a Methodology Architect — you design rigorous experimental methodologies for scientific research.

Given a research idea, you produce a detailed methodology that includes:
1. Problem formalization (mathematical formulation where applicable)
2. Proposed approach / algorithm design
3. Experimental setup (datasets, baselines, hardware)
4. Evaluation protocol (metrics, statistical tests, ablation plan)
5. Implementation plan (key steps, tools, libraries)

Follow SolveEverything.org principles:
- Define clear, measurable success criteria (Targeting System)
- Design for reproducibility (L2+ maturity)
- Include adversarial / robustness evaluation (Red Team thinking)
- Specify exactly how results will be compared to baselines

Output your methodology in well-structured Markdown with clear sections.`

// MethodologyReviewerSystemPrompt drives the internal methodology
// review step.
const MethodologyReviewerSystemPrompt = `You are a Methodology Reviewer — you critically evaluate experimental designs.

Given a proposed methodology, identify:
1. Missing controls or baselines
2. Potential confounds or biases
3. Statistical issues (sample size, significance testing)
4. Reproducibility gaps (missing details needed to replicate)
5. Scalability or feasibility concerns

Provide specific, actionable improvement suggestions.
Rate the methodology maturity (L0-L5) and explain what's needed to reach the next level.

Output your review as structured Markdown.`

// Methodology is the outcome of the generate/review/refine loop. The
// output is prose markdown, not JSON, so there is no parse fallback.
type Methodology struct {
	Text   string
	Review string
}

type Methodologist struct {
	client *llm.Client
	model  string
}

func NewMethodologist(client *llm.Client, model string) *Methodologist {
	return &Methodologist{client: client, model: model}
}

// Design runs the methodology loop: generate, review, refine against
// the review.
func (m *Methodologist) Design(ctx context.Context, idea RefinedIdea, related []RelatedPaper) (Methodology, error) {
	initial, err := m.generate(ctx, idea, related)
	if err != nil {
		return Methodology{}, err
	}

	review, err := m.review(ctx, idea, initial)
	if err != nil {
		return Methodology{}, err
	}

	refined, err := m.refine(ctx, initial, review)
	if err != nil {
		return Methodology{}, err
	}
	return Methodology{Text: refined, Review: review}, nil
}

func (m *Methodologist) generate(ctx context.Context, idea RefinedIdea, related []RelatedPaper) (string, error) {
	ideaText := formatIdea(idea)

	var context string
	if len(related) > 0 {
		var b strings.Builder
		b.WriteString("\n\n## Related Work for Context\n")
		for i, p := range related {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- %s: %s...\n", p.Title, truncate(p.Abstract, 200))
		}
		context = b.String()
	}

	prompt := fmt.Sprintf(`Design a detailed experimental methodology for the following research idea.

## Research Idea
%s
%s

Provide a complete methodology that another researcher could follow to reproduce this work.
Include mathematical formulations where appropriate.`, ideaText, context)

	resp, err := m.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: MethodologySystemPrompt,
		UserPrompt:   prompt,
		Model:        m.model,
		Temperature:  0.4,
		MaxTokens:    4096,
	})
	if err != nil {
		return "", fmt.Errorf("methodology generation failed: %w", err)
	}
	return resp.Content, nil
}

func (m *Methodologist) review(ctx context.Context, idea RefinedIdea, methodology string) (string, error) {
	prompt := fmt.Sprintf(`Review the following experimental methodology critically.

## Research Context
%s: %s

## Proposed Methodology
%s

Identify all gaps, weaknesses, and missing elements. Provide specific suggestions for improvement.
Assess the maturity level (L0-L5) of this methodology.`, idea.Title, idea.Description, methodology)

	resp, err := m.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: MethodologyReviewerSystemPrompt,
		UserPrompt:   prompt,
		Model:        m.model,
		Temperature:  0.3,
		MaxTokens:    3072,
	})
	if err != nil {
		return "", fmt.Errorf("methodology review failed: %w", err)
	}
	return resp.Content, nil
}

func (m *Methodologist) refine(ctx context.Context, methodology, review string) (string, error) {
	prompt := fmt.Sprintf(`Refine the following methodology based on the reviewer's feedback.

## Original Methodology
%s

## Reviewer Feedback
%s

Produce an improved methodology that addresses all the reviewer's concerns.
Maintain the same structure but strengthen weak areas.`, methodology, review)

	resp, err := m.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: MethodologySystemPrompt,
		UserPrompt:   prompt,
		Model:        m.model,
		Temperature:  0.4,
		MaxTokens:    4096,
	})
	if err != nil {
		return "", fmt.Errorf("methodology refinement failed: %w", err)
	}
	return resp.Content, nil
}

func formatIdea(idea RefinedIdea) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\nKey Contribution: %s\n",
		idea.Title, idea.Description, idea.KeyContribution)
	if idea.MethodologySketch != "" {
		fmt.Fprintf(&b, "Methodology Sketch: %s\n", idea.MethodologySketch)
	}
	if len(idea.Metrics) > 0 {
		fmt.Fprintf(&b, "Target Metrics: %s\n", strings.Join(idea.Metrics, ", "))
	}
	if idea.MaturityTarget != "" {
		fmt.Fprintf(&b, "Maturity Target: %s\n", idea.MaturityTarget)
	}
	return b.String()
}
