package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/pkg/logger"
)

// IdeaMakerSystemPrompt drives initial idea generation.
const IdeaMakerSystemPrompt = `You are an Idea Maker — a creative scientific researcher who generates novel research ideas.

Given a research topic or data description, generate research ideas that are:
- Novel and non-obvious
- Technically feasible
- Impactful if successful
- Clearly scoped with measurable outcomes

Always output your ideas in this JSON format:
{
  "ideas": [
    {
      "title": "Paper title",
      "description": "5-sentence description of the idea",
      "key_contribution": "One sentence stating the main contribution",
      "metrics": ["list of measurable success metrics"],
      "feasibility": "high/medium/low"
    }
  ]
}`

// IdeaCriticSystemPrompt drives the critique rounds.
const IdeaCriticSystemPrompt = `You are an Idea Critic — a harsh but fair scientific evaluator.

Your job is to ruthlessly critique research ideas to find flaws, gaps, and weaknesses.
For each idea, assess:
1. Is this truly novel, or has it been done before?
2. Are the claims realistic and achievable?
3. Are the proposed metrics actually meaningful?
4. What are the biggest risks and failure modes?
5. Would this advance the field if successful?

Rate each idea 1-10 and explain your reasoning. Be specific and constructive.
Output JSON:
{
  "critiques": [
    {
      "title": "Paper title being critiqued",
      "score": 7,
      "strengths": ["list of strengths"],
      "weaknesses": ["list of weaknesses"],
      "risks": ["list of risks"],
      "improvement_suggestions": ["how to make it better"],
      "verdict": "keep/revise/discard"
    }
  ]
}`

// IdeaRefinerSystemPrompt drives the final refinement step.
const IdeaRefinerSystemPrompt = `You are an Idea Refiner — you take a research idea and its critique, then produce an improved version.

Given the original idea and the critic's feedback, produce a refined idea that:
- Addresses the weaknesses identified
- Incorporates the improvement suggestions
- Strengthens the novel contribution
- Sharpens the metrics and evaluation plan

Output JSON:
{
  "title": "Refined paper title",
  "description": "5-sentence refined description",
  "key_contribution": "One sentence main contribution",
  "methodology_sketch": "Brief methodology outline (3-5 sentences)",
  "metrics": ["refined measurable metrics"],
  "expected_results": "What results would demonstrate success",
  "maturity_target": "L0-L5 maturity level this work aims to achieve"
}`

// Idea is a candidate research idea circulating through the
// maker/critic loop.
type Idea struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	KeyContribution string   `json:"key_contribution"`
	Metrics         []string `json:"metrics"`
	Feasibility     string   `json:"feasibility"`
}

// RefinedIdea is the loop's final output, carrying the extra fields the
// refiner adds over a raw Idea.
type RefinedIdea struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	KeyContribution   string   `json:"key_contribution"`
	MethodologySketch string   `json:"methodology_sketch"`
	Metrics           []string `json:"metrics"`
	ExpectedResults   string   `json:"expected_results"`
	MaturityTarget    string   `json:"maturity_target"`
}

// IdeaCritique is one critic verdict over one idea.
type IdeaCritique struct {
	Title                  string   `json:"title"`
	Score                  int      `json:"score"`
	Strengths              []string `json:"strengths"`
	Weaknesses             []string `json:"weaknesses"`
	Risks                  []string `json:"risks"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
	Verdict                string   `json:"verdict"`
}

type ideasWire struct {
	Ideas []Idea `json:"ideas"`
}

type critiquesWire struct {
	Critiques []IdeaCritique `json:"critiques"`
}

type Ideator struct {
	client *llm.Client
	model  string
}

func NewIdeator(client *llm.Client, model string) *Ideator {
	return &Ideator{client: client, model: model}
}

// Ideate runs the full maker/critic loop: generate five ideas, critique
// them, keep the top two, critique again, keep the winner, refine it.
func (a *Ideator) Ideate(ctx context.Context, topic string) (Result[RefinedIdea], error) {
	ideas, raw, err := a.generate(ctx, topic, 5)
	if err != nil {
		return Result[RefinedIdea]{}, err
	}
	if len(ideas) == 0 {
		logger.Warn("Idea generation produced no parseable ideas", zap.String("topic", truncate(topic, 80)))
		return fallback(RefinedIdea{
			Title:       "Generation Failed",
			Description: truncate(raw, 1000),
		}, raw), nil
	}

	critiques, _, err := a.critique(ctx, topic, ideas)
	if err != nil {
		return Result[RefinedIdea]{}, err
	}
	top2 := selectTopIdeas(critiques, ideas, 2)

	critiques2, _, err := a.critique(ctx, topic, top2)
	if err != nil {
		return Result[RefinedIdea]{}, err
	}
	top1 := selectTopIdeas(critiques2, top2, 1)

	best := top2[0]
	if len(top1) > 0 {
		best = top1[0]
	}
	bestCritique, ok := matchCritique(critiques2, top2, best)
	if !ok {
		bestCritique, _ = matchCritique(critiques, ideas, best)
	}

	return a.refine(ctx, topic, best, bestCritique)
}

func (a *Ideator) generate(ctx context.Context, topic string, n int) ([]Idea, string, error) {
	prompt := fmt.Sprintf(`Generate %d novel research project ideas for the following topic/description:

%s

Provide diverse ideas spanning different approaches and methodologies. Each idea should be distinct and address a different aspect of the problem.`, n, topic)

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: IdeaMakerSystemPrompt,
		UserPrompt:   prompt,
		Model:        a.model,
		Temperature:  0.8,
		MaxTokens:    4096,
	})
	if err != nil {
		return nil, "", fmt.Errorf("idea generation failed: %w", err)
	}
	var wire ideasWire
	llm.ParseJSON(resp.Content, &wire)
	return wire.Ideas, resp.Content, nil
}

func (a *Ideator) critique(ctx context.Context, topic string, ideas []Idea) ([]IdeaCritique, string, error) {
	var b strings.Builder
	for i, idea := range ideas {
		fmt.Fprintf(&b, "\n### Idea %d: %s\n%s\nKey contribution: %s\nMetrics: %s\n",
			i+1, idea.Title, idea.Description, idea.KeyContribution, strings.Join(idea.Metrics, ", "))
	}

	prompt := fmt.Sprintf(`Critique the following research ideas for the topic: %s

%s

Be rigorous. Identify which ideas are truly novel, which are incremental, and which have fundamental flaws. Score each 1-10.`, topic, b.String())

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: IdeaCriticSystemPrompt,
		UserPrompt:   prompt,
		Model:        a.model,
		Temperature:  0.4,
		MaxTokens:    4096,
	})
	if err != nil {
		return nil, "", fmt.Errorf("idea critique failed: %w", err)
	}
	var wire critiquesWire
	llm.ParseJSON(resp.Content, &wire)
	return wire.Critiques, resp.Content, nil
}

func (a *Ideator) refine(ctx context.Context, topic string, idea Idea, critique IdeaCritique) (Result[RefinedIdea], error) {
	prompt := fmt.Sprintf(`Refine this research idea based on the critique.

Topic: %s

Original Idea:
Title: %s
Description: %s
Contribution: %s

Critique:
Score: %d
Strengths: %s
Weaknesses: %s
Suggestions: %s

Produce an improved version that addresses the weaknesses and incorporates the suggestions.`,
		topic, idea.Title, idea.Description, idea.KeyContribution,
		critique.Score,
		strings.Join(critique.Strengths, ", "),
		strings.Join(critique.Weaknesses, ", "),
		strings.Join(critique.ImprovementSuggestions, ", "))

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: IdeaRefinerSystemPrompt,
		UserPrompt:   prompt,
		Model:        a.model,
		Temperature:  0.5,
		MaxTokens:    4096,
	})
	if err != nil {
		return Result[RefinedIdea]{}, fmt.Errorf("idea refinement failed: %w", err)
	}

	var refined RefinedIdea
	if !llm.ParseJSON(resp.Content, &refined) || refined.Title == "" {
		return fallback(RefinedIdea{
			Title:           idea.Title,
			Description:     idea.Description,
			KeyContribution: idea.KeyContribution,
			Metrics:         idea.Metrics,
		}, resp.Content), nil
	}
	return parsed(refined, resp.Content), nil
}

// matchCritique pairs an idea with its critique, by echoed title when
// the critic preserved it and by position in the critiqued batch
// otherwise.
func matchCritique(critiques []IdeaCritique, ideas []Idea, idea Idea) (IdeaCritique, bool) {
	for _, c := range critiques {
		if c.Title != "" && c.Title == idea.Title {
			return c, true
		}
	}
	for i := range ideas {
		if ideas[i].Title != idea.Title {
			continue
		}
		if i < len(critiques) {
			return critiques[i], true
		}
		break
	}
	return IdeaCritique{}, false
}

// selectTopIdeas keeps the n highest-scored ideas whose verdict is not
// discard. When no critiques parsed, the first n ideas survive.
func selectTopIdeas(critiques []IdeaCritique, ideas []Idea, n int) []Idea {
	if len(critiques) == 0 {
		if len(ideas) < n {
			return ideas
		}
		return ideas[:n]
	}

	type scored struct {
		score int
		idx   int
	}
	var ranked []scored
	for i, c := range critiques {
		if c.Verdict == "discard" {
			continue
		}
		score := c.Score
		if score == 0 {
			score = 5
		}
		ranked = append(ranked, scored{score: score, idx: i})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var selected []Idea
	for _, r := range ranked {
		if len(selected) == n {
			break
		}
		if r.idx < len(ideas) {
			selected = append(selected, ideas[r.idx])
		}
	}
	if len(selected) == 0 {
		if len(ideas) < n {
			return ideas
		}
		return ideas[:n]
	}
	return selected
}
