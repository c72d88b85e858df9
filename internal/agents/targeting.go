package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/pkg/logger"
)

// MaturityLevels orders the L0-L5 ladder from least to most mature.
var MaturityLevels = []string{"L0", "L1", "L2", "L3", "L4", "L5"}

var maturityCriteria = map[string]string{
	"L0": "Ill-Posed: objectives undefined, no metrics, vague claims",
	"L1": "Measurable: clear metrics and baselines established",
	"L2": "Repeatable: results reproducible by independent teams",
	"L3": "Automated: approach is systematic, scalable, automatable",
	"L4": "Industrialized: advances the field toward commodity solutions",
	"L5": "Solved: definitively resolves the problem, compute-bound only",
}

// TargetingSystemPrompt drives the maturity targeting stage: given the
// paper's current level, identify what the next level requires.
const TargetingSystemPrompt = `You are an AI Scientist Maturity Targeting agent. Given a paper and its current L0-L5 maturity level, you identify the concrete gaps between the paper and the NEXT maturity level.

## Output Format (JSON)
{
  "current_level": "L0-L5",
  "target_level": "L0-L5",
  "criteria_met": ["criteria of the target level the paper already satisfies"],
  "criteria_gaps": ["specific unmet criteria blocking the target level"],
  "recommended_actions": ["concrete steps to close each gap"],
  "assessment": "paragraph summarizing the path to the target level"
}

Be specific. Each gap must name an artifact, experiment, or measurement the paper lacks.`

// TargetingPlan is the gap analysis toward the next maturity level.
type TargetingPlan struct {
	CurrentLevel       string   `json:"current_level"`
	TargetLevel        string   `json:"target_level"`
	CriteriaMet        []string `json:"criteria_met"`
	CriteriaGaps       []string `json:"criteria_gaps"`
	RecommendedActions []string `json:"recommended_actions"`
	Assessment         string   `json:"assessment"`
}

// JSON serializes the plan for storage and API responses.
func (p TargetingPlan) JSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// NextMaturityLevel returns the level above the given one, or the same
// level when it is already L5 or unrecognized.
func NextMaturityLevel(level string) string {
	for i, l := range MaturityLevels {
		if l == level && i+1 < len(MaturityLevels) {
			return MaturityLevels[i+1]
		}
	}
	return level
}

type Targeter struct {
	client *llm.Client
	model  string
}

func NewTargeter(client *llm.Client, model string) *Targeter {
	return &Targeter{client: client, model: model}
}

func (t *Targeter) Target(ctx context.Context, paper PaperContext, currentLevel string) (Result[TargetingPlan], error) {
	if currentLevel == "" {
		currentLevel = "L0"
	}
	target := NextMaturityLevel(currentLevel)

	prompt := fmt.Sprintf(`Analyze the gap between this paper and its next maturity level.

## Current Level: %s
%s

## Target Level: %s
%s

## Title
%s

## Abstract
%s
`, currentLevel, maturityCriteria[currentLevel], target, maturityCriteria[target], paper.Title, paper.Abstract)
	if paper.FullText != "" {
		prompt += fmt.Sprintf("\n## Full Paper Content\n%s\n", truncate(paper.FullText, 16000))
	}
	prompt += `
Output your analysis as a JSON object following your output format specification.`

	resp, err := t.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: TargetingSystemPrompt,
		UserPrompt:   prompt,
		Model:        t.model,
		Temperature:  0.3,
		MaxTokens:    3072,
	})
	if err != nil {
		return Result[TargetingPlan]{}, fmt.Errorf("maturity targeting failed: %w", err)
	}

	var plan TargetingPlan
	if !llm.ParseJSON(resp.Content, &plan) {
		logger.Warn("Targeting response did not parse, using fallback", zap.String("title", paper.Title))
		return fallback(TargetingPlan{
			CurrentLevel: currentLevel,
			TargetLevel:  target,
			Assessment:   truncate(resp.Content, 500),
		}, resp.Content), nil
	}
	if plan.CurrentLevel == "" {
		plan.CurrentLevel = currentLevel
	}
	if plan.TargetLevel == "" {
		plan.TargetLevel = target
	}
	return parsed(plan, resp.Content), nil
}
