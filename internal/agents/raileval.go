package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/pkg/logger"
)

// Rail scenario names, evaluated in this order.
const (
	ScenarioIdeal       = "ideal"
	ScenarioNoisy       = "noisy"
	ScenarioMismatch    = "mismatch"
	ScenarioAdversarial = "adversarial"
)

// RailScenarios lists the evaluation conditions every paper is scored
// against.
var RailScenarios = []string{ScenarioIdeal, ScenarioNoisy, ScenarioMismatch, ScenarioAdversarial}

// railComplianceThreshold is the minimum per-scenario score for a paper
// to count as rail compliant. Compliance is computed here, never taken
// from model output.
const railComplianceThreshold = 5

var scenarioDescriptions = map[string]string{
	ScenarioIdeal:       "Ideal conditions: assume the stated assumptions hold exactly. Does the method deliver what it claims?",
	ScenarioNoisy:       "Noisy conditions: realistic measurement noise, imperfect data, finite samples. Does the method degrade gracefully?",
	ScenarioMismatch:    "Model mismatch: the real system deviates from the assumed model or operator. Do the claims survive the mismatch?",
	ScenarioAdversarial: "Adversarial conditions: an adversary perturbs inputs or exploits assumptions. How robust are the guarantees?",
}

// RailEvalSystemPrompt drives per-scenario robustness scoring.
const RailEvalSystemPrompt = `You are an AI Scientist Rail Evaluator. You score how well a paper's claims hold up under one specific operating condition.

Score 1-10 where:
- 1-2: claims collapse entirely under this condition
- 3-4: major unaddressed failure modes
- 5-6: claims mostly hold with stated caveats
- 7-8: claims hold, condition is explicitly analyzed
- 9-10: condition is analyzed with evidence and the method is provably robust

## Output Format (JSON)
{
  "score": 1-10,
  "assessment": "paragraph assessing the paper under this condition",
  "gaps": ["specific unaddressed gaps under this condition"]
}`

// RailSummarySystemPrompt drives the cross-scenario synthesis.
const RailSummarySystemPrompt = `You are an AI Scientist Rail Evaluator. You have scored a paper under four operating conditions and now deliver the overall verdict.

Weigh all four conditions. A paper whose claims only survive ideal conditions is not robust.

## Output Format (JSON)
{
  "overall_robustness": 0-10,
  "summary": "Short overall assessment of how the paper's claims hold up across conditions"
}`

// ScenarioEval is the score for one rail scenario.
type ScenarioEval struct {
	Scenario   string
	Score      int
	Assessment string
	Gaps       []string
	Fallback   bool
	Raw        string
}

// GapsJSON serializes the gap list for storage.
func (s ScenarioEval) GapsJSON() string {
	b, err := json.Marshal(s.Gaps)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// RailEvaluation holds the scenario scores and the cross-scenario
// verdict for one paper.
type RailEvaluation struct {
	Scenarios         []ScenarioEval
	OverallRobustness int
	Summary           string
	SummaryFallback   bool
}

// Compliant reports whether every scenario scored at or above the
// compliance threshold. An empty evaluation is never compliant.
func (r RailEvaluation) Compliant() bool {
	if len(r.Scenarios) == 0 {
		return false
	}
	for _, s := range r.Scenarios {
		if s.Score < railComplianceThreshold {
			return false
		}
	}
	return true
}

type railWire struct {
	Score      int      `json:"score"`
	Assessment string   `json:"assessment"`
	Gaps       []string `json:"gaps"`
}

type railSummaryWire struct {
	OverallRobustness int    `json:"overall_robustness"`
	Summary           string `json:"summary"`
}

type RailEvaluator struct {
	client *llm.Client
	model  string
}

func NewRailEvaluator(client *llm.Client, model string) *RailEvaluator {
	return &RailEvaluator{client: client, model: model}
}

// Evaluate scores the paper under each rail scenario sequentially, then
// synthesizes the overall verdict. A completion error aborts the run; a
// parse failure falls back to a below-threshold score for that scenario
// only.
func (r *RailEvaluator) Evaluate(ctx context.Context, paper PaperContext) (RailEvaluation, error) {
	var eval RailEvaluation
	for _, scenario := range RailScenarios {
		result, err := r.evaluateScenario(ctx, paper, scenario)
		if err != nil {
			return RailEvaluation{}, err
		}
		eval.Scenarios = append(eval.Scenarios, result)
	}
	if err := r.synthesize(ctx, paper, &eval); err != nil {
		return RailEvaluation{}, err
	}
	return eval, nil
}

func (r *RailEvaluator) evaluateScenario(ctx context.Context, paper PaperContext, scenario string) (ScenarioEval, error) {
	prompt := fmt.Sprintf(`Evaluate the following paper under one operating condition.

## Condition: %s
%s

## Title
%s

## Abstract
%s
`, scenario, scenarioDescriptions[scenario], paper.Title, paper.Abstract)
	if paper.FullText != "" {
		prompt += fmt.Sprintf("\n## Full Paper Content\n%s\n", truncate(paper.FullText, 16000))
	}
	prompt += `
Output your score as a JSON object following your output format specification.`

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: RailEvalSystemPrompt,
		UserPrompt:   prompt,
		Model:        r.model,
		Temperature:  0.2,
		MaxTokens:    2048,
	})
	if err != nil {
		return ScenarioEval{}, fmt.Errorf("rail scenario %s failed: %w", scenario, err)
	}

	var wire railWire
	if !llm.ParseJSON(resp.Content, &wire) || wire.Score < 1 || wire.Score > 10 {
		logger.Warn("Rail scenario response did not parse, using fallback",
			zap.String("scenario", scenario), zap.String("title", paper.Title))
		return ScenarioEval{
			Scenario:   scenario,
			Score:      3,
			Assessment: truncate(resp.Content, 500),
			Fallback:   true,
			Raw:        resp.Content,
		}, nil
	}
	return ScenarioEval{
		Scenario:   scenario,
		Score:      wire.Score,
		Assessment: wire.Assessment,
		Gaps:       wire.Gaps,
		Raw:        resp.Content,
	}, nil
}

// synthesize turns the per-scenario assessments into the overall
// robustness score and summary. When the response does not parse, the
// score falls back to the scenario mean.
func (r *RailEvaluator) synthesize(ctx context.Context, paper PaperContext, eval *RailEvaluation) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Paper: %s\n\nPer-condition scores:\n", paper.Title)
	for _, s := range eval.Scenarios {
		fmt.Fprintf(&b, "\n### %s: %d/10\n%s\n", s.Scenario, s.Score, s.Assessment)
	}
	b.WriteString("\nDeliver the overall verdict as a JSON object following your output format specification.")

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: RailSummarySystemPrompt,
		UserPrompt:   b.String(),
		Model:        r.model,
		Temperature:  0.2,
		MaxTokens:    1024,
	})
	if err != nil {
		return fmt.Errorf("rail synthesis failed: %w", err)
	}

	var wire railSummaryWire
	if !llm.ParseJSON(resp.Content, &wire) || wire.OverallRobustness < 0 || wire.OverallRobustness > 10 || wire.Summary == "" {
		logger.Warn("Rail synthesis response did not parse, aggregating scenario scores",
			zap.String("title", paper.Title))
		eval.OverallRobustness = aggregateRobustness(eval.Scenarios)
		eval.Summary = truncate(resp.Content, 500)
		eval.SummaryFallback = true
		return nil
	}
	eval.OverallRobustness = wire.OverallRobustness
	eval.Summary = wire.Summary
	return nil
}

// aggregateRobustness is the rounded mean scenario score.
func aggregateRobustness(scenarios []ScenarioEval) int {
	if len(scenarios) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scenarios {
		sum += s.Score
	}
	return int(math.Round(float64(sum) / float64(len(scenarios))))
}
