package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/pkg/logger"
)

// RedTeamSystemPrompt drives the adversarial audit stage.
const RedTeamSystemPrompt = `You are an AI Scientist Red Team agent — an adversarial auditor of scientific claims.

Your job is to attack the paper, not to help it. Probe for:
- Unsupported or overstated claims
- Statistical errors and p-hacking patterns
- Missing baselines or unfair comparisons
- Reproducibility blockers (missing code, data, hyperparameters)
- Safety, ethics, and dual-use concerns
- Ways a motivated actor could misuse or game the result

## Output Format (JSON)
{
  "findings": [
    {"category": "...", "severity": "low/medium/high/critical", "description": "...", "evidence": "..."}
  ],
  "attack_scenarios": ["..."],
  "overall_risk": "low/medium/high/critical",
  "confidence": 0.0-1.0,
  "summary": "2-3 sentence risk summary"
}

Be thorough and skeptical. A clean report must be earned.`

// RedTeamFinding is a single attack finding.
type RedTeamFinding struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Evidence    string `json:"evidence"`
}

// RedTeamReport is the structured outcome of the adversarial audit.
type RedTeamReport struct {
	OverallRisk     string
	Confidence      float64
	Findings        []RedTeamFinding
	AttackScenarios []string
	Summary         string
}

// FindingsJSON serializes the findings list for storage.
func (r RedTeamReport) FindingsJSON() string {
	b, err := json.Marshal(r.Findings)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ScenariosJSON serializes the attack scenarios for storage.
func (r RedTeamReport) ScenariosJSON() string {
	b, err := json.Marshal(r.AttackScenarios)
	if err != nil {
		return "[]"
	}
	return string(b)
}

type redTeamWire struct {
	Findings        []RedTeamFinding `json:"findings"`
	AttackScenarios []string         `json:"attack_scenarios"`
	OverallRisk     string           `json:"overall_risk"`
	Confidence      float64          `json:"confidence"`
	Summary         string           `json:"summary"`
}

type RedTeam struct {
	client *llm.Client
	model  string
}

func NewRedTeam(client *llm.Client, model string) *RedTeam {
	return &RedTeam{client: client, model: model}
}

func (r *RedTeam) Audit(ctx context.Context, paper PaperContext) (Result[RedTeamReport], error) {
	prompt := fmt.Sprintf(`Attack the following paper submission. Find every weakness a hostile reviewer or a bad actor would find.

## Title
%s

## Abstract
%s
`, paper.Title, paper.Abstract)
	if paper.FullText != "" {
		prompt += fmt.Sprintf("\n## Full Paper Content\n%s\n", truncate(paper.FullText, 20000))
	}
	prompt += `
Output your audit as a JSON object following your output format specification.`

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: RedTeamSystemPrompt,
		UserPrompt:   prompt,
		Model:        r.model,
		Temperature:  0.5,
		MaxTokens:    4096,
	})
	if err != nil {
		return Result[RedTeamReport]{}, fmt.Errorf("red team audit failed: %w", err)
	}

	var wire redTeamWire
	if !llm.ParseJSON(resp.Content, &wire) {
		logger.Warn("Red team response did not parse, using fallback", zap.String("title", paper.Title))
		return fallback(RedTeamReport{
			OverallRisk: "medium",
			Confidence:  0.3,
			Summary:     truncate(resp.Content, 300),
		}, resp.Content), nil
	}

	report := RedTeamReport{
		OverallRisk:     wire.OverallRisk,
		Confidence:      wire.Confidence,
		Findings:        wire.Findings,
		AttackScenarios: wire.AttackScenarios,
		Summary:         wire.Summary,
	}
	if report.OverallRisk == "" {
		report.OverallRisk = "medium"
	}
	if report.Confidence <= 0 || report.Confidence > 1 {
		report.Confidence = 0.5
	}
	return parsed(report, resp.Content), nil
}
