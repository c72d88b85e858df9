package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/pkg/logger"
)

// ReviewerSystemPrompt drives the three-layer peer review: scored
// dimensions, L0-L5 maturity assessment, and domain gate analysis.
const ReviewerSystemPrompt = `You are an AI Scientist Reviewer — a rigorous, fair, and constructive peer reviewer.

You perform a THREE-LAYER evaluation.

## Layer 1: Standard Peer Review
Score each dimension 1-5:
- Soundness: Are claims supported by evidence?
- Novelty: Does this contribute new knowledge?
- Clarity: Is the writing clear and well-organized?
- Significance: How important is this work?
- Reproducibility: Could someone replicate this?

## Layer 2: L0-L5 Maturity Assessment
Determine which maturity level the paper achieves:
- L0 (Ill-Posed): Objectives undefined, no metrics, vague claims
- L1 (Measurable): Clear metrics and baselines established
- L2 (Repeatable): Results reproducible by independent teams
- L3 (Automated): Approach is systematic, scalable, automatable
- L4 (Industrialized): Advances field toward commodity solutions
- L5 (Solved): Definitively resolves the problem, compute-bound only

## Layer 3: Domain-Specific Gate Analysis
Assess domain-specific technical validity (for computational imaging,
apply recoverability / carrier budget / operator mismatch gates).

## Output Format (JSON)
{
  "layer1_peer_review": {
    "soundness": {"score": 1-5, "justification": "..."},
    "novelty": {"score": 1-5, "justification": "..."},
    "clarity": {"score": 1-5, "justification": "..."},
    "significance": {"score": 1-5, "justification": "..."},
    "reproducibility": {"score": 1-5, "justification": "..."},
    "strengths": ["..."],
    "weaknesses": ["..."],
    "questions": ["..."]
  },
  "layer2_maturity": {
    "current_level": "L0-L5",
    "level_justification": "..."
  },
  "layer3_domain_gates": {
    "applicable": true,
    "domain": "...",
    "gates": [{"name": "...", "status": "pass/fail/partial", "assessment": "..."}]
  },
  "overall_score": 1-10,
  "recommendation": "accept/minor_revision/major_revision/reject",
  "detailed_feedback": "paragraph of constructive feedback",
  "summary": "2-3 sentence summary"
}

Be rigorous but constructive.`

// PeerReview is the flattened review the orchestrator persists. Nested
// per-dimension justifications are collapsed to scores.
type PeerReview struct {
	Soundness        int
	Novelty          int
	Clarity          int
	Significance     int
	Reproducibility  int
	OverallScore     int
	Recommendation   string
	Summary          string
	Strengths        string
	Weaknesses       string
	Questions        string
	DetailedFeedback string
	MaturityLevel    string
	GateAnalysis     string
}

type scoredDimension struct {
	Score         int    `json:"score"`
	Justification string `json:"justification"`
}

type gate struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Assessment string `json:"assessment"`
}

type reviewWire struct {
	Layer1 struct {
		Soundness       scoredDimension `json:"soundness"`
		Novelty         scoredDimension `json:"novelty"`
		Clarity         scoredDimension `json:"clarity"`
		Significance    scoredDimension `json:"significance"`
		Reproducibility scoredDimension `json:"reproducibility"`
		Strengths       []string        `json:"strengths"`
		Weaknesses      []string        `json:"weaknesses"`
		Questions       []string        `json:"questions"`
	} `json:"layer1_peer_review"`
	Layer2 struct {
		CurrentLevel       string `json:"current_level"`
		LevelJustification string `json:"level_justification"`
	} `json:"layer2_maturity"`
	Layer3 struct {
		Applicable bool   `json:"applicable"`
		Domain     string `json:"domain"`
		Gates      []gate `json:"gates"`
	} `json:"layer3_domain_gates"`
	OverallScore     int    `json:"overall_score"`
	Recommendation   string `json:"recommendation"`
	DetailedFeedback string `json:"detailed_feedback"`
	Summary          string `json:"summary"`
}

type Reviewer struct {
	client *llm.Client
	model  string
}

func NewReviewer(client *llm.Client, model string) *Reviewer {
	return &Reviewer{client: client, model: model}
}

func (r *Reviewer) Review(ctx context.Context, paper PaperContext) (Result[PeerReview], error) {
	prompt := fmt.Sprintf(`Please review the following scientific paper submission using your three-layer evaluation framework.

## Title
%s

## Abstract
%s
`, paper.Title, paper.Abstract)
	if paper.FullText != "" {
		prompt += fmt.Sprintf("\n## Full Paper Content\n%s\n", paper.FullText)
	}
	prompt += `
Provide a comprehensive three-layer review and output it as a JSON object following your output format specification.`

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: ReviewerSystemPrompt,
		UserPrompt:   prompt,
		Model:        r.model,
		Temperature:  0.3,
		MaxTokens:    6144,
	})
	if err != nil {
		return Result[PeerReview]{}, fmt.Errorf("peer review failed: %w", err)
	}

	review, ok := parsePeerReview(resp.Content)
	if !ok {
		logger.Warn("Peer review response did not parse, using fallback", zap.String("title", paper.Title))
		return fallback(review, resp.Content), nil
	}
	return parsed(review, resp.Content), nil
}

func parsePeerReview(raw string) (PeerReview, bool) {
	var wire reviewWire
	if !llm.ParseJSON(raw, &wire) {
		return defaultPeerReview(raw), false
	}

	review := PeerReview{
		Soundness:        clampScore(wire.Layer1.Soundness.Score),
		Novelty:          clampScore(wire.Layer1.Novelty.Score),
		Clarity:          clampScore(wire.Layer1.Clarity.Score),
		Significance:     clampScore(wire.Layer1.Significance.Score),
		Reproducibility:  clampScore(wire.Layer1.Reproducibility.Score),
		OverallScore:     wire.OverallScore,
		Recommendation:   wire.Recommendation,
		Summary:          wire.Summary,
		Strengths:        strings.Join(wire.Layer1.Strengths, "\n"),
		Weaknesses:       strings.Join(wire.Layer1.Weaknesses, "\n"),
		Questions:        strings.Join(wire.Layer1.Questions, "\n"),
		DetailedFeedback: wire.DetailedFeedback,
		MaturityLevel:    wire.Layer2.CurrentLevel,
		GateAnalysis:     formatGates(wire.Layer3.Applicable, wire.Layer3.Domain, wire.Layer3.Gates),
	}

	if review.OverallScore < 1 || review.OverallScore > 10 {
		sum := review.Soundness + review.Novelty + review.Clarity + review.Significance + review.Reproducibility
		review.OverallScore = sum * 2 / 5
	}
	if review.Recommendation == "" {
		review.Recommendation = "minor_revision"
	}
	if review.MaturityLevel == "" {
		review.MaturityLevel = "L0"
	}

	return review, true
}

func defaultPeerReview(raw string) PeerReview {
	return PeerReview{
		Soundness:        3,
		Novelty:          3,
		Clarity:          3,
		Significance:     3,
		Reproducibility:  3,
		OverallScore:     6,
		Recommendation:   "minor_revision",
		Summary:          truncate(raw, 300),
		DetailedFeedback: raw,
		MaturityLevel:    "L1",
	}
}

func clampScore(s int) int {
	if s < 1 {
		return 3
	}
	if s > 5 {
		return 5
	}
	return s
}

func formatGates(applicable bool, domain string, gates []gate) string {
	if !applicable || len(gates) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "domain=%s", domain)
	for _, g := range gates {
		fmt.Fprintf(&b, "; %s=%s (%s)", g.Name, g.Status, g.Assessment)
	}
	return b.String()
}
