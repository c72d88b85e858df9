package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/pkg/logger"
)

// MetaReviewSystemPrompt drives the synthesis stage that reconciles the
// peer review with the red team audit.
const MetaReviewSystemPrompt = `You are an AI Scientist Meta-Reviewer — a senior area chair who synthesizes the peer review and the red team audit into one final decision.

Weigh both inputs:
- The peer review measures scientific quality.
- The red team audit measures risk and robustness of claims.
- A high review score does not excuse critical red team findings.

## Output Format (JSON)
{
  "final_recommendation": "accept/minor_revision/major_revision/reject",
  "confidence": 0.0-1.0,
  "justification": "paragraph explaining the decision",
  "maturity_level": "L0-L5",
  "required_changes": ["..."],
  "suggested_changes": ["..."],
  "summary_for_authors": "constructive summary addressed to the authors",
  "arena_eligible": true/false,
  "arena_eligibility_reason": "..."
}

Be decisive. The recommendation drives the paper's lifecycle.`

// MetaReview is the final synthesized decision over both review stages.
type MetaReview struct {
	FinalRecommendation    string
	Confidence             float64
	Justification          string
	MaturityLevel          string
	RequiredChanges        []string
	SuggestedChanges       []string
	SummaryForAuthors      string
	ArenaEligible          bool
	ArenaEligibilityReason string
}

// RequiredChangesJSON serializes the required changes for storage.
func (m MetaReview) RequiredChangesJSON() string {
	b, err := json.Marshal(m.RequiredChanges)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// SuggestedChangesJSON serializes the suggested changes for storage.
func (m MetaReview) SuggestedChangesJSON() string {
	b, err := json.Marshal(m.SuggestedChanges)
	if err != nil {
		return "[]"
	}
	return string(b)
}

type metaReviewWire struct {
	FinalRecommendation    string   `json:"final_recommendation"`
	Confidence             float64  `json:"confidence"`
	Justification          string   `json:"justification"`
	MaturityLevel          string   `json:"maturity_level"`
	RequiredChanges        []string `json:"required_changes"`
	SuggestedChanges       []string `json:"suggested_changes"`
	SummaryForAuthors      string   `json:"summary_for_authors"`
	ArenaEligible          bool     `json:"arena_eligible"`
	ArenaEligibilityReason string   `json:"arena_eligibility_reason"`
}

type MetaReviewer struct {
	client *llm.Client
	model  string
}

func NewMetaReviewer(client *llm.Client, model string) *MetaReviewer {
	return &MetaReviewer{client: client, model: model}
}

// Synthesize reconciles the raw peer review and red team outputs into
// a final recommendation. The raw stage outputs are passed verbatim so
// the meta-reviewer sees per-dimension justifications, not just scores.
func (m *MetaReviewer) Synthesize(ctx context.Context, paper PaperContext, peerReviewRaw, redTeamRaw string) (Result[MetaReview], error) {
	prompt := fmt.Sprintf(`Synthesize a final decision for the following paper.

## Title
%s

## Abstract
%s

## Peer Review
%s

## Red Team Audit
%s

Output your decision as a JSON object following your output format specification.`,
		paper.Title, paper.Abstract,
		truncate(peerReviewRaw, 12000), truncate(redTeamRaw, 12000))

	resp, err := m.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: MetaReviewSystemPrompt,
		UserPrompt:   prompt,
		Model:        m.model,
		Temperature:  0.2,
		MaxTokens:    4096,
	})
	if err != nil {
		return Result[MetaReview]{}, fmt.Errorf("meta-review failed: %w", err)
	}

	var wire metaReviewWire
	if !llm.ParseJSON(resp.Content, &wire) {
		logger.Warn("Meta-review response did not parse, using fallback", zap.String("title", paper.Title))
		return fallback(MetaReview{
			FinalRecommendation:    "major_revision",
			Confidence:             0.3,
			Justification:          truncate(resp.Content, 500),
			MaturityLevel:          "L0",
			ArenaEligibilityReason: "meta-review output could not be parsed",
		}, resp.Content), nil
	}

	meta := MetaReview{
		FinalRecommendation:    wire.FinalRecommendation,
		Confidence:             wire.Confidence,
		Justification:          wire.Justification,
		MaturityLevel:          wire.MaturityLevel,
		RequiredChanges:        wire.RequiredChanges,
		SuggestedChanges:       wire.SuggestedChanges,
		SummaryForAuthors:      wire.SummaryForAuthors,
		ArenaEligible:          wire.ArenaEligible,
		ArenaEligibilityReason: wire.ArenaEligibilityReason,
	}
	if meta.FinalRecommendation == "" {
		meta.FinalRecommendation = "major_revision"
	}
	if meta.MaturityLevel == "" {
		meta.MaturityLevel = "L0"
	}
	if meta.Confidence <= 0 || meta.Confidence > 1 {
		meta.Confidence = 0.5
	}
	return parsed(meta, resp.Content), nil
}
