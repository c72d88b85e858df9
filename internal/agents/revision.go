package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/pkg/logger"
)

// RevisionSystemPrompt drives the author-side revision stage.
const RevisionSystemPrompt = `You are an AI Scientist Revision agent — you act as the paper's author responding to reviewer feedback.

Given the paper and the meta-review, produce a revised manuscript that:
- Addresses every required change directly
- Incorporates suggested changes where they improve the work
- Never weakens honest reporting to please reviewers
- Preserves the paper's core contribution

## Output Format (JSON)
{
  "changes_summary": "bullet-style summary of what changed",
  "revision_letter": "point-by-point response to the reviewers",
  "revised_text": "the complete revised paper text in markdown"
}`

// Revision is the author response produced against a meta-review.
type Revision struct {
	ChangesSummary string `json:"changes_summary"`
	RevisionLetter string `json:"revision_letter"`
	RevisedText    string `json:"revised_text"`
}

type Revisor struct {
	client *llm.Client
	model  string
}

func NewRevisor(client *llm.Client, model string) *Revisor {
	return &Revisor{client: client, model: model}
}

// Revise rewrites the paper against the meta-review feedback. The raw
// meta-review is passed so required and suggested changes reach the
// model with their original phrasing.
func (r *Revisor) Revise(ctx context.Context, paper PaperContext, metaReviewRaw string) (Result[Revision], error) {
	prompt := fmt.Sprintf(`Revise the following paper in response to the meta-review.

## Title
%s

## Abstract
%s

## Current Paper Text
%s

## Meta-Review
%s

Output the revision as a JSON object following your output format specification.`,
		paper.Title, paper.Abstract,
		truncate(paper.FullText, 30000), truncate(metaReviewRaw, 8000))

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: RevisionSystemPrompt,
		UserPrompt:   prompt,
		Model:        r.model,
		Temperature:  0.4,
		MaxTokens:    8192,
	})
	if err != nil {
		return Result[Revision]{}, fmt.Errorf("revision failed: %w", err)
	}

	var rev Revision
	if !llm.ParseJSON(resp.Content, &rev) || rev.RevisedText == "" {
		logger.Warn("Revision response did not parse, using fallback", zap.String("title", paper.Title))
		return fallback(Revision{
			ChangesSummary: "revision output could not be parsed; original text retained",
			RevisionLetter: truncate(resp.Content, 2000),
			RevisedText:    paper.FullText,
		}, resp.Content), nil
	}
	return parsed(rev, resp.Content), nil
}
