package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/agents"
	"github.com/aixiv/backend/internal/lifecycle"
	"github.com/aixiv/backend/internal/metrics"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/pkg/logger"
)

// ProgressFunc receives a named pipeline step with step-specific data.
type ProgressFunc func(step string, data map[string]any)

// PipelineResult bundles everything the end-to-end pipeline produced.
type PipelineResult struct {
	Topic       string
	Authors     string
	PaperID     string
	Idea        agents.RefinedIdea
	Novelty     agents.NoveltyReport
	Methodology string
	Sections    map[string]string
	FullPaper   string
	Review      *ReviewOutcome
	Revision    *models.Revision
}

// RunFullPipeline runs the complete write-publish-review cycle for a
// topic: ideation, novelty check, methodology, composition, submission,
// full review, and a draft revision. The paper row is created only
// after composition succeeds, so a failure in the writing phase leaves
// no paper behind.
func (e *Engine) RunFullPipeline(ctx context.Context, topic, authors string, progress ProgressFunc) (*PipelineResult, error) {
	emit := func(step string, data map[string]any) {
		if progress != nil {
			progress(step, data)
		}
	}

	if authors == "" {
		authors = "AI Scientist"
	}
	result := &PipelineResult{Topic: topic, Authors: authors}
	start := time.Now()

	emit("idea_start", map[string]any{"message": "Generating research ideas (5 candidates, 2 critique rounds)..."})
	idea, err := e.adapters.Ideator.Ideate(ctx, topic)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, &StageError{Stage: "idea", Err: err}
	}
	result.Idea = idea.Value
	emit("idea_done", map[string]any{"idea": idea.Value, "fallback": idea.Fallback})

	ideaText := fmt.Sprintf("%s: %s", idea.Value.Title, idea.Value.Description)
	emit("novelty_start", map[string]any{"message": "Checking novelty against arXiv..."})
	novelty, err := e.adapters.Literature.CheckNovelty(ctx, ideaText)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, &StageError{Stage: "novelty", Err: err}
	}
	result.Novelty = novelty
	emit("novelty_done", map[string]any{
		"assessment":   novelty.Assessment,
		"papers_found": len(novelty.Papers),
	})

	related := novelty.Papers
	if len(related) > 10 {
		related = related[:10]
	}

	emit("method_start", map[string]any{"message": "Developing methodology..."})
	methodology, err := e.adapters.Methodologist.Design(ctx, idea.Value, related)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, &StageError{Stage: "methodology", Err: err}
	}
	result.Methodology = methodology.Text
	emit("method_done", map[string]any{"methodology": truncateStep(methodology.Text, 500)})

	emit("compose_start", map[string]any{"message": "Composing full paper (7 sections)..."})
	sections, err := e.adapters.Composer.Compose(ctx, idea.Value, methodology.Text, related)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, &StageError{Stage: "compose", Err: err}
	}
	title := idea.Value.Title
	if title == "" {
		title = "Untitled"
	}
	paperMD := agents.FormatMarkdown(title, authors, sections)
	result.Sections = sections
	result.FullPaper = paperMD
	emit("compose_done", map[string]any{"sections": sectionNames(sections), "length": len(paperMD)})

	emit("submit_start", map[string]any{"message": "Publishing on aiXiv (Tier 1)..."})
	paperID, err := e.submitPaper(title, authors, topic, idea.Value, sections, paperMD)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, &StageError{Stage: "submit", Err: err}
	}
	result.PaperID = paperID
	emit("submit_done", map[string]any{"paper_id": paperID})

	emit("review_start", map[string]any{"message": "Running full AI review (peer + red team + meta)..."})
	review, err := e.RunFullReview(ctx, paperID)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	result.Review = review
	emit("review_done", map[string]any{
		"status":         review.NewStatus,
		"maturity":       review.MaturityLevel,
		"recommendation": review.MetaReview.Value.FinalRecommendation,
	})

	emit("revise_start", map[string]any{"message": "Generating revision suggestions..."})
	revision, err := e.GenerateRevision(ctx, paperID)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	result.Revision = revision
	emit("revise_done", map[string]any{"revision_id": revision.ID, "version": revision.Version})

	metrics.PipelineRuns.WithLabelValues("success").Inc()
	metrics.StageDuration.WithLabelValues("full_pipeline").Observe(time.Since(start).Seconds())

	emit("pipeline_complete", map[string]any{
		"paper_id": paperID,
		"title":    title,
		"status":   review.NewStatus,
		"maturity": review.MaturityLevel,
	})

	logger.Info("Pipeline complete",
		zap.String("paper_id", paperID),
		zap.String("status", review.NewStatus),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// SubmitPaper creates a paper row in submitted status with a fresh
// paper id. Used both by the pipeline and direct API submissions.
func (e *Engine) SubmitPaper(p *models.Paper) (string, error) {
	paperID, err := e.db.GeneratePaperID()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	p.PaperID = paperID
	p.Status = string(lifecycle.StatusSubmitted)
	if p.MaturityLevel == "" {
		p.MaturityLevel = "L0"
	}
	if p.Version == 0 {
		p.Version = 1
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := e.db.InsertPaper(p); err != nil {
		return "", err
	}
	metrics.PapersSubmitted.Inc()

	if _, err := e.audit.Record(paperID, "paper_submitted", "system", "",
		"Title: "+p.Title, fmt.Sprintf("Paper %s submitted", paperID)); err != nil {
		return "", err
	}
	return paperID, nil
}

func (e *Engine) submitPaper(title, authors, topic string, idea agents.RefinedIdea,
	sections map[string]string, paperMD string) (string, error) {

	abstract := sections["abstract"]
	if abstract == "" {
		abstract = idea.Description
	}

	paper := &models.Paper{
		Title:       title,
		Authors:     authors,
		Affiliation: "NextGen PlatformAI C Corp",
		Abstract:    abstract,
		FullText:    paperMD,
	}
	paperID, err := e.SubmitPaper(paper)
	if err != nil {
		return "", err
	}

	if _, err := e.audit.Record(paperID, "full_pipeline_submit", "system", "",
		"Topic: "+topic, fmt.Sprintf("Paper %s created from full pipeline", paperID)); err != nil {
		return "", err
	}
	return paperID, nil
}

func sectionNames(sections map[string]string) []string {
	names := make([]string, 0, len(sections))
	for _, name := range agents.SectionOrder {
		if _, ok := sections[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func truncateStep(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
