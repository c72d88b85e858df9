// Package orchestrator sequences the review and writing stages over a
// paper's lifecycle. It is the only writer of paper status.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aixiv/backend/internal/agents"
	"github.com/aixiv/backend/internal/audit"
	"github.com/aixiv/backend/internal/lifecycle"
	"github.com/aixiv/backend/internal/metrics"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/internal/storage/sqlite"
	"github.com/aixiv/backend/pkg/logger"
	"github.com/aixiv/backend/pkg/utils"
)

// StageError identifies which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// The adapter interfaces the engine depends on. Production wiring uses
// the agents package; tests substitute stubs.
type ReviewerAdapter interface {
	Review(ctx context.Context, paper agents.PaperContext) (agents.Result[agents.PeerReview], error)
}

type RedTeamAdapter interface {
	Audit(ctx context.Context, paper agents.PaperContext) (agents.Result[agents.RedTeamReport], error)
}

type MetaReviewAdapter interface {
	Synthesize(ctx context.Context, paper agents.PaperContext, peerReviewRaw, redTeamRaw string) (agents.Result[agents.MetaReview], error)
}

type RevisionAdapter interface {
	Revise(ctx context.Context, paper agents.PaperContext, metaReviewRaw string) (agents.Result[agents.Revision], error)
}

type RailAdapter interface {
	Evaluate(ctx context.Context, paper agents.PaperContext) (agents.RailEvaluation, error)
}

type TargetingAdapter interface {
	Target(ctx context.Context, paper agents.PaperContext, currentLevel string) (agents.Result[agents.TargetingPlan], error)
}

type IdeationAdapter interface {
	Ideate(ctx context.Context, topic string) (agents.Result[agents.RefinedIdea], error)
}

type NoveltyAdapter interface {
	CheckNovelty(ctx context.Context, ideaText string) (agents.NoveltyReport, error)
}

type MethodologyAdapter interface {
	Design(ctx context.Context, idea agents.RefinedIdea, related []agents.RelatedPaper) (agents.Methodology, error)
}

type ComposerAdapter interface {
	Compose(ctx context.Context, idea agents.RefinedIdea, methodology string, related []agents.RelatedPaper) (map[string]string, error)
}

// Adapters bundles every stage implementation the engine drives.
type Adapters struct {
	Reviewer      ReviewerAdapter
	RedTeam       RedTeamAdapter
	MetaReviewer  MetaReviewAdapter
	Revisor       RevisionAdapter
	Rail          RailAdapter
	Targeter      TargetingAdapter
	Ideator       IdeationAdapter
	Literature    NoveltyAdapter
	Methodologist MethodologyAdapter
	Composer      ComposerAdapter
}

type Engine struct {
	db       *sqlite.Client
	audit    *audit.Recorder
	machine  *lifecycle.Machine
	adapters Adapters
	model    string
	locks    *paperLocks
}

func NewEngine(db *sqlite.Client, rec *audit.Recorder, adapters Adapters, model string) *Engine {
	return &Engine{
		db:       db,
		audit:    rec,
		machine:  lifecycle.NewMachine(db),
		adapters: adapters,
		model:    model,
		locks:    newPaperLocks(),
	}
}

// Transition exposes lifecycle transitions for callers outside the
// review flow, still guarded by the per-paper lock.
func (e *Engine) Transition(paperID string, newStatus lifecycle.Status) (lifecycle.Status, error) {
	unlock := e.locks.lock(paperID)
	defer unlock()
	status, err := e.machine.Transition(paperID, newStatus)
	if err == nil {
		metrics.StatusTransitions.WithLabelValues(string(newStatus)).Inc()
	}
	return status, err
}

// ReviewOutcome is the result of one full review run.
type ReviewOutcome struct {
	PeerReview    agents.Result[agents.PeerReview]
	RedTeam       agents.Result[agents.RedTeamReport]
	MetaReview    agents.Result[agents.MetaReview]
	NewStatus     string
	MaturityLevel string
}

// RunFullReview runs peer review and red team concurrently, then the
// meta-review over both raw outputs, and finally moves the paper to the
// status the recommendation maps to. Each stage persists its own row
// and decision record before the join, so a failing sibling never
// discards completed work.
func (e *Engine) RunFullReview(ctx context.Context, paperID string) (*ReviewOutcome, error) {
	unlock := e.locks.lock(paperID)
	defer unlock()

	start := time.Now()
	paper, err := e.db.GetPaper(paperID)
	if err != nil {
		return nil, err
	}

	if err := e.enterReview(paper); err != nil {
		return nil, err
	}

	pctx := agents.PaperContext{
		Title:    paper.Title,
		Abstract: paper.Abstract,
		FullText: paper.FullText,
	}

	var peer agents.Result[agents.PeerReview]
	var red agents.Result[agents.RedTeamReport]

	var g errgroup.Group
	g.Go(func() error {
		var err error
		peer, err = e.runPeerReview(ctx, paper, pctx)
		return err
	})
	g.Go(func() error {
		var err error
		red, err = e.runRedTeam(ctx, paper, pctx)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.ReviewRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	meta, err := e.runMetaReview(ctx, paper, pctx, peer.Raw, red.Raw)
	if err != nil {
		metrics.ReviewRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	newStatus := statusForRecommendation(meta.Value.FinalRecommendation)
	if err := e.db.UpdatePaperOutcome(paperID, meta.Value.MaturityLevel, newStatus); err != nil {
		return nil, &StageError{Stage: "outcome", Err: err}
	}
	metrics.StatusTransitions.WithLabelValues(newStatus).Inc()
	metrics.ReviewRuns.WithLabelValues("success").Inc()
	metrics.StageDuration.WithLabelValues("full_review").Observe(time.Since(start).Seconds())

	logger.Info("Full review complete",
		zap.String("paper_id", paperID),
		zap.String("recommendation", meta.Value.FinalRecommendation),
		zap.String("new_status", newStatus),
		zap.String("maturity", meta.Value.MaturityLevel))

	return &ReviewOutcome{
		PeerReview:    peer,
		RedTeam:       red,
		MetaReview:    meta,
		NewStatus:     newStatus,
		MaturityLevel: meta.Value.MaturityLevel,
	}, nil
}

// enterReview moves the paper into its reviewing status. Papers already
// under review or past it pass through unchanged, so a review can be
// safely re-invoked at any point in the lifecycle.
func (e *Engine) enterReview(paper *models.Paper) error {
	switch lifecycle.Status(paper.Status) {
	case lifecycle.StatusSubmitted:
		_, err := e.machine.Transition(paper.PaperID, lifecycle.StatusUnderReview)
		if err != nil {
			return err
		}
		metrics.StatusTransitions.WithLabelValues(string(lifecycle.StatusUnderReview)).Inc()
	case lifecycle.StatusRevision:
		_, err := e.machine.Transition(paper.PaperID, lifecycle.StatusReReview)
		if err != nil {
			return err
		}
		metrics.StatusTransitions.WithLabelValues(string(lifecycle.StatusReReview)).Inc()
	}
	return nil
}

func (e *Engine) runPeerReview(ctx context.Context, paper *models.Paper, pctx agents.PaperContext) (agents.Result[agents.PeerReview], error) {
	start := time.Now()
	result, err := e.adapters.Reviewer.Review(ctx, pctx)
	if err != nil {
		return result, &StageError{Stage: "peer_review", Err: err}
	}

	pr := result.Value
	review := &models.Review{
		PaperID:          paper.PaperID,
		ReviewerType:     "ai",
		ReviewLayer:      "full",
		OverallScore:     pr.OverallScore,
		Soundness:        pr.Soundness,
		Novelty:          pr.Novelty,
		Clarity:          pr.Clarity,
		Significance:     pr.Significance,
		Reproducibility:  pr.Reproducibility,
		Summary:          pr.Summary,
		Strengths:        pr.Strengths,
		Weaknesses:       pr.Weaknesses,
		Questions:        pr.Questions,
		Recommendation:   pr.Recommendation,
		DetailedFeedback: pr.DetailedFeedback,
		MaturityLevel:    pr.MaturityLevel,
		GateAnalysis:     pr.GateAnalysis,
		RawReview:        result.Raw,
		CreatedAt:        time.Now().UTC(),
	}
	if err := e.db.InsertReview(review); err != nil {
		return result, &StageError{Stage: "peer_review", Err: err}
	}

	if _, err := e.audit.Record(paper.PaperID, "peer_review", e.model, agents.ReviewerSystemPrompt,
		"Title: "+paper.Title, utils.Truncate(pr.Summary, 500)); err != nil {
		return result, &StageError{Stage: "peer_review", Err: err}
	}
	metrics.StageDuration.WithLabelValues("peer_review").Observe(time.Since(start).Seconds())
	return result, nil
}

func (e *Engine) runRedTeam(ctx context.Context, paper *models.Paper, pctx agents.PaperContext) (agents.Result[agents.RedTeamReport], error) {
	start := time.Now()
	result, err := e.adapters.RedTeam.Audit(ctx, pctx)
	if err != nil {
		return result, &StageError{Stage: "redteam", Err: err}
	}

	rt := result.Value
	report := &models.RedTeamReport{
		PaperID:         paper.PaperID,
		OverallRisk:     rt.OverallRisk,
		Confidence:      rt.Confidence,
		FindingsJSON:    rt.FindingsJSON(),
		AttackScenarios: rt.ScenariosJSON(),
		Summary:         rt.Summary,
		RawReport:       result.Raw,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.db.InsertRedTeamReport(report); err != nil {
		return result, &StageError{Stage: "redteam", Err: err}
	}

	if _, err := e.audit.Record(paper.PaperID, "redteam", e.model, agents.RedTeamSystemPrompt,
		"Title: "+paper.Title, utils.Truncate(rt.Summary, 500)); err != nil {
		return result, &StageError{Stage: "redteam", Err: err}
	}
	metrics.StageDuration.WithLabelValues("redteam").Observe(time.Since(start).Seconds())
	return result, nil
}

func (e *Engine) runMetaReview(ctx context.Context, paper *models.Paper, pctx agents.PaperContext, peerRaw, redRaw string) (agents.Result[agents.MetaReview], error) {
	start := time.Now()
	result, err := e.adapters.MetaReviewer.Synthesize(ctx, pctx, peerRaw, redRaw)
	if err != nil {
		return result, &StageError{Stage: "meta_review", Err: err}
	}

	mr := result.Value
	meta := &models.MetaReview{
		PaperID:                paper.PaperID,
		FinalRecommendation:    mr.FinalRecommendation,
		Confidence:             mr.Confidence,
		Justification:          mr.Justification,
		MaturityLevel:          mr.MaturityLevel,
		RequiredChangesJSON:    mr.RequiredChangesJSON(),
		SuggestedChangesJSON:   mr.SuggestedChangesJSON(),
		SummaryForAuthors:      mr.SummaryForAuthors,
		ArenaEligible:          mr.ArenaEligible,
		ArenaEligibilityReason: mr.ArenaEligibilityReason,
		RawReview:              result.Raw,
		CreatedAt:              time.Now().UTC(),
	}
	if err := e.db.InsertMetaReview(meta); err != nil {
		return result, &StageError{Stage: "meta_review", Err: err}
	}

	if _, err := e.audit.Record(paper.PaperID, "meta_review", e.model, agents.MetaReviewSystemPrompt,
		"Title: "+paper.Title, utils.Truncate(mr.FinalRecommendation, 500)); err != nil {
		return result, &StageError{Stage: "meta_review", Err: err}
	}
	metrics.StageDuration.WithLabelValues("meta_review").Observe(time.Since(start).Seconds())
	return result, nil
}

// statusForRecommendation maps a meta-review recommendation to the
// paper's next status. Anything that is not an outright accept or
// reject sends the paper back for revision.
func statusForRecommendation(rec string) string {
	switch rec {
	case "accept":
		return string(lifecycle.StatusAccepted)
	case "reject":
		return string(lifecycle.StatusRejected)
	default:
		return string(lifecycle.StatusRevision)
	}
}

// RailOutcome is the result of one rail evaluation run.
type RailOutcome struct {
	Evaluation        agents.RailEvaluation
	OverallRobustness int
	Compliant         bool
	Summary           string
}

// RunRailEvaluation scores the paper under all rail scenarios and
// persists one row per scenario plus the overall verdict. Compliance is
// recomputed from the stored scores, never taken from the model.
func (e *Engine) RunRailEvaluation(ctx context.Context, paperID string) (*RailOutcome, error) {
	unlock := e.locks.lock(paperID)
	defer unlock()

	start := time.Now()
	paper, err := e.db.GetPaper(paperID)
	if err != nil {
		return nil, err
	}

	eval, err := e.adapters.Rail.Evaluate(ctx, agents.PaperContext{
		Title:    paper.Title,
		Abstract: paper.Abstract,
		FullText: paper.FullText,
	})
	if err != nil {
		return nil, &StageError{Stage: "rail_evaluation", Err: err}
	}

	now := time.Now().UTC()
	for _, s := range eval.Scenarios {
		row := &models.EvalResult{
			PaperID:    paperID,
			Scenario:   s.Scenario,
			Score:      float64(s.Score),
			Assessment: s.Assessment,
			GapsJSON:   s.GapsJSON(),
			CreatedAt:  now,
		}
		if err := e.db.InsertEvalResult(row); err != nil {
			return nil, &StageError{Stage: "rail_evaluation", Err: err}
		}
	}

	compliant := eval.Compliant()
	if err := e.db.InsertRailSummary(&models.RailSummary{
		PaperID:           paperID,
		OverallRobustness: eval.OverallRobustness,
		Compliant:         compliant,
		Summary:           eval.Summary,
		CreatedAt:         now,
	}); err != nil {
		return nil, &StageError{Stage: "rail_evaluation", Err: err}
	}

	if _, err := e.audit.Record(paperID, "rail_evaluation", e.model, agents.RailEvalSystemPrompt,
		"Title: "+paper.Title, utils.Truncate(eval.Summary, 500)); err != nil {
		return nil, &StageError{Stage: "rail_evaluation", Err: err}
	}
	metrics.StageDuration.WithLabelValues("rail_evaluation").Observe(time.Since(start).Seconds())

	return &RailOutcome{
		Evaluation:        eval,
		OverallRobustness: eval.OverallRobustness,
		Compliant:         compliant,
		Summary:           eval.Summary,
	}, nil
}

// GenerateRevision drafts a revision against the latest meta-review and
// stores it with status draft. The paper text is not touched until the
// draft is applied.
func (e *Engine) GenerateRevision(ctx context.Context, paperID string) (*models.Revision, error) {
	unlock := e.locks.lock(paperID)
	defer unlock()

	paper, err := e.db.GetPaper(paperID)
	if err != nil {
		return nil, err
	}
	meta, err := e.db.GetLatestMetaReview(paperID)
	if err != nil {
		return nil, err
	}

	result, err := e.adapters.Revisor.Revise(ctx, agents.PaperContext{
		Title:    paper.Title,
		Abstract: paper.Abstract,
		FullText: paper.FullText,
	}, meta.RawReview)
	if err != nil {
		return nil, &StageError{Stage: "revision", Err: err}
	}

	rev := &models.Revision{
		PaperID:        paperID,
		Version:        paper.Version + 1,
		ChangesSummary: result.Value.ChangesSummary,
		RevisionLetter: result.Value.RevisionLetter,
		RevisedText:    result.Value.RevisedText,
		Status:         "draft",
		CreatedAt:      time.Now().UTC(),
	}
	id, err := e.db.InsertRevision(rev)
	if err != nil {
		return nil, &StageError{Stage: "revision", Err: err}
	}
	rev.ID = id

	if _, err := e.audit.Record(paperID, "revision", e.model, agents.RevisionSystemPrompt,
		"Title: "+paper.Title, utils.Truncate(result.Value.ChangesSummary, 500)); err != nil {
		return nil, &StageError{Stage: "revision", Err: err}
	}
	return rev, nil
}

// ApplyRevision swaps the draft's text into the paper and bumps the
// paper version.
func (e *Engine) ApplyRevision(paperID string, revisionID int64) error {
	unlock := e.locks.lock(paperID)
	defer unlock()

	if err := e.db.ApplyRevision(paperID, revisionID); err != nil {
		return err
	}
	if _, err := e.audit.Record(paperID, "revision_applied", "system", "",
		fmt.Sprintf("Revision %d", revisionID), "revision applied to paper text"); err != nil {
		return err
	}
	return nil
}

// AssessMaturityTarget runs the targeting analysis for the paper's
// current maturity level.
func (e *Engine) AssessMaturityTarget(ctx context.Context, paperID string) (*agents.Result[agents.TargetingPlan], error) {
	paper, err := e.db.GetPaper(paperID)
	if err != nil {
		return nil, err
	}

	result, err := e.adapters.Targeter.Target(ctx, agents.PaperContext{
		Title:    paper.Title,
		Abstract: paper.Abstract,
		FullText: paper.FullText,
	}, paper.MaturityLevel)
	if err != nil {
		return nil, &StageError{Stage: "targeting", Err: err}
	}

	if _, err := e.audit.Record(paperID, "targeting", e.model, agents.TargetingSystemPrompt,
		"Title: "+paper.Title, utils.Truncate(result.Value.Assessment, 500)); err != nil {
		return nil, &StageError{Stage: "targeting", Err: err}
	}
	return &result, nil
}
