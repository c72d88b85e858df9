package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/lifecycle"
	"github.com/aixiv/backend/internal/orchestrator"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/internal/storage/sqlite"
	"github.com/aixiv/backend/pkg/logger"
)

type ReviewHandler struct {
	engine *orchestrator.Engine
	db     *sqlite.Client
}

func NewReviewHandler(engine *orchestrator.Engine, db *sqlite.Client) *ReviewHandler {
	return &ReviewHandler{engine: engine, db: db}
}

func (h *ReviewHandler) RunReview(c *fiber.Ctx) error {
	paperID := c.Params("id")

	outcome, err := h.engine.RunFullReview(c.Context(), paperID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Paper not found",
		})
	}
	if errors.Is(err, lifecycle.ErrInvalidTransition) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		logger.Error("Review run failed", zap.String("paper_id", paperID), zap.Error(err))
		var stageErr *orchestrator.StageError
		if errors.As(err, &stageErr) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Review failed",
				"stage": stageErr.Stage,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Review failed",
		})
	}

	return c.JSON(fiber.Map{
		"paper_id":       paperID,
		"new_status":     outcome.NewStatus,
		"maturity_level": outcome.MaturityLevel,
		"peer_review": fiber.Map{
			"overall_score":  outcome.PeerReview.Value.OverallScore,
			"recommendation": outcome.PeerReview.Value.Recommendation,
			"summary":        outcome.PeerReview.Value.Summary,
			"fallback":       outcome.PeerReview.Fallback,
		},
		"redteam": fiber.Map{
			"overall_risk": outcome.RedTeam.Value.OverallRisk,
			"confidence":   outcome.RedTeam.Value.Confidence,
			"summary":      outcome.RedTeam.Value.Summary,
			"fallback":     outcome.RedTeam.Fallback,
		},
		"meta_review": fiber.Map{
			"final_recommendation": outcome.MetaReview.Value.FinalRecommendation,
			"confidence":           outcome.MetaReview.Value.Confidence,
			"summary_for_authors":  outcome.MetaReview.Value.SummaryForAuthors,
			"arena_eligible":       outcome.MetaReview.Value.ArenaEligible,
			"fallback":             outcome.MetaReview.Fallback,
		},
	})
}

func (h *ReviewHandler) GetReviews(c *fiber.Ctx) error {
	paperID := c.Params("id")

	reviews, err := h.db.GetReviews(paperID)
	if err != nil {
		logger.Error("Failed to get reviews", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get reviews",
		})
	}

	resp := fiber.Map{
		"paper_id": paperID,
		"reviews":  reviewsJSON(reviews),
	}

	if redteam, err := h.db.GetLatestRedTeamReport(paperID); err == nil {
		resp["redteam"] = fiber.Map{
			"overall_risk":     redteam.OverallRisk,
			"confidence":       redteam.Confidence,
			"findings":         redteam.FindingsJSON,
			"attack_scenarios": redteam.AttackScenarios,
			"summary":          redteam.Summary,
		}
	}
	if meta, err := h.db.GetLatestMetaReview(paperID); err == nil {
		resp["meta_review"] = fiber.Map{
			"final_recommendation":     meta.FinalRecommendation,
			"confidence":               meta.Confidence,
			"justification":            meta.Justification,
			"maturity_level":           meta.MaturityLevel,
			"required_changes":         meta.RequiredChangesJSON,
			"suggested_changes":        meta.SuggestedChangesJSON,
			"summary_for_authors":      meta.SummaryForAuthors,
			"arena_eligible":           meta.ArenaEligible,
			"arena_eligibility_reason": meta.ArenaEligibilityReason,
		}
	}

	return c.JSON(resp)
}

func (h *ReviewHandler) RunRailEvaluation(c *fiber.Ctx) error {
	paperID := c.Params("id")

	outcome, err := h.engine.RunRailEvaluation(c.Context(), paperID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Paper not found",
		})
	}
	if err != nil {
		logger.Error("Rail evaluation failed", zap.String("paper_id", paperID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Rail evaluation failed",
		})
	}

	scenarios := make([]fiber.Map, 0, len(outcome.Evaluation.Scenarios))
	for _, s := range outcome.Evaluation.Scenarios {
		scenarios = append(scenarios, fiber.Map{
			"scenario":   s.Scenario,
			"score":      s.Score,
			"assessment": s.Assessment,
			"gaps":       s.Gaps,
			"fallback":   s.Fallback,
		})
	}

	return c.JSON(fiber.Map{
		"paper_id":           paperID,
		"scenarios":          scenarios,
		"overall_robustness": outcome.OverallRobustness,
		"compliant":          outcome.Compliant,
		"summary":            outcome.Summary,
	})
}

func (h *ReviewHandler) GetRailResults(c *fiber.Ctx) error {
	paperID := c.Params("id")

	results, err := h.db.GetEvalResults(paperID)
	if err != nil {
		logger.Error("Failed to get eval results", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get eval results",
		})
	}

	out := make([]fiber.Map, 0, len(results))
	for _, r := range results {
		out = append(out, fiber.Map{
			"scenario":   r.Scenario,
			"score":      r.Score,
			"assessment": r.Assessment,
			"gaps":       r.GapsJSON,
			"created_at": r.CreatedAt.Unix(),
		})
	}

	resp := fiber.Map{
		"paper_id": paperID,
		"results":  out,
	}
	if summary, err := h.db.GetLatestRailSummary(paperID); err == nil {
		resp["overall_robustness"] = summary.OverallRobustness
		resp["compliant"] = summary.Compliant
		resp["summary"] = summary.Summary
	}

	return c.JSON(resp)
}

func (h *ReviewHandler) GenerateRevision(c *fiber.Ctx) error {
	paperID := c.Params("id")

	rev, err := h.engine.GenerateRevision(c.Context(), paperID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Paper or meta review not found",
		})
	}
	if err != nil {
		logger.Error("Revision generation failed", zap.String("paper_id", paperID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Revision generation failed",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"revision_id":     rev.ID,
		"paper_id":        rev.PaperID,
		"version":         rev.Version,
		"changes_summary": rev.ChangesSummary,
		"revision_letter": rev.RevisionLetter,
		"status":          rev.Status,
	})
}

func (h *ReviewHandler) ListRevisions(c *fiber.Ctx) error {
	paperID := c.Params("id")

	revisions, err := h.db.GetRevisions(paperID)
	if err != nil {
		logger.Error("Failed to list revisions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list revisions",
		})
	}

	out := make([]fiber.Map, 0, len(revisions))
	for _, r := range revisions {
		out = append(out, fiber.Map{
			"revision_id":     r.ID,
			"version":         r.Version,
			"changes_summary": r.ChangesSummary,
			"status":          r.Status,
			"created_at":      r.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"paper_id":  paperID,
		"revisions": out,
	})
}

func (h *ReviewHandler) ApplyRevision(c *fiber.Ctx) error {
	paperID := c.Params("id")
	revisionID, err := c.ParamsInt("revision_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid revision id",
		})
	}

	if err := h.engine.ApplyRevision(paperID, int64(revisionID)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Paper or revision not found",
			})
		}
		logger.Error("Failed to apply revision", zap.String("paper_id", paperID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to apply revision",
		})
	}

	return c.JSON(fiber.Map{
		"paper_id":    paperID,
		"revision_id": revisionID,
		"applied":     true,
	})
}

func (h *ReviewHandler) RunTargeting(c *fiber.Ctx) error {
	paperID := c.Params("id")

	result, err := h.engine.AssessMaturityTarget(c.Context(), paperID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Paper not found",
		})
	}
	if err != nil {
		logger.Error("Targeting failed", zap.String("paper_id", paperID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Targeting failed",
		})
	}

	return c.JSON(fiber.Map{
		"paper_id":            paperID,
		"current_level":       result.Value.CurrentLevel,
		"target_level":        result.Value.TargetLevel,
		"criteria_met":        result.Value.CriteriaMet,
		"criteria_gaps":       result.Value.CriteriaGaps,
		"recommended_actions": result.Value.RecommendedActions,
		"assessment":          result.Value.Assessment,
		"fallback":            result.Fallback,
	})
}

func reviewsJSON(reviews []models.Review) []fiber.Map {
	out := make([]fiber.Map, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, fiber.Map{
			"id":                r.ID,
			"overall_score":     r.OverallScore,
			"soundness":         r.Soundness,
			"novelty":           r.Novelty,
			"clarity":           r.Clarity,
			"significance":      r.Significance,
			"reproducibility":   r.Reproducibility,
			"summary":           r.Summary,
			"strengths":         r.Strengths,
			"weaknesses":        r.Weaknesses,
			"questions":         r.Questions,
			"recommendation":    r.Recommendation,
			"detailed_feedback": r.DetailedFeedback,
			"maturity_level":    r.MaturityLevel,
			"gate_analysis":     r.GateAnalysis,
			"created_at":        r.CreatedAt.Unix(),
		})
	}
	return out
}
