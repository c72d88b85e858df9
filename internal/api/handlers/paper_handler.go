package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/audit"
	"github.com/aixiv/backend/internal/lifecycle"
	"github.com/aixiv/backend/internal/orchestrator"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/internal/storage/sqlite"
	"github.com/aixiv/backend/pkg/logger"
)

type PaperHandler struct {
	engine *orchestrator.Engine
	db     *sqlite.Client
	audit  *audit.Recorder
}

func NewPaperHandler(engine *orchestrator.Engine, db *sqlite.Client, rec *audit.Recorder) *PaperHandler {
	return &PaperHandler{engine: engine, db: db, audit: rec}
}

func (h *PaperHandler) SubmitPaper(c *fiber.Ctx) error {
	var req struct {
		Title       string `json:"title"`
		Authors     string `json:"authors"`
		Affiliation string `json:"affiliation"`
		Abstract    string `json:"abstract"`
		Keywords    string `json:"keywords"`
		Categories  string `json:"categories"`
		FullText    string `json:"full_text"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Title == "" || req.Abstract == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "title and abstract are required",
		})
	}

	paper := &models.Paper{
		Title:       req.Title,
		Authors:     req.Authors,
		Affiliation: req.Affiliation,
		Abstract:    req.Abstract,
		Keywords:    req.Keywords,
		Categories:  req.Categories,
		FullText:    req.FullText,
	}

	paperID, err := h.engine.SubmitPaper(paper)
	if err != nil {
		logger.Error("Failed to submit paper", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit paper",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"paper_id": paperID,
		"status":   paper.Status,
	})
}

func (h *PaperHandler) ListPapers(c *fiber.Ctx) error {
	status := c.Query("status")
	limit := c.QueryInt("limit", 100)

	papers, err := h.db.ListPapers(status, limit)
	if err != nil {
		logger.Error("Failed to list papers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list papers",
		})
	}

	return c.JSON(fiber.Map{
		"papers": paperSummaries(papers),
		"count":  len(papers),
	})
}

func (h *PaperHandler) GetPaper(c *fiber.Ctx) error {
	paperID := c.Params("id")

	paper, err := h.db.GetPaper(paperID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Paper not found",
		})
	}
	if err != nil {
		logger.Error("Failed to get paper", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get paper",
		})
	}

	return c.JSON(paperJSON(paper))
}

func (h *PaperHandler) TransitionPaper(c *fiber.Ctx) error {
	paperID := c.Params("id")

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	target := lifecycle.Status(req.Status)
	if !lifecycle.IsValid(target) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown status: " + req.Status,
		})
	}

	newStatus, err := h.engine.Transition(paperID, target)
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
		logger.Error("Failed to transition paper", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to transition paper",
		})
	}

	return c.JSON(fiber.Map{
		"paper_id": paperID,
		"status":   string(newStatus),
	})
}

func (h *PaperHandler) GetDecisions(c *fiber.Ctx) error {
	paperID := c.Params("id")

	decisions, err := h.audit.Decisions(paperID)
	if err != nil {
		logger.Error("Failed to read decisions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read decisions",
		})
	}

	return c.JSON(fiber.Map{
		"paper_id":  paperID,
		"decisions": decisions,
		"count":     len(decisions),
	})
}

func (h *PaperHandler) GetRecentDecisions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	decisions, err := h.audit.Recent(limit)
	if err != nil {
		logger.Error("Failed to read recent decisions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read decisions",
		})
	}

	return c.JSON(fiber.Map{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

func paperJSON(p *models.Paper) fiber.Map {
	return fiber.Map{
		"paper_id":       p.PaperID,
		"title":          p.Title,
		"authors":        p.Authors,
		"affiliation":    p.Affiliation,
		"abstract":       p.Abstract,
		"keywords":       p.Keywords,
		"categories":     p.Categories,
		"full_text":      p.FullText,
		"status":         p.Status,
		"maturity_level": p.MaturityLevel,
		"version":        p.Version,
		"created_at":     p.CreatedAt.Unix(),
		"updated_at":     p.UpdatedAt.Unix(),
	}
}

func paperSummaries(papers []models.Paper) []fiber.Map {
	out := make([]fiber.Map, 0, len(papers))
	for i := range papers {
		p := &papers[i]
		out = append(out, fiber.Map{
			"paper_id":       p.PaperID,
			"title":          p.Title,
			"authors":        p.Authors,
			"abstract":       p.Abstract,
			"status":         p.Status,
			"maturity_level": p.MaturityLevel,
			"version":        p.Version,
			"created_at":     p.CreatedAt.Unix(),
		})
	}
	return out
}
