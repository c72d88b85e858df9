package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/arena"
	"github.com/aixiv/backend/internal/cache/redis"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/internal/storage/sqlite"
	"github.com/aixiv/backend/pkg/logger"
)

const arenaCacheTTL = 60 * time.Second

type ArenaHandler struct {
	arena *arena.Service
	db    *sqlite.Client
	cache *redis.Client
}

// NewArenaHandler wires the arena endpoints. cache may be nil, in which
// case every read goes to the database.
func NewArenaHandler(svc *arena.Service, db *sqlite.Client, cache *redis.Client) *ArenaHandler {
	return &ArenaHandler{arena: svc, db: db, cache: cache}
}

func (h *ArenaHandler) Promote(c *fiber.Ctx) error {
	paperID := c.Params("id")

	promotion, err := h.arena.Promote(paperID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Paper not found",
		})
	}
	if errors.Is(err, arena.ErrNotReviewed) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		logger.Error("Promotion failed", zap.String("paper_id", paperID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Promotion failed",
		})
	}

	return c.JSON(promotion)
}

func (h *ArenaHandler) Leaderboard(c *fiber.Ctx) error {
	category := c.Query("category")
	maturity := c.Query("maturity")
	limit := c.QueryInt("limit", 100)

	filterKey := fmt.Sprintf("%s|%s|%d", category, maturity, limit)

	var entries []models.ArenaPaper
	if h.cache != nil {
		hit, err := h.cache.GetLeaderboard(c.Context(), filterKey, &entries)
		if err != nil {
			logger.Warn("Leaderboard cache read failed", zap.Error(err))
		} else if hit {
			return c.JSON(fiber.Map{
				"leaderboard": leaderboardJSON(entries),
				"count":       len(entries),
				"cached":      true,
			})
		}
	}

	entries, err := h.arena.Leaderboard(category, maturity, limit)
	if err != nil {
		logger.Error("Failed to get leaderboard", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get leaderboard",
		})
	}

	if h.cache != nil {
		if err := h.cache.SetLeaderboard(c.Context(), filterKey, entries, arenaCacheTTL); err != nil {
			logger.Warn("Leaderboard cache write failed", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"leaderboard": leaderboardJSON(entries),
		"count":       len(entries),
	})
}

func (h *ArenaHandler) ArenaStats(c *fiber.Ctx) error {
	var stats models.ArenaStats
	if h.cache != nil {
		hit, err := h.cache.GetStats(c.Context(), "arena", &stats)
		if err != nil {
			logger.Warn("Arena stats cache read failed", zap.Error(err))
		} else if hit {
			return c.JSON(stats)
		}
	}

	fresh, err := h.arena.Stats()
	if err != nil {
		logger.Error("Failed to get arena stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get arena stats",
		})
	}

	if h.cache != nil {
		if err := h.cache.SetStats(c.Context(), "arena", fresh, arenaCacheTTL); err != nil {
			logger.Warn("Arena stats cache write failed", zap.Error(err))
		}
	}

	return c.JSON(fresh)
}

func (h *ArenaHandler) GetEntry(c *fiber.Ctx) error {
	paperID := c.Params("id")

	entry, err := h.arena.Entry(paperID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Paper not in arena",
		})
	}
	if err != nil {
		logger.Error("Failed to get arena entry", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get arena entry",
		})
	}

	return c.JSON(arenaEntryJSON(entry))
}

func leaderboardJSON(entries []models.ArenaPaper) []fiber.Map {
	out := make([]fiber.Map, 0, len(entries))
	for i := range entries {
		out = append(out, arenaEntryJSON(&entries[i]))
	}
	return out
}

func arenaEntryJSON(a *models.ArenaPaper) fiber.Map {
	return fiber.Map{
		"paper_id":       a.PaperID,
		"title":          a.Title,
		"authors":        a.Authors,
		"abstract":       a.Abstract,
		"categories":     a.Categories,
		"review_score":   a.ReviewScore,
		"maturity_level": a.MaturityLevel,
		"rail_compliant": a.RailCompliant,
		"review_count":   a.ReviewCount,
		"badges":         a.BadgesJSON,
		"promoted_at":    a.PromotedAt.Unix(),
	}
}
