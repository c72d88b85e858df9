package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/cache/redis"
	"github.com/aixiv/backend/internal/lifecycle"
	"github.com/aixiv/backend/internal/metrics"
	"github.com/aixiv/backend/internal/orchestrator"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/internal/storage/sqlite"
	"github.com/aixiv/backend/pkg/logger"
)

type PipelineHandler struct {
	engine          *orchestrator.Engine
	db              *sqlite.Client
	cache           *redis.Client
	progressTimeout time.Duration
}

func NewPipelineHandler(engine *orchestrator.Engine, db *sqlite.Client, cache *redis.Client, progressTimeout time.Duration) *PipelineHandler {
	if progressTimeout <= 0 {
		progressTimeout = 10 * time.Minute
	}
	return &PipelineHandler{engine: engine, db: db, cache: cache, progressTimeout: progressTimeout}
}

// RunPipeline runs the full pipeline synchronously and returns the
// final summary. Long-running; the websocket endpoint is the streaming
// alternative.
func (h *PipelineHandler) RunPipeline(c *fiber.Ctx) error {
	var req struct {
		Topic   string `json:"topic"`
		Authors string `json:"authors"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Topic == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "topic is required",
		})
	}

	result, err := h.engine.RunFullPipeline(c.Context(), req.Topic, req.Authors, nil)
	if err != nil {
		logger.Error("Pipeline run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Pipeline failed",
		})
	}

	return c.JSON(fiber.Map{
		"paper_id":       result.PaperID,
		"title":          result.Idea.Title,
		"status":         result.Review.NewStatus,
		"maturity_level": result.Review.MaturityLevel,
		"novelty":        result.Novelty.Assessment.Decision,
		"paper_length":   len(result.FullPaper),
	})
}

type pipelineEvent struct {
	Step string         `json:"step"`
	Data map[string]any `json:"data"`
}

// HandleStream runs the pipeline for a topic received over the socket
// and streams each progress step back as JSON. The pipeline runs in its
// own goroutine; events flow through an ordered channel so writes never
// interleave. A stalled pipeline trips the progress timeout and the
// stream ends with an error event.
func (h *PipelineHandler) HandleStream(c *websocket.Conn) {
	streamID := uuid.NewString()
	logger.Info("Pipeline stream connected", zap.String("stream_id", streamID))
	metrics.ActivePipelineStreams.Inc()
	defer func() {
		metrics.ActivePipelineStreams.Dec()
		c.Close()
		logger.Info("Pipeline stream closed", zap.String("stream_id", streamID))
	}()

	var req struct {
		Topic   string `json:"topic"`
		Authors string `json:"authors"`
	}
	if err := c.ReadJSON(&req); err != nil {
		logger.Error("Failed to read pipeline request", zap.String("stream_id", streamID), zap.Error(err))
		return
	}
	if req.Topic == "" {
		c.WriteJSON(pipelineEvent{Step: "error", Data: map[string]any{"error": "topic is required"}})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan pipelineEvent, 64)
	done := make(chan error, 1)

	go func() {
		_, err := h.engine.RunFullPipeline(ctx, req.Topic, req.Authors, func(step string, data map[string]any) {
			select {
			case events <- pipelineEvent{Step: step, Data: data}:
			case <-ctx.Done():
			}
		})
		done <- err
		close(events)
	}()

	timer := time.NewTimer(h.progressTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if err := <-done; err != nil {
					logger.Error("Pipeline stream failed", zap.String("stream_id", streamID), zap.Error(err))
					c.WriteJSON(pipelineEvent{Step: "error", Data: map[string]any{"error": err.Error()}})
				}
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				logger.Warn("Pipeline stream write failed", zap.Error(err))
				return
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(h.progressTimeout)
		case <-timer.C:
			logger.Error("Pipeline stream timed out", zap.String("stream_id", streamID), zap.Duration("timeout", h.progressTimeout))
			c.WriteJSON(pipelineEvent{Step: "error", Data: map[string]any{"error": "pipeline timed out"}})
			return
		}
	}
}

// GetStats serves the dashboard counters, cached briefly when redis is
// available.
func (h *PipelineHandler) GetStats(c *fiber.Ctx) error {
	var cached statsPayload
	if h.cache != nil {
		hit, err := h.cache.GetStats(c.Context(), "pipeline", &cached)
		if err != nil {
			logger.Warn("Stats cache read failed", zap.Error(err))
		} else if hit {
			return c.JSON(cached)
		}
	}

	statuses := make([]string, 0, len(lifecycle.Statuses))
	for _, s := range lifecycle.Statuses {
		statuses = append(statuses, string(s))
	}

	stats, err := h.db.GetPipelineStats(statuses, []string{"L0", "L1", "L2", "L3", "L4", "L5"})
	if err != nil {
		logger.Error("Failed to get pipeline stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get stats",
		})
	}

	payload := statsJSON(stats)
	if h.cache != nil {
		if err := h.cache.SetStats(c.Context(), "pipeline", payload, arenaCacheTTL); err != nil {
			logger.Warn("Stats cache write failed", zap.Error(err))
		}
	}
	return c.JSON(payload)
}

type statsPayload struct {
	StatusCounts         map[string]int     `json:"status_counts"`
	Total                int                `json:"total"`
	MaturityDistribution map[string]int     `json:"maturity_distribution"`
	ArenaCount           int                `json:"arena_count"`
	ArenaAvgScore        float64            `json:"arena_avg_score"`
	TotalReviews         int                `json:"total_reviews"`
	ReviewScoreAvg       float64            `json:"review_score_avg"`
	ReviewScoreMin       int                `json:"review_score_min"`
	ReviewScoreMax       int                `json:"review_score_max"`
	ReviewDimensions     map[string]float64 `json:"review_dimensions"`
}

func statsJSON(s *models.PipelineStats) statsPayload {
	return statsPayload{
		StatusCounts:         s.StatusCounts,
		Total:                s.Total,
		MaturityDistribution: s.MaturityDistribution,
		ArenaCount:           s.ArenaCount,
		ArenaAvgScore:        s.ArenaAvgScore,
		TotalReviews:         s.TotalReviews,
		ReviewScoreAvg:       s.ReviewScoreAvg,
		ReviewScoreMin:       s.ReviewScoreMin,
		ReviewScoreMax:       s.ReviewScoreMax,
		ReviewDimensions:     s.ReviewDimensions,
	}
}
