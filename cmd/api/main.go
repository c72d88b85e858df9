package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/agents"
	"github.com/aixiv/backend/internal/api/handlers"
	"github.com/aixiv/backend/internal/arena"
	"github.com/aixiv/backend/internal/audit"
	cacheredis "github.com/aixiv/backend/internal/cache/redis"
	"github.com/aixiv/backend/internal/llm"
	"github.com/aixiv/backend/internal/metrics"
	"github.com/aixiv/backend/internal/middleware/ratelimit"
	"github.com/aixiv/backend/internal/middleware/security"
	"github.com/aixiv/backend/internal/orchestrator"
	"github.com/aixiv/backend/internal/storage/sqlite"
	"github.com/aixiv/backend/pkg/config"
	appLogger "github.com/aixiv/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting aiXiv API Server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	recorder, err := audit.NewRecorder(cfg.Audit.Dir)
	if err != nil {
		appLogger.Fatal("Failed to create audit recorder", zap.Error(err))
	}

	var cacheClient *cacheredis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = cacheredis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		TimeoutSec:  cfg.LLM.TimeoutSec,
	})

	adapters := orchestrator.Adapters{
		Reviewer:      agents.NewReviewer(llmClient, cfg.LLM.StrongModel),
		RedTeam:       agents.NewRedTeam(llmClient, cfg.LLM.StrongModel),
		MetaReviewer:  agents.NewMetaReviewer(llmClient, cfg.LLM.StrongModel),
		Revisor:       agents.NewRevisor(llmClient, cfg.LLM.Model),
		Rail:          agents.NewRailEvaluator(llmClient, cfg.LLM.Model),
		Targeter:      agents.NewTargeter(llmClient, cfg.LLM.Model),
		Ideator:       agents.NewIdeator(llmClient, cfg.LLM.Model),
		Literature:    agents.NewLiteratureSearcher(llmClient, cfg.LLM.Model),
		Methodologist: agents.NewMethodologist(llmClient, cfg.LLM.Model),
		Composer:      agents.NewComposer(llmClient, cfg.LLM.Model),
	}

	engine := orchestrator.NewEngine(sqliteClient, recorder, adapters, cfg.LLM.Model)

	var invalidator arena.Invalidator
	if cacheClient != nil {
		invalidator = cacheClient
	}
	arenaService := arena.NewService(sqliteClient, recorder, invalidator)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	paperHandler := handlers.NewPaperHandler(engine, sqliteClient, recorder)
	reviewHandler := handlers.NewReviewHandler(engine, sqliteClient)
	arenaHandler := handlers.NewArenaHandler(arenaService, sqliteClient, cacheClient)
	pipelineHandler := handlers.NewPipelineHandler(engine, sqliteClient, cacheClient,
		time.Duration(cfg.Pipeline.ProgressTimeoutSec)*time.Second)

	api := app.Group("/api/v1")

	api.Post("/papers", paperHandler.SubmitPaper)
	api.Get("/papers", paperHandler.ListPapers)
	api.Get("/papers/:id", paperHandler.GetPaper)
	api.Post("/papers/:id/transition", paperHandler.TransitionPaper)
	api.Get("/papers/:id/decisions", paperHandler.GetDecisions)
	api.Get("/decisions/recent", paperHandler.GetRecentDecisions)

	api.Post("/papers/:id/review", reviewHandler.RunReview)
	api.Get("/papers/:id/reviews", reviewHandler.GetReviews)
	api.Post("/papers/:id/rail-eval", reviewHandler.RunRailEvaluation)
	api.Get("/papers/:id/rail-eval", reviewHandler.GetRailResults)
	api.Post("/papers/:id/revisions", reviewHandler.GenerateRevision)
	api.Get("/papers/:id/revisions", reviewHandler.ListRevisions)
	api.Post("/papers/:id/revisions/:revision_id/apply", reviewHandler.ApplyRevision)
	api.Post("/papers/:id/targeting", reviewHandler.RunTargeting)

	api.Post("/papers/:id/promote", arenaHandler.Promote)
	api.Get("/arena/leaderboard", arenaHandler.Leaderboard)
	api.Get("/arena/stats", arenaHandler.ArenaStats)
	api.Get("/arena/papers/:id", arenaHandler.GetEntry)

	api.Post("/pipeline/run", pipelineHandler.RunPipeline)
	api.Get("/stats", pipelineHandler.GetStats)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/pipeline", websocket.New(pipelineHandler.HandleStream))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
