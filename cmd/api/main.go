package main

import (
	"context"
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

	"github.com/math-professor/backend/internal/agent"
	"github.com/math-professor/backend/internal/api/handlers"
	"github.com/math-professor/backend/internal/benchmark"
	"github.com/math-professor/backend/internal/cache/redis"
	"github.com/math-professor/backend/internal/feedback"
	"github.com/math-professor/backend/internal/generator"
	"github.com/math-professor/backend/internal/guardrails"
	"github.com/math-professor/backend/internal/ingestion"
	"github.com/math-professor/backend/internal/knowledge"
	"github.com/math-professor/backend/internal/knowledge/milvus"
	"github.com/math-professor/backend/internal/llm"
	"github.com/math-professor/backend/internal/metrics"
	"github.com/math-professor/backend/internal/middleware/ratelimit"
	"github.com/math-professor/backend/internal/middleware/security"
	"github.com/math-professor/backend/internal/middleware/validation"
	"github.com/math-professor/backend/internal/router"
	"github.com/math-professor/backend/internal/search/web"
	"github.com/math-professor/backend/internal/storage/sqlite"
	"github.com/math-professor/backend/pkg/config"
	appLogger "github.com/math-professor/backend/pkg/logger"
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

	appLogger.Info("Starting Math Professor Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		context.Background(),
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
		time.Duration(cfg.Milvus.TimeoutSec)*time.Second,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	// Redis is optional. Without it the pipeline just runs every query cold.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Feedback.AnswerCacheTTLMin)*time.Minute,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without answer cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		GuardrailModel: cfg.LLM.GuardrailModel,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		TimeoutSec:     cfg.LLM.TimeoutSec,
	})

	filter := guardrails.New(llmClient, guardrails.Config{
		Enabled:        cfg.Guardrail.Enabled,
		MinQuestionLen: cfg.Guardrail.MinQuestionLen,
		MaxQuestionLen: cfg.Guardrail.MaxQuestionLen,
		Logger:         appLogger.GetLogger(),
	})

	var embeddingCache knowledge.EmbeddingCache
	if redisClient != nil {
		embeddingCache = redisClient
	}
	knowledgeStore := knowledge.NewStore(milvusClient, llmClient, embeddingCache, appLogger.GetLogger())

	webClient := web.NewClient(web.Config{
		APIKey:         cfg.Search.APIKey,
		AllowedDomains: cfg.Search.AllowedDomains,
		TimeoutSec:     cfg.Search.TimeoutSec,
		ScrapeContent:  cfg.Search.ScrapeContent,
		Logger:         appLogger.GetLogger(),
	})

	queryRouter := router.New(
		knowledgeStore,
		webClient,
		cfg.Router.TopK,
		cfg.Search.MaxResults,
		cfg.Router.SimilarityThreshold,
		appLogger.GetLogger(),
	)

	gen := generator.New(llmClient, cfg.LLM.MaxTokens, cfg.LLM.Temperature, appLogger.GetLogger())

	responseCache := feedback.NewResponseCache(cfg.Feedback.ResponseCacheSize)

	mathAgent := agent.New(filter, queryRouter, gen, responseCache, appLogger.GetLogger()).
		WithHistory(sqliteClient)
	if redisClient != nil {
		mathAgent = mathAgent.WithAnswerCache(redisClient)
	}

	feedbackStore, err := feedback.NewStore(sqliteClient, responseCache, appLogger.GetLogger())
	if err != nil {
		appLogger.Fatal("Failed to initialize feedback store", zap.Error(err))
	}
	refiner := feedback.NewRefiner(llmClient, cfg.LLM.MaxTokens, appLogger.GetLogger())
	feedbackService := feedback.NewService(feedbackStore, responseCache, refiner, sqliteClient, appLogger.GetLogger())

	processor := ingestion.NewProcessor(llmClient, milvusClient, sqliteClient, appLogger.GetLogger())
	benchmarkRunner := benchmark.NewRunner(mathAgent, llmClient, appLogger.GetLogger())

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
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	rateLimiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	queryHandler := handlers.NewQueryHandler(mathAgent)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackService)
	knowledgeHandler := handlers.NewKnowledgeHandler(processor, benchmarkRunner)
	wsHandler := handlers.NewWebSocketHandler(mathAgent)

	api := app.Group("/api/v1")
	api.Use(rateLimiter.Middleware())
	api.Use(validation.Middleware(validation.Config{
		MaxQuestionLength: cfg.Guardrail.MaxQuestionLen,
		MaxKnowledgeSize:  cfg.Server.BodyLimit,
		Logger:            appLogger.GetLogger(),
	}))

	api.Post("/query", queryHandler.HandleQuery)
	api.Post("/feedback", feedbackHandler.HandleSubmit)
	api.Get("/statistics", feedbackHandler.HandleStatistics)
	api.Post("/knowledge/records", knowledgeHandler.HandleIngest)
	api.Post("/benchmark", knowledgeHandler.HandleBenchmark)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/query", websocket.New(wsHandler.HandleConnection))

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
