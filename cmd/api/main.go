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

	"github.com/complyassist/backend/internal/api/handlers"
	"github.com/complyassist/backend/internal/cache/redis"
	"github.com/complyassist/backend/internal/conversation"
	"github.com/complyassist/backend/internal/embedding"
	"github.com/complyassist/backend/internal/gaps"
	"github.com/complyassist/backend/internal/ingestion"
	"github.com/complyassist/backend/internal/knowledge"
	"github.com/complyassist/backend/internal/llm"
	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/internal/middleware/ratelimit"
	"github.com/complyassist/backend/internal/middleware/security"
	"github.com/complyassist/backend/internal/middleware/validation"
	"github.com/complyassist/backend/internal/objectstore"
	"github.com/complyassist/backend/internal/retrieval"
	"github.com/complyassist/backend/internal/storage/sqlite"
	"github.com/complyassist/backend/internal/vector/milvus"
	"github.com/complyassist/backend/pkg/config"
	appLogger "github.com/complyassist/backend/pkg/logger"
	"github.com/complyassist/backend/pkg/tasks"
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

	appLogger.Info("Starting ComplyAssist API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(cfg.Milvus.Endpoint, cfg.Milvus.CollectionName, cfg.Milvus.VectorDim)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.CreateCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	objectStore, err := objectstore.New(cfg.ObjectStore)
	if err != nil {
		appLogger.Fatal("Failed to create object store client", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	embedder := embedding.New(llmClient, redisClient, cfg.Ingestion.MinEmbedLength)
	processor := ingestion.NewProcessor(sqliteClient, milvusClient, embedder, objectStore, cfg.Ingestion)

	classifier := knowledge.NewClassifier(cfg.Tiers)
	assembler := retrieval.NewAssembler(sqliteClient, milvusClient, llmClient, classifier, cfg.Retrieval)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	queue := tasks.NewClient(redisAddr, cfg.Redis.Password, cfg.Redis.DB)
	defer queue.Close()

	tracker := gaps.NewTracker(sqliteClient, queue, cfg.Gaps.FollowUpHours)
	manager := conversation.NewManager(sqliteClient, cfg.Conversation.HistoryWindow)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Organization-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(ratelimit.New(redisClient, ratelimit.Config{
		MaxRequestsPerWindow: 120,
		WindowDuration:       time.Minute,
		Logger:               appLogger.GetLogger(),
	}).Middleware())
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	documentHandler := handlers.NewDocumentHandler(sqliteClient, processor, queue)
	contextHandler := handlers.NewContextHandler(assembler)
	conversationHandler := handlers.NewConversationHandler(sqliteClient, assembler, llmClient, manager, tracker)
	gapsHandler := handlers.NewGapsHandler(sqliteClient, tracker)
	wsHandler := handlers.NewWebSocketHandler(sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/documents", documentHandler.RegisterDocument)
	api.Post("/documents/:id/process", documentHandler.ProcessDocument)
	api.Get("/documents/:id", documentHandler.GetDocument)

	api.Post("/context", contextHandler.AssembleContext)

	api.Post("/conversations", conversationHandler.Ask)
	api.Post("/conversations/turns", conversationHandler.AppendTurn)
	api.Get("/conversations", conversationHandler.History)

	api.Post("/gaps", gapsHandler.Evaluate)
	api.Get("/gaps/:id", gapsHandler.GetTicket)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/documents", websocket.New(wsHandler.HandleConnection))

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
