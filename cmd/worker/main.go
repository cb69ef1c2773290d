package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/cache/redis"
	"github.com/complyassist/backend/internal/embedding"
	"github.com/complyassist/backend/internal/gaps"
	"github.com/complyassist/backend/internal/ingestion"
	"github.com/complyassist/backend/internal/llm"
	"github.com/complyassist/backend/internal/metrics"
	"github.com/complyassist/backend/internal/notify"
	"github.com/complyassist/backend/internal/objectstore"
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

	appLogger.Info("Starting ComplyAssist worker")

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
	dispatcher := notify.NewDispatcher(cfg.Gaps.WebhookURL)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				tasks.QueueIngestion: 3,
				tasks.QueueDefault:   1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDocumentProcess, handleDocumentProcess(processor))
	mux.HandleFunc(tasks.TypeGapFollowUp, handleGapFollowUp(sqliteClient, dispatcher))

	if err := srv.Run(mux); err != nil {
		appLogger.Fatal("Worker stopped", zap.Error(err))
	}
}

func handleDocumentProcess(processor *ingestion.Processor) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload tasks.DocumentProcessPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid document process payload: %v: %w", err, asynq.SkipRetry)
		}

		appLogger.Info("Processing document task",
			zap.String("document_id", payload.DocumentID),
		)

		result, err := processor.ProcessDocument(ctx, payload.DocumentID, ingestion.Options{
			ForceReprocess:     payload.ForceReprocess,
			EmergencyChunking:  payload.EmergencyChunking,
			GovernanceDocument: payload.GovernanceDocument,
		})
		if err != nil {
			return err
		}

		appLogger.Info("Document task finished",
			zap.String("document_id", payload.DocumentID),
			zap.String("status", result.Status),
			zap.Int("chunks", result.TotalChunks),
		)
		return nil
	}
}

// handleGapFollowUp fires the follow-up notification for a due gap ticket.
func handleGapFollowUp(db *sqlite.Client, dispatcher *notify.Dispatcher) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload tasks.GapFollowUpPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid gap follow-up payload: %v: %w", err, asynq.SkipRetry)
		}

		return gaps.DeliverFollowUp(ctx, db, dispatcher, payload.TicketID)
	}
}
