package main

import (
	"context"
	"log"

	"admissions-chatbot-platform/internal/ai"
	"admissions-chatbot-platform/internal/config"
	"admissions-chatbot-platform/internal/logger"
	"admissions-chatbot-platform/internal/queue"
	"admissions-chatbot-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger.InitLogger(cfg)

	var embedder ai.Embedder
	if cfg.GeminiAPIKey != "" {
		ge, err := ai.NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel)
		if err != nil {
			logger.Warn("Embeddings unavailable", "error", err)
		} else {
			embedder = ge
			defer ge.Close()
		}
	}

	provider := ai.SelectProvider(cfg)

	// The worker holds its own engine so rebuilds run off the serving
	// path. The API process picks up the refreshed cache on next start
	// or through its own rebuild endpoint.
	engine := services.NewChatEngine(cfg, embedder, provider)

	server := asynq.NewServer(
		config.AsynqRedisOpt(cfg),
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(engine)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskRebuildKB, processor.HandleRebuildKB)

	logger.Info("Starting worker",
		"concurrency", 5,
		"redis", cfg.RedisURL)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker: ", err)
	}
}
