package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admissions-chatbot-platform/internal/ai"
	"admissions-chatbot-platform/internal/config"
	"admissions-chatbot-platform/internal/logger"
	"admissions-chatbot-platform/internal/queue"
	"admissions-chatbot-platform/internal/telemetry"
	"admissions-chatbot-platform/middleware"
	"admissions-chatbot-platform/routes"
	"admissions-chatbot-platform/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("admissions-chatbot-platform", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	// Redis backs rate limiting and the rebuild queue. Both degrade
	// gracefully when it is not reachable.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, rate limiting and task queue disabled", "error", err)
		rdb = nil
	}

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
	engine := services.NewChatEngine(cfg, embedder, provider)
	if metrics != nil {
		engine.SetMetrics(metrics)
	}

	var asynqClient *asynq.Client
	if rdb != nil {
		asynqClient = asynq.NewClient(config.AsynqRedisOpt(cfg))
		defer asynqClient.Close()
	}

	// Periodic staleness check re-queues an index rebuild when the
	// knowledge file changes on disk.
	if cfg.KBWatchMinutes > 0 {
		watcher := services.NewKBWatcher(engine, cfg.KnowledgePath, func(reason string) error {
			if metrics != nil {
				metrics.RecordRebuild(reason)
			}
			if asynqClient != nil {
				task, err := queue.NewRebuildKBTask(reason)
				if err != nil {
					return err
				}
				_, err = asynqClient.Enqueue(task)
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			return engine.Rebuild(ctx)
		})
		if err := watcher.Start(cfg.KBWatchMinutes); err != nil {
			logger.Warn("Knowledge watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestSizeLimit(64 * 1024))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "healthy",
			"semantic_mode": engine.SemanticMode(),
			"timestamp":     time.Now().UTC(),
		})
	})

	routes.SetupChatRoutes(router, cfg, engine, asynqClient)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited")
}
