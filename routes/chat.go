package routes

import (
	"net/http"
	"time"

	"admissions-chatbot-platform/internal/config"
	"admissions-chatbot-platform/internal/logger"
	"admissions-chatbot-platform/internal/queue"
	"admissions-chatbot-platform/middleware"
	"admissions-chatbot-platform/models"
	"admissions-chatbot-platform/services"
	"admissions-chatbot-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func SetupChatRoutes(router *gin.Engine, cfg *config.Config, engine *services.ChatEngine, asynqClient *asynq.Client) {
	chat := router.Group("/chat")

	chat.POST("/send", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		conversationID := req.ConversationID
		if conversationID == "" {
			conversationID = uuid.New().String()
		}

		start := time.Now()
		reply := engine.Answer(c.Request.Context(), req.Message)

		c.Set("semantic_mode", engine.SemanticMode())
		logger.Info("chat message answered",
			"conversation_id", conversationID,
			"request_id", middleware.GetRequestID(c),
			"semantic_mode", engine.SemanticMode(),
			"latency_ms", time.Since(start).Milliseconds())

		c.JSON(http.StatusOK, models.ChatResponse{
			Reply:          reply,
			ConversationID: conversationID,
			SemanticMode:   engine.SemanticMode(),
			Timestamp:      time.Now().UTC(),
		})
	})

	chat.POST("/sources", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		result := engine.AnswerWithSources(c.Request.Context(), req.Message, cfg.RetrieveTopK)
		c.Set("semantic_mode", result.SemanticMode)

		c.JSON(http.StatusOK, gin.H{
			"reply":         result.Response,
			"sources":       result.Sources,
			"semantic_mode": result.SemanticMode,
			"provider":      result.Provider,
		})
	})

	admin := router.Group("/admin")

	admin.POST("/knowledge/rebuild", func(c *gin.Context) {
		// With a queue the rebuild runs on the worker. Without Redis it
		// runs inline so the endpoint stays usable in minimal deployments.
		if asynqClient != nil {
			task, err := queue.NewRebuildKBTask("manual")
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to create rebuild task", nil)
				return
			}
			info, err := asynqClient.Enqueue(task)
			if err == nil {
				c.JSON(http.StatusAccepted, gin.H{
					"status":  "queued",
					"task_id": info.ID,
					"queue":   info.Queue,
				})
				return
			}
			logger.Warn("rebuild enqueue failed, running inline", "error", err)
		}

		if err := engine.Rebuild(c.Request.Context()); err != nil {
			utils.RespondWithInternalError(c, "Knowledge rebuild failed", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":        "rebuilt",
			"semantic_mode": engine.SemanticMode(),
			"doc_hash":      engine.DocHash(),
		})
	})

	admin.GET("/knowledge/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"semantic_mode": engine.SemanticMode(),
			"provider":      engine.ProviderName(),
			"doc_hash":      engine.DocHash(),
		})
	})
}
