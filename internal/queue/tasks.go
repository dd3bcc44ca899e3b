package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"admissions-chatbot-platform/internal/logger"
)

const TaskRebuildKB = "kb:rebuild"

type RebuildKBPayload struct {
	Reason string `json:"reason"`
}

// NewRebuildKBTask creates an index-rebuild task. Rebuilds are idempotent,
// so retries are safe.
func NewRebuildKBTask(reason string) (*asynq.Task, error) {
	payload, err := json.Marshal(RebuildKBPayload{Reason: reason})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskRebuildKB,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// Rebuilder is the engine capability the worker needs; satisfied by
// services.ChatEngine.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

type TaskProcessor struct {
	engine Rebuilder
}

func NewTaskProcessor(engine Rebuilder) *TaskProcessor {
	return &TaskProcessor{engine: engine}
}

func (p *TaskProcessor) HandleRebuildKB(ctx context.Context, t *asynq.Task) error {
	var payload RebuildKBPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Rebuilding knowledge index", "reason", payload.Reason)
	start := time.Now()

	if err := p.engine.Rebuild(ctx); err != nil {
		logger.Error("Index rebuild failed", "reason", payload.Reason, "error", err)
		return err
	}

	logger.Info("Index rebuild completed", "duration", time.Since(start).String())
	return nil
}
