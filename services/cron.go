package services

import (
	"time"

	"github.com/go-co-op/gocron"

	"admissions-chatbot-platform/internal/logger"
	"admissions-chatbot-platform/utils"
)

// KBWatcher periodically hashes the knowledge document and reports when it
// diverges from the document the engine last built from. The engine has no
// automatic cache invalidation; this watcher makes staleness explicit by
// handing divergence to the enqueue callback (typically an asynq rebuild).
type KBWatcher struct {
	engine    *ChatEngine
	kbPath    string
	scheduler *gocron.Scheduler
	enqueue   func(reason string) error
}

func NewKBWatcher(engine *ChatEngine, kbPath string, enqueue func(reason string) error) *KBWatcher {
	return &KBWatcher{
		engine:    engine,
		kbPath:    kbPath,
		scheduler: gocron.NewScheduler(time.UTC),
		enqueue:   enqueue,
	}
}

// Start schedules the staleness check every intervalMinutes. Runs async;
// call Stop on shutdown.
func (w *KBWatcher) Start(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return nil
	}

	_, err := w.scheduler.Every(intervalMinutes).Minutes().Do(w.check)
	if err != nil {
		return err
	}

	w.scheduler.StartAsync()
	logger.Info("Knowledge document watcher started", "interval_minutes", intervalMinutes)
	return nil
}

func (w *KBWatcher) Stop() {
	w.scheduler.Stop()
}

func (w *KBWatcher) check() {
	current, err := utils.FileSHA256(w.kbPath)
	if err != nil {
		logger.Warn("Could not hash knowledge document", "path", w.kbPath, "error", err)
		return
	}

	served := w.engine.DocHash()
	if served == "" || served == current {
		return
	}

	logger.Info("Knowledge document changed, requesting rebuild", "path", w.kbPath)
	if err := w.enqueue("knowledge document changed on disk"); err != nil {
		logger.Error("Failed to enqueue rebuild", "error", err)
	}
}
