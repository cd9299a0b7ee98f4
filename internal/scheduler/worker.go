package scheduler

import (
	"context"
	"fmt"
	"time"

	"lead_scoring_backend/internal/scoring/artifacts"
	"lead_scoring_backend/platform/apperr"
	"lead_scoring_backend/platform/config"
	"lead_scoring_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Retrainer is the part of the scoring service the worker drives.
type Retrainer interface {
	Retrain(ctx context.Context, kind, reason string) (*artifacts.Artifact, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	retrainer Retrainer
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, retrainer Retrainer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server:    server,
		mux:       asynq.NewServeMux(),
		retrainer: retrainer,
		log:       log,
	}
	w.mux.HandleFunc(TaskRetrainModel, w.handleRetrain)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleRetrain trains a fresh artifact. Failures that another attempt
// cannot fix skip the retry queue.
func (w *Worker) handleRetrain(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRetrainPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	start := time.Now()
	art, err := w.retrainer.Retrain(ctx, payload.ModelKind, payload.Reason)
	if err != nil {
		switch apperr.GetKind(err) {
		case apperr.KindUnsupportedModel, apperr.KindDegenerateTraining:
			w.log.Warn("retrain skipped", "model_kind", payload.ModelKind, "reason", payload.Reason, "error", err)
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	w.log.Info("retrain task done",
		"model_kind", payload.ModelKind,
		"reason", payload.Reason,
		"version", art.Version,
		"took_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
