package scheduler

import (
	"context"
	"fmt"
	"time"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/platform/config"
	"lead_scoring_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const (
	defaultRetrainSchedule = "@every 6h"
	periodicReason         = "scheduled"
)

// PeriodicRetrain enqueues a retrain of every supported model kind on a
// cron schedule, so artifacts follow slowly changing outcome history even
// when no feedback arrives through the API.
type PeriodicRetrain struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
	entries   []string
}

func NewPeriodicRetrain(cfg config.SchedulerConfig, log *logger.Logger) (*PeriodicRetrain, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	cronspec := cfg.GetRetrainSchedule()
	if cronspec == "" {
		cronspec = defaultRetrainSchedule
	}

	p := &PeriodicRetrain{
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC}),
		log:       log,
	}

	queue := queueName(cfg)
	for _, kind := range domain.SupportedModelKinds {
		task, err := NewRetrainTask(RetrainPayload{ModelKind: string(kind), Reason: periodicReason})
		if err != nil {
			return nil, err
		}
		id, err := p.scheduler.Register(cronspec, task, asynq.Queue(queue), asynq.Unique(retrainUniqueWindow))
		if err != nil {
			return nil, fmt.Errorf("register retrain of %s with schedule %q: %w", kind, cronspec, err)
		}
		p.entries = append(p.entries, id)
		log.Info("periodic retrain registered", "model_kind", kind, "schedule", cronspec, "entry", id)
	}

	return p, nil
}

func (p *PeriodicRetrain) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic retrain scheduler failed to start", "error", err)
		return
	}

	<-ctx.Done()
	p.scheduler.Shutdown()
}
