package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"lead_scoring_backend/internal/bootstrap"
	"lead_scoring_backend/internal/events"
	"lead_scoring_backend/internal/scheduler"
	"lead_scoring_backend/internal/scoring"
	"lead_scoring_backend/platform/config"
	"lead_scoring_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if !cfg.IsSchedulerEnabled() {
		panic("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer infra.Close()

	// Worker-side scoring wiring (no HTTP handlers required).
	deps := infra.ScoringDeps(cfg, log)
	deps.EventBus = events.NewInMemoryBus(log)
	scoringModule, err := scoring.NewModule(deps)
	if err != nil {
		log.Error("failed to initialize scoring module", "error", err)
		panic("failed to initialize scoring module: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodicRetrain(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic retrain", "error", err)
		panic("failed to initialize periodic retrain: " + err.Error())
	}
	go periodic.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, scoringModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}
