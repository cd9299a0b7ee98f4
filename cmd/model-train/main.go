// Command model-train trains fresh artifacts for the configured model kinds
// and writes them through every artifact tier, so the API starts warm.
package main

import (
	"context"
	"os"
	"strings"
	"time"

	"lead_scoring_backend/internal/bootstrap"
	"lead_scoring_backend/internal/scoring"
	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/platform/config"
	"lead_scoring_backend/platform/logger"
)

const trainReason = "model-train"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting model training")

	kinds, err := kindsFromEnv("MODEL_TRAIN_KINDS")
	if err != nil {
		log.Error("invalid MODEL_TRAIN_KINDS", "error", err)
		panic("invalid MODEL_TRAIN_KINDS: " + err.Error())
	}

	ctx := context.Background()
	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer infra.Close()

	scoringModule, err := scoring.NewModule(infra.ScoringDeps(cfg, log))
	if err != nil {
		log.Error("failed to initialize scoring module", "error", err)
		panic("failed to initialize scoring module: " + err.Error())
	}

	var trained int
	for _, kind := range kinds {
		start := time.Now()
		art, err := scoringModule.Service().Retrain(ctx, string(kind), trainReason)
		if err != nil {
			log.Error("failed to train model", "modelKind", kind, "error", err)
			continue
		}
		trained++
		log.Info("model stored",
			"modelKind", kind,
			"version", art.Version,
			"trainingRows", art.TrainingRows,
			"accuracy", art.Metrics.Accuracy,
			"f1Score", art.Metrics.F1Score,
			"took", time.Since(start).String(),
		)
	}

	log.Info("model training completed", "requested", len(kinds), "trained", trained)
	if trained < len(kinds) {
		infra.Close()
		os.Exit(1)
	}
}

// kindsFromEnv parses a comma separated list of model kinds.
// An unset or empty variable selects every supported kind.
func kindsFromEnv(key string) ([]domain.ModelKind, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return domain.SupportedModelKinds, nil
	}

	var kinds []domain.ModelKind
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		kind, err := domain.ParseModelKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
