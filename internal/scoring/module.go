// Package scoring provides the lead scoring domain module.
package scoring

import (
	"context"
	"errors"

	"lead_scoring_backend/internal/adapters/storage"
	"lead_scoring_backend/internal/events"
	apphttp "lead_scoring_backend/internal/http"
	"lead_scoring_backend/internal/scoring/artifacts"
	"lead_scoring_backend/internal/scoring/cluster"
	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
	"lead_scoring_backend/internal/scoring/handler"
	"lead_scoring_backend/internal/scoring/model"
	"lead_scoring_backend/internal/scoring/outcomes"
	"lead_scoring_backend/internal/scoring/ports"
	"lead_scoring_backend/internal/scoring/profile"
	"lead_scoring_backend/internal/scoring/repository"
	"lead_scoring_backend/internal/scoring/service"
	"lead_scoring_backend/platform/config"
	"lead_scoring_backend/platform/logger"
	"lead_scoring_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const reasonOutcomesRecorded = "outcomes recorded"

// Deps are the infrastructure handles the module can use.
// Pool, Redis and Objects are optional; each missing one is replaced by an
// in-process fallback or simply left out of the artifact tiers.
type Deps struct {
	Pool         *pgxpool.Pool
	Redis        redis.UniversalClient
	Objects      storage.ObjectStorage
	ObjectBucket string
	EventBus     events.Bus
	Validator    *validator.Validator
	Config       config.ScoringConfig
	Profile      profile.Profile
	Log          *logger.Logger
}

// fingerprintSettings are the profile values that change a trained model.
type fingerprintSettings struct {
	Imputation features.Imputation `json:"imputation"`
	Training   model.Params        `json:"training"`
}

// Module represents the scoring domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
	store   artifacts.Store
	retrain ports.RetrainScheduler
	log     *logger.Logger
}

// NewModule creates a new scoring module with all dependencies wired
func NewModule(deps Deps) (*Module, error) {
	if deps.Config == nil {
		return nil, errors.New("scoring: config is required")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}

	defaultKind, err := domain.ParseModelKind(deps.Config.GetDefaultModelKind())
	if err != nil {
		return nil, err
	}

	history := outcomeStore(deps, log)
	store := artifactStore(deps)

	svc := service.New(service.Deps{
		Outcomes:   history,
		Recorder:   history,
		Store:      store,
		Trainer:    model.NewTrainer(deps.Profile.Training),
		Encoder:    features.NewEncoder(deps.Profile.Imputation),
		Summarizer: cluster.NewSummarizer(deps.Profile.MaxClusters),
		EventBus:   deps.EventBus,
		Log:        log,
	}, service.Options{
		DefaultKind:     defaultKind,
		TrainingTimeout: deps.Config.GetTrainingTimeout(),
		MaxBatchSize:    deps.Config.GetMaxBatchSize(),
		Settings: fingerprintSettings{
			Imputation: deps.Profile.Imputation,
			Training:   deps.Profile.Training,
		},
	})

	val := deps.Validator
	if val == nil {
		val = validator.New()
	}

	m := &Module{
		handler: handler.New(svc, val),
		service: svc,
		store:   store,
		log:     log,
	}
	if deps.EventBus != nil {
		deps.EventBus.Subscribe(events.OutcomesRecorded{}.EventName(), events.HandlerFunc(m.onOutcomesRecorded))
		deps.EventBus.Subscribe(events.ModelTrained{}.EventName(), events.HandlerFunc(m.onModelActivity))
		deps.EventBus.Subscribe(events.ArtifactsInvalidated{}.EventName(), events.HandlerFunc(m.onModelActivity))
	}
	return m, nil
}

func outcomeStore(deps Deps, log *logger.Logger) ports.OutcomeStore {
	if deps.Pool != nil {
		return repository.NewOutcomesRepository(deps.Pool)
	}
	log.Warn("DATABASE_URL not configured; training on generated outcome history",
		"rows", deps.Profile.BootstrapRows)
	return outcomes.NewMemorySource(outcomes.Bootstrap(deps.Profile.BootstrapRows, deps.Profile.Training.Seed))
}

func artifactStore(deps Deps) artifacts.Store {
	ttl := deps.Config.GetArtifactTTL()
	tiers := []artifacts.Store{artifacts.NewMemoryStore(ttl)}
	if deps.Redis != nil {
		tiers = append(tiers, artifacts.NewRedisStore(deps.Redis, ttl))
	}
	if deps.Objects != nil && deps.ObjectBucket != "" {
		tiers = append(tiers, artifacts.NewObjectStore(deps.Objects, deps.ObjectBucket))
	}
	return artifacts.NewTiered(tiers...)
}

// onOutcomesRecorded drops artifacts trained on the old history and queues
// fresh trainings when a background queue is available.
func (m *Module) onOutcomesRecorded(ctx context.Context, _ events.Event) error {
	if err := m.service.InvalidateAll(ctx, reasonOutcomesRecorded); err != nil {
		return err
	}
	if m.retrain == nil {
		return nil
	}
	var errs []error
	for _, kind := range domain.SupportedModelKinds {
		if err := m.retrain.EnqueueRetrain(ctx, kind, reasonOutcomesRecorded); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// onModelActivity writes an audit line for artifact lifecycle events.
func (m *Module) onModelActivity(ctx context.Context, event events.Event) error {
	log := m.log.WithContext(ctx).With("event", event.EventName(), "occurred_at", event.OccurredAt())
	switch e := event.(type) {
	case events.ModelTrained:
		log.Debug("scoring_event", "artifact_id", e.ArtifactID.String(), "model_kind", e.ModelKind, "version", e.Version)
	case events.ArtifactsInvalidated:
		log.Debug("scoring_event", "model_kind", e.ModelKind, "reason", e.Reason, "removed", e.Removed)
	}
	return nil
}

// SetRetrainScheduler hands retrains to the background queue.
func (m *Module) SetRetrainScheduler(s ports.RetrainScheduler) {
	m.retrain = s
	m.handler.SetRetrainScheduler(s)
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "scoring"
}

// Service returns the service layer for external use
func (m *Module) Service() *service.Service {
	return m.service
}

// Store returns the artifact store the service writes to.
func (m *Module) Store() artifacts.Store {
	return m.store
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Paths the dashboard calls without a version prefix
	ctx.API.GET("/health", m.handler.Health)
	ctx.KeyedAPI.POST("/predict", m.handler.Predict)

	m.handler.RegisterRoutes(ctx.Protected.Group("/scoring"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
