// Package service composes encoding, training, inference and clustering
// into the scoring pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"lead_scoring_backend/internal/events"
	"lead_scoring_backend/internal/scoring/artifacts"
	"lead_scoring_backend/internal/scoring/cluster"
	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
	"lead_scoring_backend/internal/scoring/model"
	"lead_scoring_backend/internal/scoring/ports"
	"lead_scoring_backend/platform/apperr"
	"lead_scoring_backend/platform/logger"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Trainer fits a classifier on labelled vectors.
type Trainer interface {
	Train(ctx context.Context, kind domain.ModelKind, vectors []domain.FeatureVector, labels []bool) (*model.TrainResult, error)
}

// Options are the pipeline settings.
type Options struct {
	DefaultKind     domain.ModelKind
	TrainingTimeout time.Duration
	MaxBatchSize    int
	// Settings is folded into every training fingerprint, so changing
	// hyperparameters or imputation produces fresh artifacts.
	Settings any
}

// Deps are the collaborators of the pipeline. Recorder and EventBus may be nil.
type Deps struct {
	Outcomes   ports.HistoricalOutcomes
	Recorder   ports.OutcomeRecorder
	Store      artifacts.Store
	Trainer    Trainer
	Encoder    *features.Encoder
	Summarizer *cluster.Summarizer
	EventBus   events.Bus
	Log        *logger.Logger
}

// Service runs the scoring pipeline. It holds no per-call state; concurrent
// calls share only immutable artifacts.
type Service struct {
	outcomes   ports.HistoricalOutcomes
	recorder   ports.OutcomeRecorder
	store      artifacts.Store
	trainer    Trainer
	encoder    *features.Encoder
	summarizer *cluster.Summarizer
	eventBus   events.Bus
	log        *logger.Logger
	opts       Options
	now        func() time.Time

	training singleflight.Group
}

// New creates the pipeline.
func New(deps Deps, opts Options) *Service {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if opts.DefaultKind == "" {
		opts.DefaultKind = domain.ModelRandomForest
	}
	if opts.TrainingTimeout <= 0 {
		opts.TrainingTimeout = 30 * time.Second
	}
	return &Service{
		outcomes:   deps.Outcomes,
		recorder:   deps.Recorder,
		store:      deps.Store,
		trainer:    deps.Trainer,
		encoder:    deps.Encoder,
		summarizer: deps.Summarizer,
		eventBus:   deps.EventBus,
		log:        deps.Log,
		opts:       opts,
		now:        time.Now,
	}
}

// ScoreInput is one scoring request.
type ScoreInput struct {
	Leads []domain.Lead
	// ModelKind selects the classifier; empty uses the configured default.
	ModelKind string
}

// ScoreResult is the assembled pipeline output.
type ScoreResult struct {
	Predictions       []domain.ScoredLead
	FeatureImportance []domain.FeatureImportance
	Provenance        domain.ImportanceProvenance
	Metrics           domain.Metrics
	// ClusterAnalysis is nil for an empty batch.
	ClusterAnalysis []domain.ClusterSegment
	ModelKind       domain.ModelKind
	ModelVersion    string
	TrainedAt       time.Time
}

// HealthStatus is the static readiness indicator.
type HealthStatus struct {
	Status  string
	Version string
}

// Health reports readiness without touching collaborators.
func (s *Service) Health() HealthStatus {
	return HealthStatus{Status: "healthy", Version: Version}
}

// Score encodes the batch, obtains an artifact for the model kind, and
// assembles predictions, importance, metrics and clusters. Any failure
// aborts the whole call.
func (s *Service) Score(ctx context.Context, in ScoreInput) (*ScoreResult, error) {
	start := time.Now()

	kind, err := s.resolveKind(in.ModelKind)
	if err != nil {
		return nil, err
	}
	if err := s.validateBatch(in.Leads); err != nil {
		return nil, err
	}

	vectors := s.encoder.EncodeBatch(in.Leads, s.now())

	art, cached, err := s.artifact(ctx, kind)
	if err != nil {
		return nil, err
	}

	probs, err := infer(art, vectors)
	if err != nil {
		return nil, err
	}

	predictions := make([]domain.ScoredLead, len(in.Leads))
	for i, lead := range in.Leads {
		id := lead.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		predictions[i] = domain.ScoredLead{
			ID:                    id,
			Name:                  lead.Name,
			Company:               lead.Company,
			Industry:              lead.Industry,
			Size:                  lead.Size,
			ConversionProbability: probs[i],
			Score:                 domain.ScoreFromProbability(probs[i]),
			LastContact:           lead.LastContact,
		}
	}

	result := &ScoreResult{
		Predictions:       predictions,
		FeatureImportance: append([]domain.FeatureImportance(nil), art.Importance...),
		Provenance:        art.Provenance,
		Metrics:           art.Metrics,
		ClusterAnalysis:   s.summarizer.Summarize(vectors),
		ModelKind:         art.Kind,
		ModelVersion:      art.Version,
		TrainedAt:         art.TrainedAt,
	}

	s.log.WithContext(ctx).ScoringCompleted(string(kind), art.Version, len(in.Leads), cached, time.Since(start))
	return result, nil
}

// Retrain trains a fresh artifact for kind regardless of what is stored.
func (s *Service) Retrain(ctx context.Context, rawKind, reason string) (*artifacts.Artifact, error) {
	kind, err := s.resolveKind(rawKind)
	if err != nil {
		return nil, err
	}
	rows, fingerprint, err := s.history(ctx)
	if err != nil {
		return nil, err
	}
	key := artifacts.Key{Kind: kind, Fingerprint: fingerprint}
	s.log.WithContext(ctx).Info("retraining model", "model_kind", kind, "reason", reason)
	return s.trainShared(ctx, key, rows, false)
}

// ListModels returns stored artifacts, newest first.
func (s *Service) ListModels(ctx context.Context) ([]*artifacts.Artifact, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list model artifacts", err).WithOp("scoring.ListModels")
	}
	return list, nil
}

// RecordOutcomes appends labelled outcomes and announces them so stale
// artifacts can be dropped.
func (s *Service) RecordOutcomes(ctx context.Context, outcomes []domain.Outcome) error {
	if s.recorder == nil {
		return apperr.Unavailable("outcome recording is not configured").WithOp("scoring.RecordOutcomes")
	}
	if len(outcomes) == 0 {
		return apperr.Validation("no outcomes given").WithOp("scoring.RecordOutcomes")
	}

	leads := make([]domain.Lead, len(outcomes))
	for i, o := range outcomes {
		leads[i] = o.Lead
	}
	if errs := validateLeads("outcomes", leads); len(errs) > 0 {
		return apperr.Validation("invalid outcomes").WithOp("scoring.RecordOutcomes").WithDetails(errs)
	}

	now := s.now().UTC()
	converted := 0
	rows := make([]domain.Outcome, len(outcomes))
	for i, o := range outcomes {
		if o.ObservedAt.IsZero() {
			o.ObservedAt = now
		}
		if o.Converted {
			converted++
		}
		rows[i] = o
	}

	if err := s.recorder.Record(ctx, rows); err != nil {
		return apperr.Wrap(apperr.KindInternal, "record outcomes", err).WithOp("scoring.RecordOutcomes")
	}

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.OutcomesRecorded{
			BaseEvent: events.NewBaseEvent(),
			Count:     len(rows),
			Converted: converted,
		})
	}
	return nil
}

// InvalidateAll drops stored artifacts of every supported kind.
func (s *Service) InvalidateAll(ctx context.Context, reason string) error {
	var errs []error
	for _, kind := range domain.SupportedModelKinds {
		removed, err := s.store.Invalidate(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", kind, err))
		}
		s.log.ArtifactInvalidated(string(kind), reason, removed)
		if s.eventBus != nil && removed > 0 {
			s.eventBus.Publish(ctx, events.ArtifactsInvalidated{
				BaseEvent: events.NewBaseEvent(),
				ModelKind: string(kind),
				Reason:    reason,
				Removed:   removed,
			})
		}
	}
	return errors.Join(errs...)
}

func (s *Service) resolveKind(raw string) (domain.ModelKind, error) {
	if raw == "" {
		return s.opts.DefaultKind, nil
	}
	kind, err := domain.ParseModelKind(raw)
	if err != nil {
		return "", apperr.UnsupportedModel(raw).WithOp("scoring.resolveKind")
	}
	return kind, nil
}

// history loads the outcome rows with their fingerprint.
func (s *Service) history(ctx context.Context) ([]domain.Outcome, string, error) {
	rows, err := s.outcomes.Load(ctx)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, "load historical outcomes", err).WithOp("scoring.history")
	}
	fingerprint, err := artifacts.Fingerprint(rows, s.opts.Settings)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, "fingerprint outcomes", err).WithOp("scoring.history")
	}
	return rows, fingerprint, nil
}

// artifact returns the stored artifact for the current history or trains one.
func (s *Service) artifact(ctx context.Context, kind domain.ModelKind) (*artifacts.Artifact, bool, error) {
	rows, fingerprint, err := s.history(ctx)
	if err != nil {
		return nil, false, err
	}
	key := artifacts.Key{Kind: kind, Fingerprint: fingerprint}

	a, err := s.store.Get(ctx, key)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, artifacts.ErrNotFound) {
		s.log.WithContext(ctx).Warn("artifact lookup failed, training instead", "key", key.String(), "error", err)
	}

	a, err = s.trainShared(ctx, key, rows, true)
	return a, false, err
}

// trainShared collapses concurrent trainings of the same key into one.
// With reuse set, an artifact stored by a training that finished just before
// this call is returned instead of training again.
// The shared training runs detached from any single caller; a caller whose
// context ends stops waiting without failing the others.
func (s *Service) trainShared(ctx context.Context, key artifacts.Key, rows []domain.Outcome, reuse bool) (*artifacts.Artifact, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.training.DoChan(key.String(), func() (any, error) {
		if reuse {
			if a, err := s.store.Get(detached, key); err == nil {
				return a, nil
			}
		}
		return s.train(detached, key, rows)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*artifacts.Artifact), nil
	case <-ctx.Done():
		return nil, abandoned(ctx.Err())
	}
}

// abandoned reports a caller that stopped waiting on a shared training.
func abandoned(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("request deadline passed while training", err).WithOp("scoring.train")
	}
	return apperr.Wrap(apperr.KindInternal, "request cancelled while training", err).WithOp("scoring.train")
}

func (s *Service) train(ctx context.Context, key artifacts.Key, rows []domain.Outcome) (*artifacts.Artifact, error) {
	start := time.Now()
	vectors, labels := s.encoder.EncodeOutcomes(rows)

	tctx, cancel := context.WithTimeout(ctx, s.opts.TrainingTimeout)
	defer cancel()

	res, err := s.trainer.Train(tctx, key.Kind, vectors, labels)
	if err != nil {
		var typed *apperr.Error
		switch {
		case errors.As(err, &typed):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, apperr.Timeout("training did not finish", err).WithOp("scoring.train")
		default:
			return nil, apperr.Wrap(apperr.KindInternal, "train model", err).WithOp("scoring.train")
		}
	}

	importance, provenance := rankImportance(res.Model)
	a := &artifacts.Artifact{
		ID:           uuid.New(),
		Kind:         key.Kind,
		Fingerprint:  key.Fingerprint,
		Version:      artifacts.VersionFor(key.Kind, key.Fingerprint),
		TrainedAt:    s.now().UTC(),
		TrainingRows: res.TrainingRows,
		Metrics:      res.Metrics,
		Importance:   importance,
		Provenance:   provenance,
		Scaler:       res.Scaler,
		Model:        res.Model,
	}

	log := s.log.WithContext(ctx)
	if err := s.store.Put(ctx, a); err != nil {
		log.Warn("failed to store model artifact", "version", a.Version, "error", err)
	}
	log.ModelTrained(string(a.Kind), a.Version, a.TrainingRows, a.Metrics.Accuracy, time.Since(start))

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.ModelTrained{
			BaseEvent:    events.NewBaseEvent(),
			ArtifactID:   a.ID,
			ModelKind:    string(a.Kind),
			Version:      a.Version,
			TrainingRows: a.TrainingRows,
			Accuracy:     a.Metrics.Accuracy,
		})
	}
	return a, nil
}

// infer scales vectors with the artifact's scaler and runs the model.
func infer(a *artifacts.Artifact, vectors []domain.FeatureVector) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	scaled, err := a.Scaler.Transform(domain.Matrix(vectors))
	if err != nil {
		return nil, apperr.Inference("scale lead features", err).WithOp("scoring.infer")
	}
	probs, err := a.Model.PredictProba(scaled)
	if err != nil {
		return nil, apperr.Inference("compute conversion probabilities", err).WithOp("scoring.infer")
	}
	if len(probs) != len(vectors) {
		return nil, apperr.Inference(fmt.Sprintf("model returned %d probabilities for %d leads", len(probs), len(vectors)), nil).WithOp("scoring.infer")
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, apperr.Inference(fmt.Sprintf("invalid probability %v for lead %d", p, i), nil).WithOp("scoring.infer")
		}
	}
	return probs, nil
}

// rankImportance pairs model weights with feature labels, normalised and
// sorted descending. Models without usable weights get the fallback ranking.
func rankImportance(c model.Classifier) ([]domain.FeatureImportance, domain.ImportanceProvenance) {
	reporter, ok := c.(model.ImportanceReporter)
	if !ok {
		return domain.FallbackImportance(), domain.ProvenanceApproximate
	}
	weights := reporter.FeatureImportances()
	if len(weights) != domain.FeatureCount {
		return domain.FallbackImportance(), domain.ProvenanceApproximate
	}

	var total float64
	for _, w := range weights {
		if math.IsNaN(w) || w < 0 {
			return domain.FallbackImportance(), domain.ProvenanceApproximate
		}
		total += w
	}
	if total == 0 {
		return domain.FallbackImportance(), domain.ProvenanceApproximate
	}

	out := make([]domain.FeatureImportance, domain.FeatureCount)
	for i, w := range weights {
		out[i] = domain.FeatureImportance{Name: domain.FeatureLabels[i], Value: w / total}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out, domain.ProvenanceComputed
}
