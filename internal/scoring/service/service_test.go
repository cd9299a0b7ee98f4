package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lead_scoring_backend/internal/events"
	"lead_scoring_backend/internal/scoring/artifacts"
	"lead_scoring_backend/internal/scoring/cluster"
	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
	"lead_scoring_backend/internal/scoring/model"
	"lead_scoring_backend/internal/scoring/outcomes"
	"lead_scoring_backend/platform/apperr"
	"lead_scoring_backend/platform/logger"
	"lead_scoring_backend/platform/validator"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func fastParams() model.Params {
	p := model.DefaultParams()
	p.Forest.Trees = 10
	p.Logistic.Epochs = 200
	return p
}

// countingSource wraps a MemorySource and counts loads.
type countingSource struct {
	*outcomes.MemorySource
	loads atomic.Int32
}

func (c *countingSource) Load(ctx context.Context) ([]domain.Outcome, error) {
	c.loads.Add(1)
	return c.MemorySource.Load(ctx)
}

// fakeTrainer returns a fixed logistic model, optionally after a delay.
type fakeTrainer struct {
	calls   atomic.Int32
	delay   time.Duration
	block   bool
	model   model.Classifier
	columns int
}

func (f *fakeTrainer) Train(ctx context.Context, _ domain.ModelKind, _ []domain.FeatureVector, _ []bool) (*model.TrainResult, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	clf := f.model
	if clf == nil {
		clf = &model.LogisticRegression{Weights: []float64{-0.4, 0.8, 0.3, 0.5, 0.1, 0}, Bias: 0.1}
	}
	cols := f.columns
	if cols == 0 {
		cols = domain.FeatureCount
	}
	means := make([]float64, cols)
	stddevs := make([]float64, cols)
	for i := range stddevs {
		stddevs[i] = 1
	}
	return &model.TrainResult{
		Model:        clf,
		Scaler:       &features.Scaler{Means: means, StdDevs: stddevs},
		Metrics:      domain.Metrics{Accuracy: 0.75, Precision: 0.7, Recall: 0.6, F1Score: 0.646},
		TrainingRows: 16,
		HoldoutRows:  4,
	}, nil
}

// opaqueModel exposes no importances.
type opaqueModel struct{ p float64 }

func (m opaqueModel) Kind() domain.ModelKind { return domain.ModelLogisticRegression }
func (m opaqueModel) PredictProba(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i := range out {
		out[i] = m.p
	}
	return out, nil
}

type fixture struct {
	svc    *Service
	source *countingSource
	store  *artifacts.MemoryStore
	bus    *events.InMemoryBus
}

func newFixture(t *testing.T, trainer Trainer, history []domain.Outcome, opts Options) *fixture {
	t.Helper()
	src := &countingSource{MemorySource: outcomes.NewMemorySource(history)}
	store := artifacts.NewMemoryStore(0)
	bus := events.NewInMemoryBus(logger.Nop())
	if opts.Settings == nil {
		opts.Settings = "test"
	}
	svc := New(Deps{
		Outcomes:   src,
		Recorder:   src,
		Store:      store,
		Trainer:    trainer,
		Encoder:    features.NewEncoder(features.DefaultImputation()),
		Summarizer: cluster.NewSummarizer(5),
		EventBus:   bus,
		Log:        logger.Nop(),
	}, opts)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, source: src, store: store, bus: bus}
}

func sampleLeads() []domain.Lead {
	return []domain.Lead{
		{ID: "a-1", Name: "Ada", Company: "Acme", Industry: "Technology", Size: "Enterprise", LastContact: "2026-03-08", Budget: fptr(48000), PreviousPurchases: iptr(5), Interactions: iptr(18)},
		{Name: "Bob", Company: "Initech", Industry: "retail", Size: "small", LastContact: "2026-01-02T10:00:00Z"},
		{ID: "c-3", Name: "Cy", Company: "Globex", Industry: "finance", Size: "medium", LastContact: "2026-02-20", Budget: fptr(0), PreviousPurchases: iptr(0), Interactions: iptr(2)},
	}
}

func TestScoreWithTrainedModels(t *testing.T) {
	for _, kind := range domain.SupportedModelKinds {
		f := newFixture(t, model.NewTrainer(fastParams()), outcomes.Bootstrap(200, 3), Options{})
		res, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads(), ModelKind: string(kind)})
		if err != nil {
			t.Fatalf("%s: expected scoring to succeed, got %v", kind, err)
		}

		if len(res.Predictions) != 3 {
			t.Fatalf("%s: expected 3 predictions, got %d", kind, len(res.Predictions))
		}
		wantIDs := []string{"a-1", "1", "c-3"}
		for i, p := range res.Predictions {
			if p.ID != wantIDs[i] || p.Name != sampleLeads()[i].Name {
				t.Fatalf("%s: expected prediction %d to be %s, got %+v", kind, i, wantIDs[i], p)
			}
			if p.ConversionProbability < 0 || p.ConversionProbability > 1 {
				t.Fatalf("%s: expected probability in [0,1], got %v", kind, p.ConversionProbability)
			}
			if p.Score != int(math.Round(p.ConversionProbability*100)) {
				t.Fatalf("%s: expected score to match probability, got %+v", kind, p)
			}
		}

		if res.Provenance != domain.ProvenanceComputed {
			t.Fatalf("%s: expected computed importances, got %s", kind, res.Provenance)
		}
		var sum float64
		for i, fi := range res.FeatureImportance {
			sum += fi.Value
			if i > 0 && fi.Value > res.FeatureImportance[i-1].Value {
				t.Fatalf("%s: expected descending importances, got %+v", kind, res.FeatureImportance)
			}
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("%s: expected importances to sum to 1, got %v", kind, sum)
		}
		for _, m := range []float64{res.Metrics.Accuracy, res.Metrics.Precision, res.Metrics.Recall, res.Metrics.F1Score} {
			if m < 0 || m > 1 || math.IsNaN(m) {
				t.Fatalf("%s: expected metrics in [0,1], got %+v", kind, res.Metrics)
			}
		}
		if len(res.ClusterAnalysis) == 0 {
			t.Fatalf("%s: expected cluster analysis for a non-empty batch", kind)
		}
		if res.ModelKind != kind || res.ModelVersion == "" {
			t.Fatalf("%s: expected model identity, got %s %q", kind, res.ModelKind, res.ModelVersion)
		}
	}
}

func TestScoreEmptyBatch(t *testing.T) {
	trainer := &fakeTrainer{}
	f := newFixture(t, trainer, outcomes.Bootstrap(40, 1), Options{})

	res, err := f.svc.Score(context.Background(), ScoreInput{Leads: []domain.Lead{}})
	if err != nil {
		t.Fatalf("expected empty batch to succeed, got %v", err)
	}
	if res.Predictions == nil || len(res.Predictions) != 0 {
		t.Fatalf("expected empty non-nil predictions, got %#v", res.Predictions)
	}
	if res.ClusterAnalysis != nil {
		t.Fatalf("expected no cluster analysis, got %+v", res.ClusterAnalysis)
	}
	if res.Metrics.Accuracy != 0.75 || len(res.FeatureImportance) == 0 {
		t.Fatalf("expected metrics and importance from the artifact, got %+v", res)
	}
	if res.ModelKind != domain.ModelRandomForest {
		t.Fatalf("expected default model kind, got %s", res.ModelKind)
	}
}

func TestScoreRejectsUnsupportedKindBeforeWork(t *testing.T) {
	trainer := &fakeTrainer{}
	f := newFixture(t, trainer, outcomes.Bootstrap(40, 1), Options{})

	for _, raw := range []string{"quantum-svm", "neural-network"} {
		_, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads(), ModelKind: raw})
		if !apperr.Is(err, apperr.KindUnsupportedModel) {
			t.Fatalf("expected unsupported model error for %q, got %v", raw, err)
		}
	}
	if trainer.calls.Load() != 0 || f.source.loads.Load() != 0 {
		t.Fatalf("expected no training or history access, got %d trainings, %d loads", trainer.calls.Load(), f.source.loads.Load())
	}
}

func TestScoreValidationNamesFields(t *testing.T) {
	trainer := &fakeTrainer{}
	f := newFixture(t, trainer, outcomes.Bootstrap(40, 1), Options{})

	leads := sampleLeads()
	leads[0].Name = "  "
	leads[1].LastContact = "yesterday"
	leads[2].Interactions = iptr(-1)

	_, err := f.svc.Score(context.Background(), ScoreInput{Leads: leads})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	details, ok := appErr.Details.([]validator.FieldError)
	if !ok {
		t.Fatalf("expected field error details, got %T", appErr.Details)
	}
	var fields []string
	for _, d := range details {
		fields = append(fields, d.Field)
	}
	want := []string{"leads[0].name", "leads[1].lastContact", "leads[2].interactions"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Fatalf("unexpected fields (-want +got):\n%s", diff)
	}
	if trainer.calls.Load() != 0 {
		t.Fatalf("expected no training for an invalid batch")
	}
}

func TestCountsAboveColumnRangeAreRejected(t *testing.T) {
	f := newFixture(t, &fakeTrainer{}, outcomes.Bootstrap(40, 1), Options{})
	big := math.MaxInt32
	big++

	leads := sampleLeads()
	leads[0].Interactions = iptr(big)
	_, err := f.svc.Score(context.Background(), ScoreInput{Leads: leads})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for interactions, got %v", err)
	}

	lead := sampleLeads()[2]
	lead.PreviousPurchases = iptr(big)
	err = f.svc.RecordOutcomes(context.Background(), []domain.Outcome{{Lead: lead, Converted: true}})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error for previous purchases, got %v", err)
	}
	details, _ := appErr.Details.([]validator.FieldError)
	if len(details) != 1 || details[0].Field != "outcomes[0].previousPurchases" {
		t.Fatalf("expected outcomes[0].previousPurchases to be named, got %+v", details)
	}
	if f.source.Len() != 40 {
		t.Fatalf("expected nothing to be recorded, got %d outcomes", f.source.Len())
	}
}

func TestScoreRejectsOversizedBatch(t *testing.T) {
	f := newFixture(t, &fakeTrainer{}, outcomes.Bootstrap(40, 1), Options{MaxBatchSize: 2})
	_, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads()})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestScoreReusesArtifactUntilHistoryChanges(t *testing.T) {
	ctx := context.Background()
	trainer := &fakeTrainer{}
	f := newFixture(t, trainer, outcomes.Bootstrap(40, 1), Options{})

	first, err := f.svc.Score(ctx, ScoreInput{Leads: sampleLeads()})
	if err != nil {
		t.Fatalf("expected scoring to succeed, got %v", err)
	}
	second, err := f.svc.Score(ctx, ScoreInput{Leads: sampleLeads()})
	if err != nil {
		t.Fatalf("expected scoring to succeed, got %v", err)
	}
	if trainer.calls.Load() != 1 {
		t.Fatalf("expected one training, got %d", trainer.calls.Load())
	}
	if first.ModelVersion != second.ModelVersion {
		t.Fatalf("expected the same artifact version, got %s and %s", first.ModelVersion, second.ModelVersion)
	}

	err = f.svc.RecordOutcomes(ctx, []domain.Outcome{{Lead: sampleLeads()[0], Converted: true}})
	if err != nil {
		t.Fatalf("expected outcome to be recorded, got %v", err)
	}
	third, err := f.svc.Score(ctx, ScoreInput{Leads: sampleLeads()})
	if err != nil {
		t.Fatalf("expected scoring to succeed, got %v", err)
	}
	if trainer.calls.Load() != 2 || third.ModelVersion == first.ModelVersion {
		t.Fatalf("expected a new artifact after new outcomes, got %d trainings, version %s", trainer.calls.Load(), third.ModelVersion)
	}
}

func TestScoreDegenerateHistory(t *testing.T) {
	history := outcomes.Bootstrap(30, 2)
	for i := range history {
		history[i].Converted = false
	}
	f := newFixture(t, model.NewTrainer(fastParams()), history, Options{})

	_, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads()})
	if !apperr.Is(err, apperr.KindDegenerateTraining) {
		t.Fatalf("expected degenerate training error, got %v", err)
	}

	empty := newFixture(t, model.NewTrainer(fastParams()), nil, Options{})
	_, err = empty.svc.Score(context.Background(), ScoreInput{Leads: []domain.Lead{}})
	if !apperr.Is(err, apperr.KindDegenerateTraining) {
		t.Fatalf("expected degenerate training error for empty history, got %v", err)
	}
}

func TestScoreTrainingTimeout(t *testing.T) {
	f := newFixture(t, &fakeTrainer{block: true}, outcomes.Bootstrap(40, 1), Options{TrainingTimeout: 10 * time.Millisecond})

	_, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads()})
	if !apperr.Is(err, apperr.KindTimeout) {
		t.Fatalf("expected training timeout, got %v", err)
	}
}

func TestScoreInferenceErrors(t *testing.T) {
	tests := []struct {
		name    string
		trainer *fakeTrainer
	}{
		{"dimension mismatch", &fakeTrainer{columns: 4, model: &model.LogisticRegression{Weights: make([]float64, 4)}}},
		{"invalid probability", &fakeTrainer{model: opaqueModel{p: math.NaN()}}},
		{"out of range", &fakeTrainer{model: opaqueModel{p: 1.5}}},
	}

	for _, tt := range tests {
		f := newFixture(t, tt.trainer, outcomes.Bootstrap(40, 1), Options{})
		_, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads()})
		if !apperr.Is(err, apperr.KindInference) {
			t.Fatalf("%s: expected inference error, got %v", tt.name, err)
		}
	}
}

func TestScoreFallbackImportanceIsFlagged(t *testing.T) {
	f := newFixture(t, &fakeTrainer{model: opaqueModel{p: 0.42}}, outcomes.Bootstrap(40, 1), Options{})

	res, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads()})
	if err != nil {
		t.Fatalf("expected scoring to succeed, got %v", err)
	}
	if res.Provenance != domain.ProvenanceApproximate {
		t.Fatalf("expected approximate provenance, got %s", res.Provenance)
	}
	if diff := cmp.Diff(domain.FallbackImportance(), res.FeatureImportance); diff != "" {
		t.Fatalf("unexpected fallback ranking (-want +got):\n%s", diff)
	}
	if res.Predictions[0].Score != 42 {
		t.Fatalf("expected score 42, got %d", res.Predictions[0].Score)
	}
}

func TestConcurrentScoresTrainOnce(t *testing.T) {
	trainer := &fakeTrainer{delay: 50 * time.Millisecond}
	f := newFixture(t, trainer, outcomes.Bootstrap(40, 1), Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads()})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("expected concurrent scoring to succeed, got %v", err)
		}
	}
	if trainer.calls.Load() != 1 {
		t.Fatalf("expected a single shared training, got %d", trainer.calls.Load())
	}
}

func TestCancelledCallerDoesNotFailSharedTraining(t *testing.T) {
	trainer := &fakeTrainer{delay: 200 * time.Millisecond}
	f := newFixture(t, trainer, outcomes.Bootstrap(40, 1), Options{TrainingTimeout: 5 * time.Second})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.Score(ctxA, ScoreInput{Leads: sampleLeads()})
		errA <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for trainer.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected training to start")
		}
		time.Sleep(time.Millisecond)
	}

	errB := make(chan error, 1)
	go func() {
		_, err := f.svc.Score(context.Background(), ScoreInput{Leads: sampleLeads()})
		errB <- err
	}()
	cancelA()

	if err := <-errA; err == nil || apperr.Is(err, apperr.KindTimeout) {
		t.Fatalf("expected the cancelled caller to stop with a non-timeout error, got %v", err)
	}
	if err := <-errB; err != nil {
		t.Fatalf("expected the live caller to succeed, got %v", err)
	}
	if trainer.calls.Load() != 1 {
		t.Fatalf("expected a single shared training, got %d", trainer.calls.Load())
	}
}

func TestRetrainForcesTraining(t *testing.T) {
	ctx := context.Background()
	trainer := &fakeTrainer{}
	f := newFixture(t, trainer, outcomes.Bootstrap(40, 1), Options{})

	if _, err := f.svc.Score(ctx, ScoreInput{Leads: sampleLeads(), ModelKind: "logistic-regression"}); err != nil {
		t.Fatalf("expected scoring to succeed, got %v", err)
	}
	a, err := f.svc.Retrain(ctx, "logistic-regression", "manual")
	if err != nil {
		t.Fatalf("expected retrain to succeed, got %v", err)
	}
	if trainer.calls.Load() != 2 || a.Kind != domain.ModelLogisticRegression {
		t.Fatalf("expected a forced second training, got %d calls, kind %s", trainer.calls.Load(), a.Kind)
	}

	if _, err := f.svc.Retrain(ctx, "quantum-svm", "manual"); !apperr.Is(err, apperr.KindUnsupportedModel) {
		t.Fatalf("expected unsupported model error, got %v", err)
	}
}

func TestRecordOutcomesPublishesEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeTrainer{}, nil, Options{})

	var got events.OutcomesRecorded
	var mu sync.Mutex
	f.bus.Subscribe(events.OutcomesRecorded{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = e.(events.OutcomesRecorded)
		return nil
	}))

	rows := []domain.Outcome{
		{Lead: sampleLeads()[0], Converted: true},
		{Lead: sampleLeads()[1], Converted: false},
	}
	if err := f.svc.RecordOutcomes(ctx, rows); err != nil {
		t.Fatalf("expected outcomes to be recorded, got %v", err)
	}
	f.bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got.Count != 2 || got.Converted != 1 {
		t.Fatalf("expected event with 2 outcomes, 1 converted, got %+v", got)
	}
	stored, _ := f.source.Load(ctx)
	if len(stored) != 2 || stored[0].ObservedAt.IsZero() {
		t.Fatalf("expected stored outcomes with observation time, got %+v", stored)
	}

	bad := []domain.Outcome{{Lead: domain.Lead{Name: "x"}}}
	if err := f.svc.RecordOutcomes(ctx, bad); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordOutcomesWithoutRecorder(t *testing.T) {
	svc := New(Deps{Outcomes: outcomes.NewMemorySource(nil), Store: artifacts.NewMemoryStore(0)}, Options{})
	err := svc.RecordOutcomes(context.Background(), []domain.Outcome{{Lead: sampleLeads()[0]}})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestInvalidateAllDropsArtifacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeTrainer{}, outcomes.Bootstrap(40, 1), Options{})

	for _, kind := range domain.SupportedModelKinds {
		if _, err := f.svc.Score(ctx, ScoreInput{Leads: sampleLeads(), ModelKind: string(kind)}); err != nil {
			t.Fatalf("expected scoring to succeed, got %v", err)
		}
	}
	list, _ := f.svc.ListModels(ctx)
	if len(list) != 2 {
		t.Fatalf("expected 2 stored artifacts, got %d", len(list))
	}

	if err := f.svc.InvalidateAll(ctx, "test"); err != nil {
		t.Fatalf("expected invalidation to succeed, got %v", err)
	}
	list, _ = f.svc.ListModels(ctx)
	if len(list) != 0 {
		t.Fatalf("expected no stored artifacts, got %d", len(list))
	}
}

func TestHealth(t *testing.T) {
	svc := New(Deps{}, Options{})
	if h := svc.Health(); h.Status != "healthy" || h.Version != Version {
		t.Fatalf("expected healthy %s, got %+v", Version, h)
	}
}

func TestRankImportanceNormalises(t *testing.T) {
	m := &model.LogisticRegression{Weights: []float64{0, 2, 0, -1, 1, 0}}
	got, prov := rankImportance(m)
	if prov != domain.ProvenanceComputed {
		t.Fatalf("expected computed provenance, got %s", prov)
	}
	want := []domain.FeatureImportance{
		{Name: "Budget Size", Value: 0.5},
		{Name: "Interactions", Value: 0.25},
		{Name: "Company Size", Value: 0.25},
		{Name: "Last Contact Recency", Value: 0},
		{Name: "Previous Purchases", Value: 0},
		{Name: "Industry", Value: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected ranking (-want +got):\n%s", diff)
	}

	if _, prov := rankImportance(&model.LogisticRegression{Weights: make([]float64, 6)}); prov != domain.ProvenanceApproximate {
		t.Fatalf("expected all-zero weights to fall back, got %s", prov)
	}
}
