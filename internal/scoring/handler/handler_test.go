package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lead_scoring_backend/internal/scoring/artifacts"
	"lead_scoring_backend/internal/scoring/cluster"
	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
	"lead_scoring_backend/internal/scoring/model"
	"lead_scoring_backend/internal/scoring/outcomes"
	"lead_scoring_backend/internal/scoring/service"
	"lead_scoring_backend/internal/scoring/transport"
	"lead_scoring_backend/platform/apperr"
	"lead_scoring_backend/platform/httpkit"
	"lead_scoring_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubScheduler struct {
	kinds   []domain.ModelKind
	reasons []string
	err     error
}

func (s *stubScheduler) EnqueueRetrain(_ context.Context, kind domain.ModelKind, reason string) error {
	if s.err != nil {
		return s.err
	}
	s.kinds = append(s.kinds, kind)
	s.reasons = append(s.reasons, reason)
	return nil
}

func newTestEngine(t *testing.T, withRecorder bool) (*gin.Engine, *Handler) {
	t.Helper()

	params := model.DefaultParams()
	params.Forest.Trees = 8
	params.Logistic.Epochs = 200

	src := outcomes.NewMemorySource(outcomes.Bootstrap(120, 11))
	deps := service.Deps{
		Outcomes:   src,
		Store:      artifacts.NewMemoryStore(time.Hour),
		Trainer:    model.NewTrainer(params),
		Encoder:    features.NewEncoder(features.DefaultImputation()),
		Summarizer: cluster.NewSummarizer(5),
	}
	if withRecorder {
		deps.Recorder = src
	}
	svc := service.New(deps, service.Options{
		DefaultKind:     domain.ModelLogisticRegression,
		TrainingTimeout: 10 * time.Second,
		MaxBatchSize:    50,
	})

	h := New(svc, validator.New())
	engine := gin.New()
	engine.GET("/api/health", h.Health)
	h.RegisterRoutes(engine.Group("/api/v1/scoring"))
	return engine, h
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

const predictBody = `{
	"modelType": "logistic-regression",
	"leads": [
		{"id": 7, "name": "Ada", "company": "Acme", "industry": "Technology", "size": "Enterprise",
		 "lastContact": "2026-10-01", "budget": 90000, "previousPurchases": 6, "interactions": 30},
		{"id": "lead-b", "name": "Bo", "company": "Beta", "industry": "Retail", "size": "Small",
		 "lastContact": "2026-03-01", "budget": 2000, "previousPurchases": 0, "interactions": 1},
		{"name": "Cy", "company": "Gamma", "industry": "Finance", "size": "Medium",
		 "lastContact": "2026-09-15"}
	]
}`

func TestHealth(t *testing.T) {
	engine, _ := newTestEngine(t, false)
	rec := do(engine, http.MethodGet, "/api/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body transport.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if body.Status != "healthy" || body.Version != service.Version {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestPredictReturnsScoredBatch(t *testing.T) {
	engine, _ := newTestEngine(t, false)
	rec := do(engine, http.MethodPost, "/api/v1/scoring/predict", predictBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	for _, field := range []string{"predictions", "featureImportance", "importanceProvenance", "modelMetrics", "clusterAnalysis"} {
		if _, ok := raw[field]; !ok {
			t.Fatalf("expected field %q in response", field)
		}
	}

	var preds []map[string]any
	if err := json.Unmarshal(raw["predictions"], &preds); err != nil {
		t.Fatalf("expected predictions array, got %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(preds))
	}
	if preds[0]["id"] != float64(7) {
		t.Fatalf("expected numeric id 7 echoed, got %v", preds[0]["id"])
	}
	if preds[1]["id"] != "lead-b" {
		t.Fatalf("expected string id echoed, got %v", preds[1]["id"])
	}
	if preds[2]["id"] != float64(2) {
		t.Fatalf("expected positional id 2, got %v", preds[2]["id"])
	}
	for i, p := range preds {
		prob, _ := p["conversionProbability"].(float64)
		score, _ := p["score"].(float64)
		if prob < 0 || prob > 1 {
			t.Fatalf("prediction %d: probability %v out of range", i, prob)
		}
		if int(score) != domain.ScoreFromProbability(prob) {
			t.Fatalf("prediction %d: expected score %d, got %v", i, domain.ScoreFromProbability(prob), score)
		}
	}
}

func TestPredictEmptyBatch(t *testing.T) {
	engine, _ := newTestEngine(t, false)
	rec := do(engine, http.MethodPost, "/api/v1/scoring/predict", `{"leads": []}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if string(raw["predictions"]) != "[]" {
		t.Fatalf("expected empty predictions array, got %s", raw["predictions"])
	}
	if string(raw["clusterAnalysis"]) != "null" {
		t.Fatalf("expected null clusterAnalysis, got %s", raw["clusterAnalysis"])
	}
}

func TestPredictRejectsMalformedBody(t *testing.T) {
	engine, _ := newTestEngine(t, false)
	rec := do(engine, http.MethodPost, "/api/v1/scoring/predict", `{"leads": [`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPredictValidationNamesField(t *testing.T) {
	engine, _ := newTestEngine(t, false)
	body := `{"leads": [{"name": "Ada", "company": "Acme", "industry": "Technology", "size": "Small"}]}`
	rec := do(engine, http.MethodPost, "/api/v1/scoring/predict", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct {
		Code    string                 `json:"code"`
		Details []validator.FieldError `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if resp.Code != apperr.KindValidation.String() {
		t.Fatalf("expected validation code, got %q", resp.Code)
	}
	if len(resp.Details) != 1 || resp.Details[0].Field != "leads[0].lastContact" {
		t.Fatalf("expected leads[0].lastContact to be reported, got %+v", resp.Details)
	}
}

func TestPredictUnsupportedModel(t *testing.T) {
	engine, _ := newTestEngine(t, false)
	body := `{"modelType": "neural-network", "leads": []}`
	rec := do(engine, http.MethodPost, "/api/v1/scoring/predict", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp httpkit.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if resp.Code != apperr.KindUnsupportedModel.String() {
		t.Fatalf("expected unsupported_model code, got %q", resp.Code)
	}
}

func TestRecordOutcomes(t *testing.T) {
	engine, _ := newTestEngine(t, true)
	body := `{"outcomes": [{"lead": {"name": "Ada", "company": "Acme", "industry": "Technology",
		"size": "Large", "lastContact": "2026-10-01"}, "converted": true}]}`
	rec := do(engine, http.MethodPost, "/api/v1/scoring/outcomes", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.RecordOutcomesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if resp.Recorded != 1 {
		t.Fatalf("expected 1 recorded outcome, got %d", resp.Recorded)
	}
}

func TestRecordOutcomesRequiresLabel(t *testing.T) {
	engine, _ := newTestEngine(t, true)
	body := `{"outcomes": [{"lead": {"name": "Ada", "company": "Acme", "industry": "Technology",
		"size": "Large", "lastContact": "2026-10-01"}}]}`
	rec := do(engine, http.MethodPost, "/api/v1/scoring/outcomes", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRecordOutcomesWithoutRecorder(t *testing.T) {
	engine, _ := newTestEngine(t, false)
	body := `{"outcomes": [{"lead": {"name": "Ada", "company": "Acme", "industry": "Technology",
		"size": "Large", "lastContact": "2026-10-01"}, "converted": false}]}`
	rec := do(engine, http.MethodPost, "/api/v1/scoring/outcomes", body)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRetrainInlineThenListModels(t *testing.T) {
	engine, _ := newTestEngine(t, false)

	rec := do(engine, http.MethodPost, "/api/v1/scoring/models/logistic-regression/retrain", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var retrain transport.RetrainResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &retrain); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if retrain.Queued || retrain.Model == nil {
		t.Fatalf("expected an inline retrain with a model, got %+v", retrain)
	}

	rec = do(engine, http.MethodGet, "/api/v1/scoring/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list transport.ListModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if len(list.Models) != 1 || list.Models[0].Version != retrain.Model.Version {
		t.Fatalf("expected the retrained model to be listed, got %+v", list.Models)
	}
}

func TestRetrainQueued(t *testing.T) {
	engine, h := newTestEngine(t, false)
	sched := &stubScheduler{}
	h.SetRetrainScheduler(sched)

	rec := do(engine, http.MethodPost, "/api/v1/scoring/models/Random-Forest/retrain", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(sched.kinds) != 1 || sched.kinds[0] != domain.ModelRandomForest {
		t.Fatalf("expected random-forest to be queued, got %v", sched.kinds)
	}
	if sched.reasons[0] != retrainReasonManual {
		t.Fatalf("expected manual reason, got %q", sched.reasons[0])
	}

	rec = do(engine, http.MethodPost, "/api/v1/scoring/models/svm/retrain", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestRetrainQueueFailure(t *testing.T) {
	engine, h := newTestEngine(t, false)
	h.SetRetrainScheduler(&stubScheduler{err: errors.New("redis down")})

	rec := do(engine, http.MethodPost, "/api/v1/scoring/models/random-forest/retrain", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
