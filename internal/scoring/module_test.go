package scoring

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lead_scoring_backend/internal/events"
	apphttp "lead_scoring_backend/internal/http"
	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/profile"
	"lead_scoring_backend/platform/config"
	"lead_scoring_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingScheduler struct {
	mu    sync.Mutex
	kinds []domain.ModelKind
}

func (r *recordingScheduler) EnqueueRetrain(_ context.Context, kind domain.ModelKind, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return nil
}

func testProfile() profile.Profile {
	p := profile.Default()
	p.BootstrapRows = 120
	p.Training.Forest.Trees = 8
	p.Training.Logistic.Epochs = 200
	return p
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultModelKind: "logistic-regression",
		TrainingTimeout:  10 * time.Second,
		ArtifactTTL:      time.Hour,
		MaxBatchSize:     100,
	}
}

func TestNewModuleRejectsUnknownDefaultKind(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultModelKind = "gradient-boosting"
	if _, err := NewModule(Deps{Config: cfg, Profile: testProfile()}); err == nil {
		t.Fatalf("expected an unknown default model kind to fail")
	}
}

func TestOutcomesRecordedInvalidatesAndQueuesRetrain(t *testing.T) {
	ctx := context.Background()
	bus := events.NewInMemoryBus(logger.Nop())
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m, err := NewModule(Deps{
		Redis:    rdb,
		EventBus: bus,
		Config:   testConfig(),
		Profile:  testProfile(),
		Log:      logger.Nop(),
	})
	if err != nil {
		t.Fatalf("expected module, got %v", err)
	}
	sched := &recordingScheduler{}
	m.SetRetrainScheduler(sched)

	if _, err := m.Service().Retrain(ctx, "logistic-regression", "test"); err != nil {
		t.Fatalf("expected training to succeed, got %v", err)
	}
	stored, err := m.Store().List(ctx)
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one stored artifact, got %d (%v)", len(stored), err)
	}

	budget := 50000.0
	err = m.Service().RecordOutcomes(ctx, []domain.Outcome{{
		Lead: domain.Lead{
			Name: "Ada", Company: "Acme", Industry: "Finance", Size: "Large",
			LastContact: "2026-09-01", Budget: &budget,
		},
		Converted: true,
	}})
	if err != nil {
		t.Fatalf("expected outcomes to be recorded, got %v", err)
	}
	bus.Wait()

	stored, err = m.Store().List(ctx)
	if err != nil || len(stored) != 0 {
		t.Fatalf("expected artifacts to be invalidated, got %d (%v)", len(stored), err)
	}

	sched.mu.Lock()
	defer sched.mu.Unlock()
	if len(sched.kinds) != len(domain.SupportedModelKinds) {
		t.Fatalf("expected a retrain per supported kind, got %v", sched.kinds)
	}
}

func TestModelActivityIsLogged(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	bus := events.NewInMemoryBus(logger.Nop())

	m, err := NewModule(Deps{
		EventBus: bus,
		Config:   testConfig(),
		Profile:  testProfile(),
		Log:      logger.NewWithWriter("development", &buf),
	})
	if err != nil {
		t.Fatalf("expected module, got %v", err)
	}

	if _, err := m.Service().Retrain(ctx, "logistic-regression", "test"); err != nil {
		t.Fatalf("expected training to succeed, got %v", err)
	}
	if err := m.Service().InvalidateAll(ctx, "test"); err != nil {
		t.Fatalf("expected invalidation to succeed, got %v", err)
	}
	bus.Wait()

	out := buf.String()
	for _, name := range []string{events.ModelTrained{}.EventName(), events.ArtifactsInvalidated{}.EventName()} {
		if !strings.Contains(out, "event="+name) {
			t.Fatalf("expected an audit line for %s, got:\n%s", name, out)
		}
	}
}

func TestRegisterRoutes(t *testing.T) {
	m, err := NewModule(Deps{Config: testConfig(), Profile: testProfile()})
	if err != nil {
		t.Fatalf("expected module, got %v", err)
	}

	engine := gin.New()
	api := engine.Group("/api")
	v1 := api.Group("/v1")
	m.RegisterRoutes(&apphttp.RouterContext{
		Engine:    engine,
		API:       api,
		KeyedAPI:  api,
		V1:        v1,
		Protected: v1,
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health to be mounted, got %d", rec.Code)
	}

	body := `{"leads": [{"name": "Ada", "company": "Acme", "industry": "Technology", "size": "Small", "lastContact": "2026-10-01"}]}`
	for _, path := range []string{"/api/predict", "/api/v1/scoring/predict"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}
