package handler

import (
	"net/http"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/ports"
	"lead_scoring_backend/internal/scoring/service"
	"lead_scoring_backend/internal/scoring/transport"
	"lead_scoring_backend/platform/apperr"
	"lead_scoring_backend/platform/httpkit"
	"lead_scoring_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	retrainReasonManual = "manual"
)

// Handler handles HTTP requests for lead scoring
type Handler struct {
	svc     *service.Service
	val     *validator.Validator
	retrain ports.RetrainScheduler
}

// New creates a new scoring handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// SetRetrainScheduler routes manual retrains to the background queue.
// Without one, retrains run inline.
func (h *Handler) SetRetrainScheduler(s ports.RetrainScheduler) {
	h.retrain = s
}

// RegisterRoutes registers the scoring routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/predict", h.Predict)
	rg.POST("/outcomes", h.RecordOutcomes)
	rg.GET("/models", h.ListModels)
	rg.POST("/models/:kind/retrain", h.Retrain)
}

// Health handles GET /api/health
func (h *Handler) Health(c *gin.Context) {
	httpkit.OK(c, transport.FromHealth(h.svc.Health()))
}

// Predict handles POST /api/predict and POST /api/v1/scoring/predict
func (h *Handler) Predict(c *gin.Context) {
	var req transport.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.FieldErrors(err)))
		return
	}

	result, err := h.svc.Score(c.Request.Context(), transport.ToScoreInput(req))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromScoreResult(req, result))
}

// RecordOutcomes handles POST /api/v1/scoring/outcomes
func (h *Handler) RecordOutcomes(c *gin.Context) {
	var req transport.RecordOutcomesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.FieldErrors(err)))
		return
	}

	outcomes := transport.ToOutcomes(req)
	if err := h.svc.RecordOutcomes(c.Request.Context(), outcomes); httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.RecordOutcomesResponse{Recorded: len(outcomes)})
}

// ListModels handles GET /api/v1/scoring/models
func (h *Handler) ListModels(c *gin.Context) {
	list, err := h.svc.ListModels(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ListModelsResponse{Models: make([]transport.ModelSummaryResponse, 0, len(list))}
	for _, a := range list {
		resp.Models = append(resp.Models, transport.FromArtifact(a))
	}
	httpkit.OK(c, resp)
}

// Retrain handles POST /api/v1/scoring/models/:kind/retrain
func (h *Handler) Retrain(c *gin.Context) {
	raw := c.Param("kind")

	if h.retrain != nil {
		kind, err := domain.ParseModelKind(raw)
		if err != nil {
			httpkit.HandleError(c, apperr.UnsupportedModel(raw))
			return
		}
		if err := h.retrain.EnqueueRetrain(c.Request.Context(), kind, retrainReasonManual); httpkit.HandleError(c, err) {
			return
		}
		httpkit.JSON(c, http.StatusAccepted, transport.RetrainResponse{Kind: string(kind), Queued: true})
		return
	}

	art, err := h.svc.Retrain(c.Request.Context(), raw, retrainReasonManual)
	if httpkit.HandleError(c, err) {
		return
	}

	summary := transport.FromArtifact(art)
	httpkit.OK(c, transport.RetrainResponse{Kind: string(art.Kind), Model: &summary})
}
