package transport

import (
	"lead_scoring_backend/internal/scoring/artifacts"
	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/service"
	"lead_scoring_backend/platform/sanitize"
)

// ToDomainLead converts a request lead. Display text is stripped of markup
// because it is echoed back in predictions.
func ToDomainLead(r LeadRequest) domain.Lead {
	l := domain.Lead{
		Name:              sanitize.Text(r.Name),
		Company:           sanitize.Text(r.Company),
		Industry:          r.Industry,
		Size:              r.Size,
		LastContact:       r.LastContact,
		Email:             r.Email,
		Position:          sanitize.Text(r.Position),
		Budget:            r.Budget,
		PreviousPurchases: r.PreviousPurchases,
		Interactions:      r.Interactions,
	}
	if r.ID != nil {
		l.ID = r.ID.String()
	}
	return l
}

// ToScoreInput converts a prediction request.
func ToScoreInput(req PredictRequest) service.ScoreInput {
	leads := make([]domain.Lead, len(req.Leads))
	for i, l := range req.Leads {
		leads[i] = ToDomainLead(l)
	}
	return service.ScoreInput{Leads: leads, ModelKind: req.ModelType}
}

// ToOutcomes converts a feedback request.
func ToOutcomes(req RecordOutcomesRequest) []domain.Outcome {
	out := make([]domain.Outcome, len(req.Outcomes))
	for i, o := range req.Outcomes {
		out[i] = domain.Outcome{Lead: ToDomainLead(o.Lead)}
		if o.Converted != nil {
			out[i].Converted = *o.Converted
		}
		if o.ObservedAt != nil {
			out[i].ObservedAt = o.ObservedAt.UTC()
		}
	}
	return out
}

// FromScoreResult builds the response body. Ids are echoed from the request
// in their original JSON form; leads without one get their position.
func FromScoreResult(req PredictRequest, res *service.ScoreResult) PredictResponse {
	predictions := make([]PredictionResponse, len(res.Predictions))
	for i, p := range res.Predictions {
		id := NumericLeadID(i)
		if i < len(req.Leads) && req.Leads[i].ID != nil && req.Leads[i].ID.String() != "" {
			id = *req.Leads[i].ID
		}
		predictions[i] = PredictionResponse{
			ID:                    id,
			Name:                  p.Name,
			Company:               p.Company,
			Industry:              p.Industry,
			Size:                  p.Size,
			ConversionProbability: p.ConversionProbability,
			Score:                 p.Score,
			LastContact:           p.LastContact,
		}
	}

	var clusters []ClusterResponse
	if res.ClusterAnalysis != nil {
		clusters = make([]ClusterResponse, len(res.ClusterAnalysis))
		for i, c := range res.ClusterAnalysis {
			clusters[i] = ClusterResponse{X: c.X, Y: c.Y, Z: c.Z, Name: c.Name}
		}
	}

	return PredictResponse{
		Predictions:          predictions,
		FeatureImportance:    fromImportance(res.FeatureImportance),
		ImportanceProvenance: string(res.Provenance),
		ModelMetrics:         fromMetrics(res.Metrics),
		ClusterAnalysis:      clusters,
		Model: ModelInfo{
			Kind:      string(res.ModelKind),
			Version:   res.ModelVersion,
			TrainedAt: res.TrainedAt,
		},
	}
}

// FromArtifact summarises a stored artifact.
func FromArtifact(a *artifacts.Artifact) ModelSummaryResponse {
	return ModelSummaryResponse{
		ID:                   a.ID.String(),
		Kind:                 string(a.Kind),
		Version:              a.Version,
		TrainedAt:            a.TrainedAt,
		TrainingRows:         a.TrainingRows,
		Metrics:              fromMetrics(a.Metrics),
		FeatureImportance:    fromImportance(a.Importance),
		ImportanceProvenance: string(a.Provenance),
	}
}

// FromHealth converts the health status.
func FromHealth(h service.HealthStatus) HealthResponse {
	return HealthResponse{Status: h.Status, Version: h.Version}
}

func fromMetrics(m domain.Metrics) MetricsResponse {
	return MetricsResponse{Accuracy: m.Accuracy, Precision: m.Precision, Recall: m.Recall, F1Score: m.F1Score}
}

func fromImportance(list []domain.FeatureImportance) []FeatureImportanceResponse {
	out := make([]FeatureImportanceResponse, len(list))
	for i, fi := range list {
		out[i] = FeatureImportanceResponse{Name: fi.Name, Value: fi.Value}
	}
	return out
}
