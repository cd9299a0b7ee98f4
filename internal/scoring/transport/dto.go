// Package transport defines the JSON request and response shapes of the scoring API.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// LeadID is a client supplied lead identifier. Clients send either a JSON
// number or a string; it is echoed back in the same form.
type LeadID struct {
	value   string
	numeric bool
}

// NumericLeadID builds the positional id assigned to leads without one.
func NumericLeadID(n int) LeadID {
	return LeadID{value: strconv.Itoa(n), numeric: true}
}

func (id LeadID) String() string { return id.value }

func (id *LeadID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty lead id")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = LeadID{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("lead id must be a string or number: %w", err)
	}
	*id = LeadID{value: n.String(), numeric: true}
	return nil
}

func (id LeadID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// LeadRequest is one lead in a prediction request.
type LeadRequest struct {
	ID                *LeadID  `json:"id,omitempty"`
	Name              string   `json:"name" validate:"required"`
	Company           string   `json:"company" validate:"required"`
	Industry          string   `json:"industry" validate:"required"`
	Size              string   `json:"size" validate:"required"`
	LastContact       string   `json:"lastContact" validate:"required"`
	Email             string   `json:"email,omitempty" validate:"omitempty,email"`
	Position          string   `json:"position,omitempty"`
	Budget            *float64 `json:"budget,omitempty" validate:"omitempty,gte=0"`
	PreviousPurchases *int     `json:"previousPurchases,omitempty" validate:"omitempty,gte=0,lte=2147483647"`
	Interactions      *int     `json:"interactions,omitempty" validate:"omitempty,gte=0,lte=2147483647"`
}

// PredictRequest is the body of a scoring call.
type PredictRequest struct {
	Leads     []LeadRequest `json:"leads" validate:"required,dive"`
	ModelType string        `json:"modelType"`
}

// PredictionResponse is one scored lead.
type PredictionResponse struct {
	ID                    LeadID  `json:"id"`
	Name                  string  `json:"name"`
	Company               string  `json:"company"`
	Industry              string  `json:"industry"`
	Size                  string  `json:"size"`
	ConversionProbability float64 `json:"conversionProbability"`
	Score                 int     `json:"score"`
	LastContact           string  `json:"lastContact"`
}

// FeatureImportanceResponse is one importance entry.
type FeatureImportanceResponse struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// MetricsResponse carries holdout metrics.
type MetricsResponse struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1Score"`
}

// ClusterResponse is one segment point.
type ClusterResponse struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Name string  `json:"name"`
}

// ModelInfo identifies the artifact that produced a result.
type ModelInfo struct {
	Kind      string    `json:"kind"`
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trainedAt"`
}

// PredictResponse is the body returned by a scoring call.
type PredictResponse struct {
	Predictions          []PredictionResponse        `json:"predictions"`
	FeatureImportance    []FeatureImportanceResponse `json:"featureImportance"`
	ImportanceProvenance string                      `json:"importanceProvenance"`
	ModelMetrics         MetricsResponse             `json:"modelMetrics"`
	ClusterAnalysis      []ClusterResponse           `json:"clusterAnalysis"`
	Model                ModelInfo                   `json:"model"`
}

// OutcomeRequest is one labelled lead reported back by the dashboard.
type OutcomeRequest struct {
	Lead       LeadRequest `json:"lead" validate:"required"`
	Converted  *bool       `json:"converted" validate:"required"`
	ObservedAt *time.Time  `json:"observedAt,omitempty"`
}

// RecordOutcomesRequest is the body of the outcome feedback call.
type RecordOutcomesRequest struct {
	Outcomes []OutcomeRequest `json:"outcomes" validate:"required,min=1,dive"`
}

// RecordOutcomesResponse acknowledges recorded outcomes.
type RecordOutcomesResponse struct {
	Recorded int `json:"recorded"`
}

// ModelSummaryResponse describes a stored artifact without its parameters.
type ModelSummaryResponse struct {
	ID                   string                      `json:"id"`
	Kind                 string                      `json:"kind"`
	Version              string                      `json:"version"`
	TrainedAt            time.Time                   `json:"trainedAt"`
	TrainingRows         int                         `json:"trainingRows"`
	Metrics              MetricsResponse             `json:"metrics"`
	FeatureImportance    []FeatureImportanceResponse `json:"featureImportance"`
	ImportanceProvenance string                      `json:"importanceProvenance"`
}

// ListModelsResponse lists stored artifacts.
type ListModelsResponse struct {
	Models []ModelSummaryResponse `json:"models"`
}

// RetrainResponse reports a retrain request.
// Queued is true when the work was handed to the background worker.
type RetrainResponse struct {
	Kind   string                `json:"kind"`
	Queued bool                  `json:"queued"`
	Model  *ModelSummaryResponse `json:"model,omitempty"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
