// Package domain holds the lead scoring entities shared by every stage of the pipeline.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Lead is a prospective customer record as submitted for scoring.
type Lead struct {
	ID                string
	Name              string
	Company           string
	Industry          string
	Size              string
	LastContact       string
	Email             string
	Position          string
	Budget            *float64
	PreviousPurchases *int
	Interactions      *int
}

// Outcome is a historical lead with its observed conversion result.
// Recency for the lead is measured against ObservedAt, not the training time.
type Outcome struct {
	Lead       Lead
	Converted  bool
	ObservedAt time.Time
}

// Feature slots, in schema order.
const (
	FeatureDaysSinceContact = iota
	FeatureBudget
	FeaturePreviousPurchases
	FeatureInteractions
	FeatureCompanySize
	FeatureIndustry

	FeatureCount
)

// FeatureNames lists the feature schema in slot order.
var FeatureNames = [FeatureCount]string{
	"days_since_contact",
	"budget",
	"previous_purchases",
	"interactions",
	"company_size_encoded",
	"industry_encoded",
}

// FeatureVector is the fixed numeric encoding of one lead.
type FeatureVector [FeatureCount]float64

// Slice returns the vector as a fresh slice for matrix code.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// Matrix converts vectors into a row-major matrix.
func Matrix(vectors []FeatureVector) [][]float64 {
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v.Slice()
	}
	return rows
}

// ScoredLead pairs a lead's display fields with its conversion estimate.
type ScoredLead struct {
	ID                    string
	Name                  string
	Company               string
	Industry              string
	Size                  string
	ConversionProbability float64
	Score                 int
	LastContact           string
}

// ScoreFromProbability converts a probability into the 0-100 display score.
func ScoreFromProbability(p float64) int {
	return int(math.Round(p * 100))
}

// FeatureImportance is one entry of an importance ranking.
type FeatureImportance struct {
	Name  string
	Value float64
}

// ImportanceProvenance tells whether importances came from the model.
type ImportanceProvenance string

const (
	ProvenanceComputed    ImportanceProvenance = "computed"
	ProvenanceApproximate ImportanceProvenance = "approximate"
)

// Metrics are holdout-set quality figures, each in [0,1].
type Metrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1Score   float64
}

// ClusterSegment is one labelled point of the population segmentation view.
// X is the value axis, Y the volume axis, Z the segment size.
type ClusterSegment struct {
	X    float64
	Y    float64
	Z    float64
	Name string
}

// ModelKind selects the classifier family.
type ModelKind string

const (
	ModelLogisticRegression ModelKind = "logistic-regression"
	ModelRandomForest       ModelKind = "random-forest"
	// ModelNeuralNetwork is a recognised selector with no backend; it is always rejected.
	ModelNeuralNetwork ModelKind = "neural-network"
)

// SupportedModelKinds lists the kinds that can actually be trained.
var SupportedModelKinds = []ModelKind{ModelLogisticRegression, ModelRandomForest}

// ParseModelKind normalises a selector string.
// Unknown and unimplemented kinds return an error naming the selector.
func ParseModelKind(raw string) (ModelKind, error) {
	kind := ModelKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range SupportedModelKinds {
		if k == kind {
			return k, nil
		}
	}
	if kind == ModelNeuralNetwork {
		return "", fmt.Errorf("model kind %q is not implemented", raw)
	}
	return "", fmt.Errorf("unknown model kind %q", raw)
}

// FeatureLabels are the display names used in importance rankings, in slot order.
var FeatureLabels = [FeatureCount]string{
	"Last Contact Recency",
	"Budget Size",
	"Previous Purchases",
	"Interactions",
	"Company Size",
	"Industry",
}

// FallbackImportance is the fixed illustrative ranking returned when a model
// exposes no usable weights. It must always be tagged ProvenanceApproximate.
func FallbackImportance() []FeatureImportance {
	return []FeatureImportance{
		{Name: "Last Contact Recency", Value: 0.32},
		{Name: "Budget Size", Value: 0.27},
		{Name: "Previous Purchases", Value: 0.18},
		{Name: "Company Size", Value: 0.15},
		{Name: "Industry", Value: 0.08},
	}
}
