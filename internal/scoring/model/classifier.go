// Package model trains and evaluates the binary conversion classifiers.
package model

import (
	"lead_scoring_backend/internal/scoring/domain"
)

// Classifier estimates the positive-class probability for standardised rows.
// A fitted classifier is immutable and safe for concurrent use.
type Classifier interface {
	Kind() domain.ModelKind
	PredictProba(rows [][]float64) ([]float64, error)
}

// ImportanceReporter is implemented by classifiers that expose per-feature weights.
type ImportanceReporter interface {
	FeatureImportances() []float64
}

func sumAbs(values []float64) float64 {
	var total float64
	for _, v := range values {
		if v < 0 {
			total -= v
		} else {
			total += v
		}
	}
	return total
}

// normalizeAbs returns |v| scaled to sum to 1, or nil when every entry is zero.
func normalizeAbs(values []float64) []float64 {
	total := sumAbs(values)
	if total == 0 {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if v < 0 {
			v = -v
		}
		out[i] = v / total
	}
	return out
}
