package model

import (
	"context"
	"math"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
)

// LogisticParams configures gradient descent for logistic regression.
type LogisticParams struct {
	LearningRate float64 `yaml:"learningRate" json:"learningRate"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	L2           float64 `yaml:"l2" json:"l2"`
}

// DefaultLogisticParams returns the built-in hyperparameters.
func DefaultLogisticParams() LogisticParams {
	return LogisticParams{LearningRate: 0.1, Epochs: 1000, L2: 0.01}
}

// LogisticRegression is a fitted L2-regularised logistic model.
type LogisticRegression struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// FitLogistic runs batch gradient descent over rows. ctx is checked once per epoch.
func FitLogistic(ctx context.Context, rows [][]float64, labels []bool, p LogisticParams) (*LogisticRegression, error) {
	n := len(rows)
	if n == 0 {
		return nil, features.ErrEmptyMatrix
	}
	cols := len(rows[0])
	w := make([]float64, cols)
	grad := make([]float64, cols)
	var b float64

	for epoch := 0; epoch < p.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := range grad {
			grad[j] = 0
		}
		var gradB float64
		for i, row := range rows {
			if len(row) != cols {
				return nil, &features.DimensionError{Row: i, Expected: cols, Got: len(row)}
			}
			diff := sigmoid(dot(w, row)+b) - label(labels[i])
			for j, x := range row {
				grad[j] += diff * x
			}
			gradB += diff
		}
		for j := range w {
			w[j] -= p.LearningRate * (grad[j]/float64(n) + p.L2*w[j])
		}
		b -= p.LearningRate * gradB / float64(n)
	}

	return &LogisticRegression{Weights: w, Bias: b}, nil
}

func (m *LogisticRegression) Kind() domain.ModelKind {
	return domain.ModelLogisticRegression
}

// PredictProba returns sigmoid(w·x + b) per row.
func (m *LogisticRegression) PredictProba(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(m.Weights) {
			return nil, &features.DimensionError{Row: i, Expected: len(m.Weights), Got: len(row)}
		}
		out[i] = sigmoid(dot(m.Weights, row) + m.Bias)
	}
	return out, nil
}

// FeatureImportances reports normalised absolute coefficients.
func (m *LogisticRegression) FeatureImportances() []float64 {
	return normalizeAbs(m.Weights)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func label(converted bool) float64 {
	if converted {
		return 1
	}
	return 0
}
