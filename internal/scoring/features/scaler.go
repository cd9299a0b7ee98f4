package features

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptyMatrix is returned when fitting on no rows.
var ErrEmptyMatrix = errors.New("cannot fit scaler on an empty matrix")

// DimensionError reports a row whose width differs from the fitted column count.
type DimensionError struct {
	Row      int
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("row %d has %d columns, scaler expects %d", e.Row, e.Got, e.Expected)
}

// Scaler standardises columns to zero mean and unit variance.
// Fields are exported for persistence; a fitted scaler is never mutated.
type Scaler struct {
	Means   []float64 `json:"means"`
	StdDevs []float64 `json:"stdDevs"`
}

// FitScaler computes per-column means and population standard deviations.
func FitScaler(matrix [][]float64) (*Scaler, error) {
	if len(matrix) == 0 {
		return nil, ErrEmptyMatrix
	}
	cols := len(matrix[0])
	if cols == 0 {
		return nil, ErrEmptyMatrix
	}

	means := make([]float64, cols)
	for i, row := range matrix {
		if len(row) != cols {
			return nil, &DimensionError{Row: i, Expected: cols, Got: len(row)}
		}
		for j, x := range row {
			means[j] += x
		}
	}
	n := float64(len(matrix))
	for j := range means {
		means[j] /= n
	}

	stddevs := make([]float64, cols)
	for _, row := range matrix {
		for j, x := range row {
			d := x - means[j]
			stddevs[j] += d * d
		}
	}
	for j := range stddevs {
		stddevs[j] = math.Sqrt(stddevs[j] / n)
	}

	return &Scaler{Means: means, StdDevs: stddevs}, nil
}

// FitTransform fits a scaler on matrix and returns it with the scaled matrix.
func FitTransform(matrix [][]float64) (*Scaler, [][]float64, error) {
	s, err := FitScaler(matrix)
	if err != nil {
		return nil, nil, err
	}
	scaled, err := s.Transform(matrix)
	if err != nil {
		return nil, nil, err
	}
	return s, scaled, nil
}

// Columns returns the fitted column count.
func (s *Scaler) Columns() int {
	return len(s.Means)
}

// Transform standardises matrix with the fitted statistics.
// Zero-variance columns come out as 0.
func (s *Scaler) Transform(matrix [][]float64) ([][]float64, error) {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		if len(row) != s.Columns() {
			return nil, &DimensionError{Row: i, Expected: s.Columns(), Got: len(row)}
		}
		scaled := make([]float64, len(row))
		for j, x := range row {
			if s.StdDevs[j] == 0 {
				continue
			}
			scaled[j] = (x - s.Means[j]) / s.StdDevs[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// Inverse maps standardised rows back to raw units.
func (s *Scaler) Inverse(matrix [][]float64) ([][]float64, error) {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		if len(row) != s.Columns() {
			return nil, &DimensionError{Row: i, Expected: s.Columns(), Got: len(row)}
		}
		raw := make([]float64, len(row))
		for j, z := range row {
			raw[j] = z*s.StdDevs[j] + s.Means[j]
		}
		out[i] = raw
	}
	return out, nil
}
