package model

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
)

// ForestParams configures random forest training.
// MaxFeatures of 0 means sqrt of the column count.
type ForestParams struct {
	Trees          int `yaml:"trees" json:"trees"`
	MaxDepth       int `yaml:"maxDepth" json:"maxDepth"`
	MinSamplesLeaf int `yaml:"minSamplesLeaf" json:"minSamplesLeaf"`
	MaxFeatures    int `yaml:"maxFeatures" json:"maxFeatures"`
}

// DefaultForestParams returns the built-in hyperparameters.
func DefaultForestParams() ForestParams {
	return ForestParams{Trees: 50, MaxDepth: 6, MinSamplesLeaf: 2}
}

// RandomForest averages the leaf probabilities of bagged CART trees.
type RandomForest struct {
	Trees       []*Tree   `json:"trees"`
	Columns     int       `json:"columns"`
	Importances []float64 `json:"importances"`
}

// FitForest grows p.Trees trees concurrently. Each tree draws its bootstrap
// sample and feature subsets from its own RNG seeded by (seed, tree index),
// so the result does not depend on scheduling.
func FitForest(ctx context.Context, rows [][]float64, labels []bool, p ForestParams, seed uint64) (*RandomForest, error) {
	n := len(rows)
	if n == 0 {
		return nil, features.ErrEmptyMatrix
	}
	cols := len(rows[0])
	for i, row := range rows {
		if len(row) != cols {
			return nil, &features.DimensionError{Row: i, Expected: cols, Got: len(row)}
		}
	}

	maxFeatures := p.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > cols {
		maxFeatures = int(math.Max(1, math.Round(math.Sqrt(float64(cols)))))
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}

	trees := make([]*Tree, p.Trees)
	perTree := make([][]float64, p.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < p.Trees; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(t)))
			sample := make([]int, n)
			for i := range sample {
				sample[i] = rng.IntN(n)
			}
			tree, imp := growTree(rows, labels, sample, p, maxFeatures, rng)
			trees[t] = tree
			perTree[t] = normalizeAbs(imp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mean := make([]float64, cols)
	for _, imp := range perTree {
		for j, v := range imp {
			mean[j] += v
		}
	}

	return &RandomForest{Trees: trees, Columns: cols, Importances: normalizeAbs(mean)}, nil
}

func (f *RandomForest) Kind() domain.ModelKind {
	return domain.ModelRandomForest
}

// PredictProba averages tree probabilities per row.
func (f *RandomForest) PredictProba(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != f.Columns {
			return nil, &features.DimensionError{Row: i, Expected: f.Columns, Got: len(row)}
		}
		var sum float64
		for _, t := range f.Trees {
			sum += t.predict(row)
		}
		if len(f.Trees) > 0 {
			out[i] = sum / float64(len(f.Trees))
		}
	}
	return out, nil
}

// FeatureImportances reports mean decrease in impurity, summing to 1.
// It returns nil when no tree made a split.
func (f *RandomForest) FeatureImportances() []float64 {
	if f.Importances == nil {
		return nil
	}
	out := make([]float64, len(f.Importances))
	copy(out, f.Importances)
	return out
}
