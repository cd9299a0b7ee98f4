// Package profile loads the tunable scoring settings from an optional YAML file.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"lead_scoring_backend/internal/scoring/cluster"
	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
	"lead_scoring_backend/internal/scoring/model"
)

// Profile holds imputation, training and clustering settings.
type Profile struct {
	Imputation    features.Imputation `yaml:"imputation"`
	Training      model.Params        `yaml:"training"`
	MaxClusters   int                 `yaml:"maxClusters"`
	BootstrapRows int                 `yaml:"bootstrapRows"`
}

// Default returns the built-in profile.
func Default() Profile {
	return Profile{
		Imputation:    features.DefaultImputation(),
		Training:      model.DefaultParams(),
		MaxClusters:   cluster.DefaultMaxClusters,
		BootstrapRows: 500,
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Profile, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read scoring profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return Profile{}, fmt.Errorf("scoring profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes YAML over the defaults; keys that are absent keep their
// default and unknown keys are rejected.
func Parse(data []byte) (Profile, error) {
	p := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks every setting is usable.
func (p Profile) Validate() error {
	var errs []error
	imp := p.Imputation
	if imp.DaysSinceContact < 0 || imp.Budget < 0 || imp.PreviousPurchases < 0 || imp.Interactions < 0 {
		errs = append(errs, errors.New("imputation values must be non-negative"))
	}

	lr := p.Training.Logistic
	if lr.LearningRate <= 0 {
		errs = append(errs, errors.New("training.logisticRegression.learningRate must be positive"))
	}
	if lr.Epochs < 1 {
		errs = append(errs, errors.New("training.logisticRegression.epochs must be at least 1"))
	}
	if lr.L2 < 0 {
		errs = append(errs, errors.New("training.logisticRegression.l2 must be non-negative"))
	}

	rf := p.Training.Forest
	if rf.Trees < 1 {
		errs = append(errs, errors.New("training.randomForest.trees must be at least 1"))
	}
	if rf.MaxDepth < 1 {
		errs = append(errs, errors.New("training.randomForest.maxDepth must be at least 1"))
	}
	if rf.MinSamplesLeaf < 1 {
		errs = append(errs, errors.New("training.randomForest.minSamplesLeaf must be at least 1"))
	}
	if rf.MaxFeatures < 0 || rf.MaxFeatures > domain.FeatureCount {
		errs = append(errs, fmt.Errorf("training.randomForest.maxFeatures must be between 0 and %d", domain.FeatureCount))
	}

	if p.MaxClusters < 1 || p.MaxClusters > 10 {
		errs = append(errs, errors.New("maxClusters must be between 1 and 10"))
	}
	if p.BootstrapRows < 20 {
		errs = append(errs, errors.New("bootstrapRows must be at least 20"))
	}
	return errors.Join(errs...)
}
