package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
	"lead_scoring_backend/platform/apperr"
)

// holdoutFraction is the share of each class kept back for evaluation.
const holdoutFraction = 0.2

// Params bundles every training hyperparameter.
type Params struct {
	Seed     uint64         `yaml:"seed" json:"seed"`
	Logistic LogisticParams `yaml:"logisticRegression" json:"logisticRegression"`
	Forest   ForestParams   `yaml:"randomForest" json:"randomForest"`
}

// DefaultParams returns the built-in hyperparameters.
func DefaultParams() Params {
	return Params{
		Seed:     42,
		Logistic: DefaultLogisticParams(),
		Forest:   DefaultForestParams(),
	}
}

// TrainResult is a fitted classifier with the scaler its inputs need.
type TrainResult struct {
	Model        Classifier
	Scaler       *features.Scaler
	Metrics      domain.Metrics
	TrainingRows int
	HoldoutRows  int
}

// Trainer fits classifiers on labelled feature vectors.
type Trainer struct {
	params Params
}

// NewTrainer creates a trainer with fixed hyperparameters.
func NewTrainer(params Params) *Trainer {
	return &Trainer{params: params}
}

// Train fits a classifier of the given kind. The data is split 80/20 per
// class, the scaler is fit on the training part only, and metrics come from
// the holdout. Cancellation of ctx surfaces as a timeout error.
func (t *Trainer) Train(ctx context.Context, kind domain.ModelKind, vectors []domain.FeatureVector, labels []bool) (*TrainResult, error) {
	switch kind {
	case domain.ModelLogisticRegression, domain.ModelRandomForest:
	default:
		return nil, apperr.UnsupportedModel(string(kind)).WithOp("model.Train")
	}
	if len(vectors) != len(labels) {
		return nil, apperr.Internal(fmt.Sprintf("%d vectors but %d labels", len(vectors), len(labels))).WithOp("model.Train")
	}
	if err := checkClasses(labels); err != nil {
		return nil, err
	}

	trainIdx, testIdx := stratifiedSplit(labels, t.params.Seed)
	trainRows, trainLabels := pick(vectors, labels, trainIdx)
	testRows, testLabels := pick(vectors, labels, testIdx)

	scaler, scaledTrain, err := features.FitTransform(trainRows)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fit scaler", err).WithOp("model.Train")
	}
	scaledTest, err := scaler.Transform(testRows)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scale holdout", err).WithOp("model.Train")
	}

	var clf Classifier
	switch kind {
	case domain.ModelLogisticRegression:
		clf, err = FitLogistic(ctx, scaledTrain, trainLabels, t.params.Logistic)
	case domain.ModelRandomForest:
		clf, err = FitForest(ctx, scaledTrain, trainLabels, t.params.Forest, t.params.Seed)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, apperr.Timeout("training did not finish", err).WithOp("model.Train")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "fit model", err).WithOp("model.Train")
	}

	probs, err := clf.PredictProba(scaledTest)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "evaluate holdout", err).WithOp("model.Train")
	}

	return &TrainResult{
		Model:        clf,
		Scaler:       scaler,
		Metrics:      Evaluate(probs, testLabels),
		TrainingRows: len(trainIdx),
		HoldoutRows:  len(testIdx),
	}, nil
}

func checkClasses(labels []bool) error {
	if len(labels) == 0 {
		return apperr.DegenerateTraining("no historical outcomes").WithOp("model.Train")
	}
	pos := 0
	for _, l := range labels {
		if l {
			pos++
		}
	}
	neg := len(labels) - pos
	if pos == 0 || neg == 0 {
		return apperr.DegenerateTraining("outcomes contain a single class").WithOp("model.Train")
	}
	if pos < 2 || neg < 2 {
		return apperr.DegenerateTraining("each class needs at least 2 outcomes").WithOp("model.Train")
	}
	return nil
}

// stratifiedSplit shuffles each class with a seeded RNG and holds out
// round(20%) of it, keeping at least one row of each class on both sides.
func stratifiedSplit(labels []bool, seed uint64) (train, test []int) {
	var pos, neg []int
	for i, l := range labels {
		if l {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	for _, class := range [][]int{pos, neg} {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		hold := int(float64(len(class))*holdoutFraction + 0.5)
		if hold < 1 {
			hold = 1
		}
		if hold > len(class)-1 {
			hold = len(class) - 1
		}
		test = append(test, class[:hold]...)
		train = append(train, class[hold:]...)
	}
	return train, test
}

func pick(vectors []domain.FeatureVector, labels []bool, idx []int) ([][]float64, []bool) {
	rows := make([][]float64, len(idx))
	out := make([]bool, len(idx))
	for k, i := range idx {
		rows[k] = vectors[i].Slice()
		out[k] = labels[i]
	}
	return rows, out
}
