// Package ports defines the interfaces the scoring domain needs from the
// rest of the system. Implementations are wired by the composition root.
package ports

import (
	"context"

	"lead_scoring_backend/internal/scoring/domain"
)

// HistoricalOutcomes supplies the labelled leads models are trained on.
// Row order is significant: it feeds the training-data fingerprint.
type HistoricalOutcomes interface {
	Load(ctx context.Context) ([]domain.Outcome, error)
}

// OutcomeRecorder appends newly observed outcomes.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcomes []domain.Outcome) error
}

// OutcomeStore is both ends of the outcome history.
type OutcomeStore interface {
	HistoricalOutcomes
	OutcomeRecorder
}

// RetrainScheduler queues background retraining for a model kind.
// The implementation is provided by the scheduler package.
type RetrainScheduler interface {
	EnqueueRetrain(ctx context.Context, kind domain.ModelKind, reason string) error
}
