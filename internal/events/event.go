// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"lead_scoring_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Scoring Domain Events
// =============================================================================

// OutcomesRecorded is published after labelled outcomes were appended to the history.
type OutcomesRecorded struct {
	BaseEvent
	Count     int `json:"count"`
	Converted int `json:"converted"`
}

func (e OutcomesRecorded) EventName() string { return "scoring.outcomes.recorded" }

// ModelTrained is published when a new artifact was trained and stored.
type ModelTrained struct {
	BaseEvent
	ArtifactID   uuid.UUID `json:"artifactId"`
	ModelKind    string    `json:"modelKind"`
	Version      string    `json:"version"`
	TrainingRows int       `json:"trainingRows"`
	Accuracy     float64   `json:"accuracy"`
}

func (e ModelTrained) EventName() string { return "scoring.model.trained" }

// ArtifactsInvalidated is published when stored artifacts of a kind were dropped.
type ArtifactsInvalidated struct {
	BaseEvent
	ModelKind string `json:"modelKind"`
	Reason    string `json:"reason"`
	Removed   int    `json:"removed"`
}

func (e ArtifactsInvalidated) EventName() string { return "scoring.artifacts.invalidated" }
