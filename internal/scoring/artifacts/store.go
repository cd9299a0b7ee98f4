// Package artifacts versions and caches fitted models keyed by model kind and
// training-data fingerprint.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
	"lead_scoring_backend/internal/scoring/model"
)

// ErrNotFound is returned when no artifact exists for a key.
var ErrNotFound = errors.New("artifact not found")

// Key identifies an artifact.
type Key struct {
	Kind        domain.ModelKind
	Fingerprint string
}

func (k Key) String() string {
	return string(k.Kind) + "/" + k.Fingerprint
}

// Artifact is a fitted classifier together with the scaler its inputs need.
// Artifacts are immutable once stored and shared read-only between calls.
type Artifact struct {
	ID           uuid.UUID
	Kind         domain.ModelKind
	Fingerprint  string
	Version      string
	TrainedAt    time.Time
	TrainingRows int
	Metrics      domain.Metrics
	Importance   []domain.FeatureImportance
	Provenance   domain.ImportanceProvenance
	Scaler       *features.Scaler
	Model        model.Classifier
}

// Key returns the artifact's store key.
func (a *Artifact) Key() Key {
	return Key{Kind: a.Kind, Fingerprint: a.Fingerprint}
}

// Store persists artifacts.
type Store interface {
	Get(ctx context.Context, key Key) (*Artifact, error)
	Put(ctx context.Context, a *Artifact) error
	// Invalidate drops every artifact of kind and reports how many were removed.
	Invalidate(ctx context.Context, kind domain.ModelKind) (int, error)
	List(ctx context.Context) ([]*Artifact, error)
}

// VersionFor formats the human readable version of an artifact.
func VersionFor(kind domain.ModelKind, fingerprint string) string {
	short := fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s@%s", kind, short)
}

// Fingerprint hashes the training inputs. Any change in rows, their order,
// or the supplied settings yields a different value.
func Fingerprint(outcomes []domain.Outcome, settings ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, s := range settings {
		if err := enc.Encode(s); err != nil {
			return "", fmt.Errorf("fingerprint settings: %w", err)
		}
	}
	for _, o := range outcomes {
		row := outcomeRow{
			Lead:       o.Lead,
			Converted:  o.Converted,
			ObservedAt: o.ObservedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := enc.Encode(row); err != nil {
			return "", fmt.Errorf("fingerprint outcome: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type outcomeRow struct {
	Lead       domain.Lead
	Converted  bool
	ObservedAt string
}

// record is the persisted form of an artifact.
type record struct {
	ID           uuid.UUID                   `json:"id"`
	Kind         domain.ModelKind            `json:"kind"`
	Fingerprint  string                      `json:"fingerprint"`
	Version      string                      `json:"version"`
	TrainedAt    time.Time                   `json:"trainedAt"`
	TrainingRows int                         `json:"trainingRows"`
	Metrics      metricsRecord               `json:"metrics"`
	Importance   []importanceRecord          `json:"importance"`
	Provenance   domain.ImportanceProvenance `json:"provenance"`
	Scaler       *features.Scaler            `json:"scaler"`
	Model        json.RawMessage             `json:"model"`
}

type metricsRecord struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1Score"`
}

type importanceRecord struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Encode serialises an artifact to JSON.
func Encode(a *Artifact) ([]byte, error) {
	m, err := model.Marshal(a.Model)
	if err != nil {
		return nil, err
	}
	imp := make([]importanceRecord, len(a.Importance))
	for i, fi := range a.Importance {
		imp[i] = importanceRecord{Name: fi.Name, Value: fi.Value}
	}
	return json.Marshal(record{
		ID:           a.ID,
		Kind:         a.Kind,
		Fingerprint:  a.Fingerprint,
		Version:      a.Version,
		TrainedAt:    a.TrainedAt,
		TrainingRows: a.TrainingRows,
		Metrics:      metricsRecord(a.Metrics),
		Importance:   imp,
		Provenance:   a.Provenance,
		Scaler:       a.Scaler,
		Model:        m,
	})
}

// Decode restores an artifact written by Encode.
func Decode(data []byte) (*Artifact, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	clf, err := model.Unmarshal(r.Model)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", r.Version, err)
	}
	if r.Scaler == nil {
		return nil, fmt.Errorf("decode artifact %s: missing scaler", r.Version)
	}
	if len(r.Scaler.Means) != domain.FeatureCount || len(r.Scaler.StdDevs) != domain.FeatureCount {
		return nil, fmt.Errorf("decode artifact %s: scaler has %d means and %d deviations, want %d",
			r.Version, len(r.Scaler.Means), len(r.Scaler.StdDevs), domain.FeatureCount)
	}
	if err := model.Validate(clf, domain.FeatureCount); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", r.Version, err)
	}
	imp := make([]domain.FeatureImportance, len(r.Importance))
	for i, fi := range r.Importance {
		imp[i] = domain.FeatureImportance{Name: fi.Name, Value: fi.Value}
	}
	return &Artifact{
		ID:           r.ID,
		Kind:         r.Kind,
		Fingerprint:  r.Fingerprint,
		Version:      r.Version,
		TrainedAt:    r.TrainedAt,
		TrainingRows: r.TrainingRows,
		Metrics:      domain.Metrics(r.Metrics),
		Importance:   imp,
		Provenance:   r.Provenance,
		Scaler:       r.Scaler,
		Model:        clf,
	}, nil
}
