package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"lead_scoring_backend/internal/scoring/domain"
)

type envelope struct {
	Kind   domain.ModelKind `json:"kind"`
	Params json.RawMessage  `json:"params"`
}

// Marshal encodes a fitted classifier with its kind so Unmarshal can restore it.
func Marshal(c Classifier) ([]byte, error) {
	params, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s parameters: %w", c.Kind(), err)
	}
	return json.Marshal(envelope{Kind: c.Kind(), Params: params})
}

// Unmarshal restores a classifier produced by Marshal.
func Unmarshal(data []byte) (Classifier, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}

	var c Classifier
	switch env.Kind {
	case domain.ModelLogisticRegression:
		c = &LogisticRegression{}
	case domain.ModelRandomForest:
		c = &RandomForest{}
	default:
		return nil, fmt.Errorf("decode model envelope: unknown kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Params, c); err != nil {
		return nil, fmt.Errorf("decode %s parameters: %w", env.Kind, err)
	}
	return c, nil
}

// Validate checks that decoded parameters fit rows of the given width and
// that every tree is a well formed node list, so prediction cannot index out
// of range or loop.
func Validate(c Classifier, columns int) error {
	switch m := c.(type) {
	case *LogisticRegression:
		if len(m.Weights) != columns {
			return fmt.Errorf("logistic regression has %d weights, want %d", len(m.Weights), columns)
		}
	case *RandomForest:
		if m.Columns != columns {
			return fmt.Errorf("random forest expects %d columns, want %d", m.Columns, columns)
		}
		if len(m.Trees) == 0 {
			return errors.New("random forest has no trees")
		}
		for i, t := range m.Trees {
			if err := t.validate(columns); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	}
	return nil
}
