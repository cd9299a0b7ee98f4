// Package features turns raw leads into numeric feature vectors and standardises them.
package features

import (
	"math"
	"strings"
	"time"

	"lead_scoring_backend/internal/scoring/domain"
)

// Imputation holds the fixed values substituted for missing lead attributes.
type Imputation struct {
	DaysSinceContact  float64 `yaml:"daysSinceContact"`
	Budget            float64 `yaml:"budget"`
	PreviousPurchases float64 `yaml:"previousPurchases"`
	Interactions      float64 `yaml:"interactions"`
}

// DefaultImputation uses the mid-points of the observed attribute ranges.
func DefaultImputation() Imputation {
	return Imputation{
		DaysSinceContact:  30,
		Budget:            25500,
		PreviousPurchases: 2,
		Interactions:      10,
	}
}

// Size and industry codes.
const (
	SizeDefault     = 2
	IndustryDefault = 0
)

var sizeCodes = map[string]float64{
	"small":      1,
	"medium":     2,
	"large":      3,
	"enterprise": 4,
}

var industryCodes = map[string]float64{
	"technology":    1,
	"healthcare":    2,
	"finance":       3,
	"education":     4,
	"manufacturing": 5,
	"retail":        6,
}

var contactLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Encoder maps leads to feature vectors. It holds no mutable state.
type Encoder struct {
	imputation Imputation
}

// NewEncoder creates an encoder with the given imputation policy.
func NewEncoder(imputation Imputation) *Encoder {
	return &Encoder{imputation: imputation}
}

// Imputation returns the policy the encoder applies.
func (e *Encoder) Imputation() Imputation {
	return e.imputation
}

// Encode derives the feature vector of lead relative to now.
func (e *Encoder) Encode(lead domain.Lead, now time.Time) domain.FeatureVector {
	var v domain.FeatureVector

	if days, ok := DaysSinceContact(lead.LastContact, now); ok {
		v[domain.FeatureDaysSinceContact] = float64(days)
	} else {
		v[domain.FeatureDaysSinceContact] = e.imputation.DaysSinceContact
	}

	v[domain.FeatureBudget] = e.imputation.Budget
	if lead.Budget != nil {
		v[domain.FeatureBudget] = *lead.Budget
	}
	v[domain.FeaturePreviousPurchases] = e.imputation.PreviousPurchases
	if lead.PreviousPurchases != nil {
		v[domain.FeaturePreviousPurchases] = float64(*lead.PreviousPurchases)
	}
	v[domain.FeatureInteractions] = e.imputation.Interactions
	if lead.Interactions != nil {
		v[domain.FeatureInteractions] = float64(*lead.Interactions)
	}

	v[domain.FeatureCompanySize] = SizeCode(lead.Size)
	v[domain.FeatureIndustry] = IndustryCode(lead.Industry)
	return v
}

// EncodeBatch encodes leads in order.
func (e *Encoder) EncodeBatch(leads []domain.Lead, now time.Time) []domain.FeatureVector {
	out := make([]domain.FeatureVector, len(leads))
	for i, lead := range leads {
		out[i] = e.Encode(lead, now)
	}
	return out
}

// EncodeOutcomes encodes historical rows, each against its own observation time.
func (e *Encoder) EncodeOutcomes(outcomes []domain.Outcome) ([]domain.FeatureVector, []bool) {
	vectors := make([]domain.FeatureVector, len(outcomes))
	labels := make([]bool, len(outcomes))
	for i, o := range outcomes {
		vectors[i] = e.Encode(o.Lead, o.ObservedAt)
		labels[i] = o.Converted
	}
	return vectors, labels
}

// SizeCode maps a company size label to its code; unknown labels map to medium.
func SizeCode(size string) float64 {
	if code, ok := sizeCodes[normalize(size)]; ok {
		return code
	}
	return SizeDefault
}

// IndustryCode maps an industry label to its code; unknown labels map to 0.
func IndustryCode(industry string) float64 {
	if code, ok := industryCodes[normalize(industry)]; ok {
		return code
	}
	return IndustryDefault
}

// ParseContactDate parses a last-contact value in any accepted layout.
func ParseContactDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range contactLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysSinceContact returns whole elapsed days between the contact date and now.
// Future dates count as zero days.
func DaysSinceContact(raw string, now time.Time) (int, bool) {
	contacted, ok := ParseContactDate(raw)
	if !ok {
		return 0, false
	}
	elapsed := now.Sub(contacted)
	if elapsed <= 0 {
		return 0, true
	}
	return int(math.Floor(elapsed.Hours() / 24)), true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
