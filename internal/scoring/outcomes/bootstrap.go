package outcomes

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"lead_scoring_backend/internal/scoring/domain"
)

var (
	bootstrapSizes      = []string{"small", "medium", "large", "enterprise"}
	bootstrapIndustries = []string{"technology", "healthcare", "finance", "education", "manufacturing", "retail", "logistics"}
	bootstrapEpoch      = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Bootstrap generates n labelled leads from seed. The same (n, seed) always
// yields the same rows.
//
// Conversion is drawn from sigmoid(z) with
//
//	z = -2 + 0.00004*budget + 0.35*purchases + 0.12*interactions
//	    - 0.05*daysSinceContact + sizeBonus
//
// where sizeBonus is 0.3 for large and 0.6 for enterprise companies.
func Bootstrap(n int, seed uint64) []domain.Outcome {
	rng := rand.New(rand.NewPCG(seed, 0xb007))
	out := make([]domain.Outcome, n)

	for i := range out {
		size := bootstrapSizes[rng.IntN(len(bootstrapSizes))]
		industry := bootstrapIndustries[rng.IntN(len(bootstrapIndustries))]
		budget := float64(1000 + rng.IntN(49001))
		purchases := rng.IntN(6)
		interactions := rng.IntN(21)
		days := 1 + rng.IntN(60)

		observed := bootstrapEpoch.Add(time.Duration(i) * time.Hour)
		contacted := observed.AddDate(0, 0, -days)

		z := -2 + 0.00004*budget + 0.35*float64(purchases) + 0.12*float64(interactions) - 0.05*float64(days)
		switch size {
		case "large":
			z += 0.3
		case "enterprise":
			z += 0.6
		}
		p := 1 / (1 + math.Exp(-z))

		out[i] = domain.Outcome{
			Lead: domain.Lead{
				ID:                fmt.Sprintf("bootstrap-%d", i),
				Name:              fmt.Sprintf("Lead %d", i),
				Company:           fmt.Sprintf("Company %d", i),
				Industry:          industry,
				Size:              size,
				LastContact:       contacted.Format("2006-01-02"),
				Budget:            &budget,
				PreviousPurchases: &purchases,
				Interactions:      &interactions,
			},
			Converted:  rng.Float64() < p,
			ObservedAt: observed,
		}
	}
	return out
}
