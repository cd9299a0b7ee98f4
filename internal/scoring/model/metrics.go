package model

import "lead_scoring_backend/internal/scoring/domain"

// decisionThreshold is the probability at which a lead counts as converting.
const decisionThreshold = 0.5

// Evaluate compares predicted probabilities with actual labels.
// Undefined ratios (zero denominators) are reported as 0.
func Evaluate(probs []float64, actual []bool) domain.Metrics {
	var tp, fp, tn, fn int
	for i, p := range probs {
		predicted := p >= decisionThreshold
		switch {
		case predicted && actual[i]:
			tp++
		case predicted && !actual[i]:
			fp++
		case !predicted && actual[i]:
			fn++
		default:
			tn++
		}
	}

	m := domain.Metrics{
		Accuracy:  ratio(tp+tn, tp+tn+fp+fn),
		Precision: ratio(tp, tp+fp),
		Recall:    ratio(tp, tp+fn),
	}
	if m.Precision+m.Recall > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
