// Package cluster segments a lead batch on the value/volume plane.
package cluster

import (
	"math"
	"sort"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
)

const (
	// DefaultMaxClusters caps the number of segments.
	DefaultMaxClusters = 5
	maxIterations      = 100

	lowBand    = 40.0
	mediumBand = 65.0
)

// Summarizer runs k-means over budget (value) and engagement (volume).
type Summarizer struct {
	maxClusters int
}

// NewSummarizer creates a summarizer; maxClusters below 1 uses the default.
func NewSummarizer(maxClusters int) *Summarizer {
	if maxClusters < 1 {
		maxClusters = DefaultMaxClusters
	}
	return &Summarizer{maxClusters: maxClusters}
}

type point struct{ value, volume float64 }

// Summarize returns one segment per non-empty cluster, largest first.
// X and Y are the centroid in raw units min-max scaled to 0-100 across the
// batch, Z is the share of leads in percent. An empty batch yields nil.
func (s *Summarizer) Summarize(vectors []domain.FeatureVector) []domain.ClusterSegment {
	n := len(vectors)
	if n == 0 {
		return nil
	}

	raw := make([][]float64, n)
	for i, v := range vectors {
		raw[i] = []float64{
			v[domain.FeatureBudget],
			v[domain.FeatureInteractions] + v[domain.FeaturePreviousPurchases],
		}
	}
	_, scaled, err := features.FitTransform(raw)
	if err != nil {
		return nil
	}

	pts := make([]point, n)
	for i, row := range scaled {
		pts[i] = point{row[0], row[1]}
	}

	k := chooseK(n, s.maxClusters)
	centroids := seed(pts, k)
	assign := lloyd(pts, centroids)

	return segments(raw, assign, len(centroids))
}

// chooseK applies round(sqrt(n/2)) clamped to [1, limit].
func chooseK(n, limit int) int {
	k := int(math.Round(math.Sqrt(float64(n) / 2)))
	if k < 1 {
		k = 1
	}
	if k > limit {
		k = limit
	}
	return k
}

// seed spreads initial centroids across distinct points ordered by
// value+volume, taking the midpoint of each of k equal quantile bands.
func seed(pts []point, k int) []point {
	seen := make(map[point]struct{}, len(pts))
	var distinct []point
	for _, p := range pts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		distinct = append(distinct, p)
	}
	sort.Slice(distinct, func(i, j int) bool {
		si, sj := distinct[i].value+distinct[i].volume, distinct[j].value+distinct[j].volume
		if si != sj {
			return si < sj
		}
		return distinct[i].value < distinct[j].value
	})

	if k > len(distinct) {
		k = len(distinct)
	}
	m := len(distinct)
	centroids := make([]point, k)
	for c := range centroids {
		centroids[c] = distinct[(2*c+1)*m/(2*k)]
	}
	return centroids
}

func lloyd(pts []point, centroids []point) []int {
	assign := make([]int, len(pts))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range pts {
			best, bestDist := 0, math.Inf(1)
			for c, ctr := range centroids {
				d := (p.value-ctr.value)*(p.value-ctr.value) + (p.volume-ctr.volume)*(p.volume-ctr.volume)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([]point, len(centroids))
		counts := make([]int, len(centroids))
		for i, p := range pts {
			c := assign[i]
			sums[c].value += p.value
			sums[c].volume += p.volume
			counts[c]++
		}
		for c := range centroids {
			// An emptied cluster keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			centroids[c] = point{sums[c].value / float64(counts[c]), sums[c].volume / float64(counts[c])}
		}
	}
	return assign
}

func segments(raw [][]float64, assign []int, k int) []domain.ClusterSegment {
	minV, maxV := raw[0][0], raw[0][0]
	minU, maxU := raw[0][1], raw[0][1]
	for _, r := range raw {
		minV, maxV = math.Min(minV, r[0]), math.Max(maxV, r[0])
		minU, maxU = math.Min(minU, r[1]), math.Max(maxU, r[1])
	}

	type acc struct {
		value, volume float64
		count         int
	}
	accs := make([]acc, k)
	for i, c := range assign {
		accs[c].value += raw[i][0]
		accs[c].volume += raw[i][1]
		accs[c].count++
	}
	sort.SliceStable(accs, func(i, j int) bool { return accs[i].count > accs[j].count })

	n := float64(len(raw))
	var out []domain.ClusterSegment
	for _, a := range accs {
		if a.count == 0 {
			continue
		}
		x := rescale(a.value/float64(a.count), minV, maxV)
		y := rescale(a.volume/float64(a.count), minU, maxU)
		out = append(out, domain.ClusterSegment{
			X:    x,
			Y:    y,
			Z:    math.Round(100 * float64(a.count) / n),
			Name: band(x) + " Value, " + band(y) + " Volume",
		})
	}
	return out
}

// rescale maps v into 0-100 over [lo, hi], rounded to one decimal.
// A degenerate range maps to the midpoint.
func rescale(v, lo, hi float64) float64 {
	if hi == lo {
		return 50
	}
	return math.Round((v-lo)/(hi-lo)*1000) / 10
}

func band(v float64) string {
	switch {
	case v < lowBand:
		return "Low"
	case v < mediumBand:
		return "Medium"
	default:
		return "High"
	}
}
