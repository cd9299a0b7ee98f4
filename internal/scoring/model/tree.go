package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
)

// Node is one entry of a flattened decision tree. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Prob      float64 `json:"p"`
}

// Tree is a CART classifier stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Prob
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeBuilder struct {
	rows        [][]float64
	labels      []bool
	maxDepth    int
	minLeaf     int
	maxFeatures int
	rng         *rand.Rand

	nodes      []Node
	importance []float64
}

func growTree(rows [][]float64, labels []bool, sample []int, p ForestParams, maxFeatures int, rng *rand.Rand) (*Tree, []float64) {
	b := &treeBuilder{
		rows:        rows,
		labels:      labels,
		maxDepth:    p.MaxDepth,
		minLeaf:     p.MinSamplesLeaf,
		maxFeatures: maxFeatures,
		rng:         rng,
		importance:  make([]float64, len(rows[0])),
	}
	b.split(sample, 0)
	return &Tree{Nodes: b.nodes}, b.importance
}

func (b *treeBuilder) positives(idx []int) int {
	pos := 0
	for _, i := range idx {
		if b.labels[i] {
			pos++
		}
	}
	return pos
}

// split appends the subtree for idx and returns its node index.
func (b *treeBuilder) split(idx []int, depth int) int {
	self := len(b.nodes)
	pos := b.positives(idx)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Prob: float64(pos) / float64(len(idx))})

	if depth >= b.maxDepth || len(idx) < 2*b.minLeaf || pos == 0 || pos == len(idx) {
		return self
	}

	feature, threshold, gain := b.bestSplit(idx, pos)
	if feature < 0 || gain <= 1e-12 {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.importance[feature] += gain
	l := b.split(left, depth+1)
	r := b.split(right, depth+1)
	b.nodes[self].Feature = feature
	b.nodes[self].Threshold = threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}

// bestSplit scans a random subset of features for the split with the largest
// weighted Gini decrease. gain is expressed in sample-count units.
func (b *treeBuilder) bestSplit(idx []int, pos int) (int, float64, float64) {
	n := len(idx)
	parent := float64(n) * gini(pos, n)

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	candidates := b.rng.Perm(len(b.importance))[:b.maxFeatures]
	sorted := make([]int, n)

	for _, f := range candidates {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.rows[sorted[a]][f] < b.rows[sorted[c]][f]
		})

		leftPos := 0
		for k := 0; k < n-1; k++ {
			if b.labels[sorted[k]] {
				leftPos++
			}
			leftN := k + 1
			rightN := n - leftN
			lo, hi := b.rows[sorted[k]][f], b.rows[sorted[k+1]][f]
			if lo == hi || leftN < b.minLeaf || rightN < b.minLeaf {
				continue
			}
			child := float64(leftN)*gini(leftPos, leftN) + float64(rightN)*gini(pos-leftPos, rightN)
			if gain := parent - child; gain > bestGain {
				bestFeature, bestThreshold, bestGain = f, (lo+hi)/2, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

// validate relies on split's layout: children always follow their parent.
func (t *Tree) validate(columns int) error {
	if t == nil || len(t.Nodes) == 0 {
		return errors.New("no nodes")
	}
	for i, n := range t.Nodes {
		if n.Left < 0 {
			continue
		}
		if n.Feature < 0 || n.Feature >= columns {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, columns)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has children %d and %d outside the tree", i, n.Left, n.Right)
		}
	}
	return nil
}
