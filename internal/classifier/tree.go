package classifier

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/spigell/cv-classifier/internal/features"
)

// treeNode is one node of a decision tree stored in a flat slice. Children
// are absolute indices into that slice. Leaves carry a class distribution.
type treeNode struct {
	Feature      int       `json:"feature"`
	Threshold    float64   `json:"threshold"`
	Left         int       `json:"left"`
	Right        int       `json:"right"`
	Distribution []float64 `json:"distribution,omitempty"`
}

func (n treeNode) leaf() bool { return n.Feature < 0 }

type decisionTree struct {
	nodes []treeNode
}

type treeBuilder struct {
	x               []features.Vector
	y               []int
	classes         int
	maxFeatures     int
	maxDepth        int
	minSamplesSplit int
	rng             *rand.Rand
	nodes           []treeNode
}

// build grows a tree over the samples listed in idx. Indices may repeat.
func (b *treeBuilder) build(idx []int) decisionTree {
	b.nodes = nil
	b.grow(idx, 0)
	return decisionTree{nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	counts := make([]float64, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}

	pos := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: -1, Left: -1, Right: -1})

	if depth >= b.maxDepth || len(idx) < b.minSamplesSplit || isPure(counts) {
		b.nodes[pos].Distribution = distribution(counts)
		return pos
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		b.nodes[pos].Distribution = distribution(counts)
		return pos
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i].At(feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.nodes[pos].Feature = feature
	b.nodes[pos].Threshold = threshold
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[pos].Left = l
	b.nodes[pos].Right = r
	return pos
}

// activeFeatures returns the sorted features that are non-zero in at least
// one sample of the node.
func (b *treeBuilder) activeFeatures(idx []int) []int {
	seen := make(map[int]struct{})
	for _, i := range idx {
		for _, v := range b.x[i] {
			if v.Value != 0 {
				seen[v.Index] = struct{}{}
			}
		}
	}
	res := make([]int, 0, len(seen))
	for f := range seen {
		res = append(res, f)
	}
	sort.Ints(res)
	return res
}

func (b *treeBuilder) candidates(idx []int) []int {
	active := b.activeFeatures(idx)
	if len(active) <= b.maxFeatures {
		return active
	}
	for i := 0; i < b.maxFeatures; i++ {
		j := i + b.rng.Intn(len(active)-i)
		active[i], active[j] = active[j], active[i]
	}
	return active[:b.maxFeatures]
}

type labeledValue struct {
	value float64
	label int
}

func (b *treeBuilder) bestSplit(idx []int, counts []float64) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64
	total := float64(len(idx))

	values := make([]labeledValue, len(idx))
	left := make([]float64, b.classes)
	right := make([]float64, b.classes)

	for _, feature := range b.candidates(idx) {
		for k, i := range idx {
			values[k] = labeledValue{value: b.x[i].At(feature), label: b.y[i]}
		}
		sort.SliceStable(values, func(a, c int) bool { return values[a].value < values[c].value })
		if values[0].value == values[len(values)-1].value {
			continue
		}

		for c := range left {
			left[c] = 0
			right[c] = counts[c]
		}
		for k := 0; k < len(values)-1; k++ {
			left[values[k].label]++
			right[values[k].label]--
			if values[k].value == values[k+1].value {
				continue
			}

			nLeft := float64(k + 1)
			nRight := total - nLeft
			impurity := (nLeft*gini(left, nLeft) + nRight*gini(right, nRight)) / total
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = (values[k].value + values[k+1].value) / 2
			}
		}
	}

	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func gini(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, n := range counts {
		p := n / total
		impurity -= p * p
	}
	return impurity
}

func isPure(counts []float64) bool {
	nonEmpty := 0
	for _, n := range counts {
		if n > 0 {
			nonEmpty++
		}
	}
	return nonEmpty <= 1
}

func distribution(counts []float64) []float64 {
	res := make([]float64, len(counts))
	copy(res, counts)
	return normalizeSum(res)
}

func (t decisionTree) predictProba(x features.Vector) []float64 {
	idx := 0
	for {
		node := t.nodes[idx]
		if node.leaf() {
			return node.Distribution
		}
		if x.At(node.Feature) <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// validate checks that the tree is a well formed flat binary tree.
func (t decisionTree) validate(classes, dim int) error {
	if len(t.nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, node := range t.nodes {
		if node.leaf() {
			if len(node.Distribution) != classes {
				return fmt.Errorf("leaf %d has %d classes, want %d", i, len(node.Distribution), classes)
			}
			continue
		}
		if node.Feature >= dim {
			return fmt.Errorf("node %d splits on feature %d outside dimension %d", i, node.Feature, dim)
		}
		if node.Left <= i || node.Right <= i || node.Left >= len(t.nodes) || node.Right >= len(t.nodes) {
			return fmt.Errorf("node %d has invalid children %d and %d", i, node.Left, node.Right)
		}
	}
	return nil
}
