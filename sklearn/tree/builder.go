package tree

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// featureThreshold is the smallest gap between two sorted feature values
// that yields a split point.
const featureThreshold = 1e-7

// minImpurity is the impurity at or below which a node is treated as pure.
const minImpurity = 1e-7

// builder grows a tree depth first, left child before right child.
type builder struct {
	X         *mat.Dense
	labels    []int
	nClasses  int
	nFeatures int
	tree      *DecisionTreeClassifier
	maxFeats  int
	impurity  func(counts []float64, total float64) float64
	gains     []float64
	nodes     []node
}

type split struct {
	feature   int
	threshold float64
	pos       int // samples[:pos] go left after sorting on feature
	leftImp   float64
	rightImp  float64
	score     float64
}

func (b *builder) build(samples []int) []node {
	b.nodes = b.nodes[:0]
	b.grow(samples, 0)
	return b.nodes
}

func (b *builder) grow(samples []int, depth int) int {
	n := len(samples)
	counts := b.classCounts(samples)
	imp := b.impurity(counts, float64(n))

	id := len(b.nodes)
	b.nodes = append(b.nodes, node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    proportions(counts, n),
		NSamples: n,
		Impurity: imp,
		Depth:    depth,
	})

	dt := b.tree
	if dt.maxDepth > 0 && depth >= dt.maxDepth {
		return id
	}
	if n < dt.minSamplesSplit || n < 2*dt.minSamplesLeaf || imp <= minImpurity {
		return id
	}

	s, ok := b.bestSplit(samples)
	if !ok {
		return id
	}

	b.sortOn(samples, s.feature)
	left, right := samples[:s.pos], samples[s.pos:]
	b.gains[s.feature] += float64(n)*imp - float64(len(left))*s.leftImp - float64(len(right))*s.rightImp

	leftID := b.grow(left, depth+1)
	rightID := b.grow(right, depth+1)

	b.nodes[id].Feature = s.feature
	b.nodes[id].Threshold = s.threshold
	b.nodes[id].Left = leftID
	b.nodes[id].Right = rightID
	return id
}

// bestSplit visits features in random order until maxFeats non-constant
// features have been tried and a valid split exists.
func (b *builder) bestSplit(samples []int) (split, bool) {
	n := len(samples)
	minLeaf := b.tree.minSamplesLeaf
	best := split{score: math.Inf(1)}
	found := false

	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)
	total := b.classCounts(samples)

	visited := 0
	for _, f := range b.tree.rng.Perm(b.nFeatures) {
		if visited >= b.maxFeats && found {
			break
		}

		b.sortOn(samples, f)
		first, last := b.X.At(samples[0], f), b.X.At(samples[n-1], f)
		if last <= first+featureThreshold {
			continue
		}
		visited++

		for k := range left {
			left[k] = 0
			right[k] = total[k]
		}
		for i := 0; i < n-1; i++ {
			c := b.labels[samples[i]]
			left[c]++
			right[c]--

			xi, xNext := b.X.At(samples[i], f), b.X.At(samples[i+1], f)
			if xNext <= xi+featureThreshold {
				continue
			}
			nl, nr := i+1, n-i-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}

			li := b.impurity(left, float64(nl))
			ri := b.impurity(right, float64(nr))
			score := (float64(nl)*li + float64(nr)*ri) / float64(n)
			if score < best.score {
				threshold := xi/2 + xNext/2
				if threshold == xNext || math.IsInf(threshold, 0) {
					threshold = xi
				}
				best = split{feature: f, threshold: threshold, pos: nl, leftImp: li, rightImp: ri, score: score}
				found = true
			}
		}
	}
	return best, found
}

// sortOn orders samples by feature f. Split positions fall on value
// boundaries, so they stay valid however ties are ordered.
func (b *builder) sortOn(samples []int, f int) {
	sort.SliceStable(samples, func(i, j int) bool {
		return b.X.At(samples[i], f) < b.X.At(samples[j], f)
	})
}

func (b *builder) classCounts(samples []int) []float64 {
	counts := make([]float64, b.nClasses)
	for _, s := range samples {
		counts[b.labels[s]]++
	}
	return counts
}

func proportions(counts []float64, n int) []float64 {
	out := make([]float64, len(counts))
	if n == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = c / float64(n)
	}
	return out
}

func impurityFunc(criterion string) func([]float64, float64) float64 {
	if criterion == "entropy" {
		return entropy
	}
	return gini
}

func gini(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / total
		sum += p * p
	}
	return 1 - sum
}

func entropy(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := c / total
			h -= p * math.Log2(p)
		}
	}
	return h
}
