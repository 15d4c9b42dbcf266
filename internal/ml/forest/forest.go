// Package forest implements a bagged random forest of CART classification
// trees for binary targets. Trees are grown on bootstrap samples with
// per-split feature subsampling; probabilities are the average of leaf
// class fractions across trees.
package forest

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Forest is a bagged ensemble of binary classification trees.
type Forest struct {
	nTrees      int
	maxDepth    int
	minLeafSize int
	featSub     int // features tried per split; 0 = floor(sqrt(dim))
	rng         *rand.Rand

	trees   []*Node
	dim     int
	trained bool
}

// Node is a tree node. Exported fields for gob serialization.
type Node struct {
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node
	Leaf      bool
	Prob      float64 // fraction of positive samples at this leaf
}

// Option configures a Forest.
type Option func(*Forest)

// WithTrees sets the number of trees.
func WithTrees(n int) Option {
	return func(f *Forest) { f.nTrees = n }
}

// WithMaxDepth caps tree depth.
func WithMaxDepth(d int) Option {
	return func(f *Forest) { f.maxDepth = d }
}

// WithMinLeafSize sets the minimum samples required in a leaf.
func WithMinLeafSize(n int) Option {
	return func(f *Forest) { f.minLeafSize = n }
}

// WithFeatureSubsample sets how many features are tried per split.
func WithFeatureSubsample(n int) Option {
	return func(f *Forest) { f.featSub = n }
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *Forest) { f.rng = rand.New(rand.NewSource(seed)) }
}

// New creates a Forest with the given options.
func New(opts ...Option) *Forest {
	f := &Forest{
		nTrees:      50,
		maxDepth:    10,
		minLeafSize: 2,
		rng:         rand.New(rand.NewSource(42)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit trains the forest. Labels must be 0 or 1.
func (f *Forest) Fit(data [][]float64, labels []int) error {
	if len(data) == 0 {
		return errors.New("forest: empty training data")
	}
	if len(data) != len(labels) {
		return fmt.Errorf("forest: %d rows but %d labels", len(data), len(labels))
	}
	dim := len(data[0])
	for _, row := range data {
		if len(row) != dim {
			return errors.New("forest: ragged training data")
		}
	}
	for _, y := range labels {
		if y != 0 && y != 1 {
			return fmt.Errorf("forest: label %d outside {0,1}", y)
		}
	}

	featSub := f.featSub
	if featSub <= 0 || featSub > dim {
		featSub = int(math.Floor(math.Sqrt(float64(dim))))
		if featSub < 1 {
			featSub = 1
		}
	}

	n := len(data)
	f.trees = make([]*Node, f.nTrees)
	for t := 0; t < f.nTrees; t++ {
		// Bootstrap sample with replacement.
		idx := make([]int, n)
		for i := range idx {
			idx[i] = f.rng.Intn(n)
		}
		f.trees[t] = f.grow(data, labels, idx, dim, featSub, 0)
	}
	f.dim = dim
	f.trained = true
	return nil
}

func (f *Forest) grow(data [][]float64, labels, idx []int, dim, featSub, depth int) *Node {
	pos := 0
	for _, i := range idx {
		pos += labels[i]
	}
	prob := float64(pos) / float64(len(idx))

	if depth >= f.maxDepth || len(idx) < 2*f.minLeafSize || pos == 0 || pos == len(idx) {
		return &Node{Leaf: true, Prob: prob}
	}

	feat, thresh, gain := f.bestSplit(data, labels, idx, dim, featSub)
	if gain <= 0 {
		return &Node{Leaf: true, Prob: prob}
	}

	var left, right []int
	for _, i := range idx {
		if data[i][feat] <= thresh {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < f.minLeafSize || len(right) < f.minLeafSize {
		return &Node{Leaf: true, Prob: prob}
	}

	return &Node{
		Feature:   feat,
		Threshold: thresh,
		Left:      f.grow(data, labels, left, dim, featSub, depth+1),
		Right:     f.grow(data, labels, right, dim, featSub, depth+1),
	}
}

// bestSplit searches a random feature subset for the gini-optimal threshold.
func (f *Forest) bestSplit(data [][]float64, labels, idx []int, dim, featSub int) (int, float64, float64) {
	parentImp := giniOf(labels, idx)
	total := float64(len(idx))

	bestFeat, bestThresh, bestGain := -1, 0.0, 0.0
	for _, feat := range f.rng.Perm(dim)[:featSub] {
		// Sort sample indices by this feature's value.
		order := make([]int, len(idx))
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool {
			return data[order[a]][feat] < data[order[b]][feat]
		})

		leftPos, leftN := 0, 0
		totalPos := 0
		for _, i := range order {
			totalPos += labels[i]
		}

		for k := 0; k < len(order)-1; k++ {
			leftPos += labels[order[k]]
			leftN++
			cur, next := data[order[k]][feat], data[order[k+1]][feat]
			if cur == next {
				continue
			}
			rightPos := totalPos - leftPos
			rightN := len(order) - leftN

			lImp := giniBinary(leftPos, leftN)
			rImp := giniBinary(rightPos, rightN)
			weighted := (float64(leftN)*lImp + float64(rightN)*rImp) / total
			if gain := parentImp - weighted; gain > bestGain {
				bestGain = gain
				bestFeat = feat
				bestThresh = (cur + next) / 2
			}
		}
	}
	return bestFeat, bestThresh, bestGain
}

func giniOf(labels, idx []int) float64 {
	pos := 0
	for _, i := range idx {
		pos += labels[i]
	}
	return giniBinary(pos, len(idx))
}

func giniBinary(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

// PredictProba returns P(label=1) for a single sample.
func (f *Forest) PredictProba(sample []float64) (float64, error) {
	if !f.trained {
		return 0, errors.New("forest: model not trained")
	}
	if len(sample) != f.dim {
		return 0, fmt.Errorf("forest: sample has %d features, trained on %d", len(sample), f.dim)
	}
	var sum float64
	for _, root := range f.trees {
		sum += descend(root, sample)
	}
	return sum / float64(len(f.trees)), nil
}

func descend(n *Node, sample []float64) float64 {
	for !n.Leaf {
		if sample[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Prob
}

// Dim returns the trained feature dimensionality, or 0 if untrained.
func (f *Forest) Dim() int { return f.dim }

// serialized is the gob wire form of a trained forest.
type serialized struct {
	Trees []*Node
	Dim   int
}

// Save serializes the trained forest.
func (f *Forest) Save() ([]byte, error) {
	if !f.trained {
		return nil, errors.New("forest: model not trained")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(serialized{Trees: f.trees, Dim: f.dim}); err != nil {
		return nil, fmt.Errorf("forest: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Load restores a trained forest produced by Save.
func (f *Forest) Load(data []byte) error {
	var s serialized
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("forest: decode: %w", err)
	}
	if len(s.Trees) == 0 || s.Dim <= 0 {
		return errors.New("forest: corrupt model data")
	}
	f.trees = s.Trees
	f.dim = s.Dim
	f.trained = true
	return nil
}
