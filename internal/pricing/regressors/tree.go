// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package regressors

import (
	"math"
	"math/rand"
	"sort"
)

// regressionTree is a CART tree minimizing squared error. It is the shared
// base learner of the forest and boosting regressors and is never exposed
// directly.
type regressionTree struct {
	nodes []treeNode
}

// treeNode is one node in the flattened tree. Leaves carry value and have
// left == -1.
type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

// treeParams controls a single tree's growth.
type treeParams struct {
	maxDepth int
	minLeaf  int

	// featureFraction < 1 samples a random feature subset per split; the
	// forest uses this for decorrelation, boosting leaves it at 1.
	featureFraction float64
}

// growTree builds a tree over the sample rows named by idx. The rng drives
// feature subsampling only; passing the same rng state reproduces the same
// tree.
func growTree(X [][]float64, y []float64, idx []int, params treeParams, rng *rand.Rand) *regressionTree {
	t := &regressionTree{}
	t.grow(X, y, idx, 0, params, rng)
	return t
}

// grow recursively builds the subtree over idx and returns its node index.
func (t *regressionTree) grow(X [][]float64, y []float64, idx []int, depth int, params treeParams, rng *rand.Rand) int {
	node := treeNode{left: -1, right: -1, value: meanAt(y, idx)}

	if depth >= params.maxDepth || len(idx) < 2*params.minLeaf {
		t.nodes = append(t.nodes, node)
		return len(t.nodes) - 1
	}

	feature, threshold, gain := bestSplit(X, y, idx, params, rng)
	if gain <= 0 {
		t.nodes = append(t.nodes, node)
		return len(t.nodes) - 1
	}

	leftIdx := make([]int, 0, len(idx))
	rightIdx := make([]int, 0, len(idx))
	for _, i := range idx {
		if X[i][feature] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}

	node.feature = feature
	node.threshold = threshold
	self := len(t.nodes)
	t.nodes = append(t.nodes, node)

	// Children append after the parent. Recursion can reallocate t.nodes,
	// so patch the parent only after both subtrees are built.
	left := t.grow(X, y, leftIdx, depth+1, params, rng)
	right := t.grow(X, y, rightIdx, depth+1, params, rng)
	t.nodes[self].left = left
	t.nodes[self].right = right
	return self
}

// bestSplit scans candidate features for the threshold with the largest
// squared-error reduction. Candidates sort once per feature and sweep with
// running sums, so each feature costs O(n log n).
func bestSplit(X [][]float64, y []float64, idx []int, params treeParams, rng *rand.Rand) (feature int, threshold, gain float64) {
	feature = -1
	p := len(X[0])
	candidates := featureCandidates(p, params.featureFraction, rng)

	var totalSum, totalSq float64
	for _, i := range idx {
		totalSum += y[i]
		totalSq += y[i] * y[i]
	}
	n := float64(len(idx))
	parentSSE := totalSq - totalSum*totalSum/n

	order := make([]int, len(idx))
	for _, f := range candidates {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		var leftSum, leftSq float64
		for pos := 0; pos < len(order)-1; pos++ {
			i := order[pos]
			leftSum += y[i]
			leftSq += y[i] * y[i]

			// Can't split between equal feature values.
			if X[i][f] == X[order[pos+1]][f] {
				continue
			}
			nl := pos + 1
			nr := len(order) - nl
			if nl < params.minLeaf || nr < params.minLeaf {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) +
				(rightSq - rightSum*rightSum/float64(nr))
			if g := parentSSE - sse; g > gain {
				gain = g
				feature = f
				threshold = (X[i][f] + X[order[pos+1]][f]) / 2
			}
		}
	}
	return feature, threshold, gain
}

// featureCandidates returns the feature subset for one split, sorted so the
// scan order is deterministic for a given rng state.
func featureCandidates(p int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 || rng == nil {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	k := int(math.Ceil(fraction * float64(p)))
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(p)[:k]
	sort.Ints(perm)
	return perm
}

// predict walks the tree for one row.
func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for t.nodes[i].left != -1 {
		if x[t.nodes[i].feature] <= t.nodes[i].threshold {
			i = t.nodes[i].left
		} else {
			i = t.nodes[i].right
		}
	}
	return t.nodes[i].value
}

// accumulateImportances adds each internal node's weight into out, keyed by
// split feature. Node counts approximate impurity-decrease importance well
// enough for ranking and avoid retaining per-node gain.
func (t *regressionTree) accumulateImportances(out []float64) {
	for _, n := range t.nodes {
		if n.left != -1 {
			out[n.feature]++
		}
	}
}

// meanAt returns the mean of y over the index subset.
func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}
