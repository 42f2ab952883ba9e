// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package training

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TreeNode is one node of a fitted regression tree. Leaves have Left == -1;
// internal nodes route rows with feature value <= Threshold to Left.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a least-squares regression tree stored as a flat node array so it
// serializes directly into the artifact bundle.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// splitCandidate is a grown leaf together with its best available split.
type splitCandidate struct {
	node      int
	depth     int
	gain      float64
	feature   int
	threshold float64
	left      []int
	right     []int
	valid     bool
}

// fitTree grows a tree on the given rows with leaf-wise (best-gain-first)
// growth, bounded by maxDepth and maxLeaves.
func fitTree(x *mat.Dense, target []float64, maxDepth, maxLeaves int) *Tree {
	rows := make([]int, len(target))
	for i := range rows {
		rows[i] = i
	}

	t := &Tree{}
	root := t.addLeaf(meanTarget(target, rows))
	candidates := []splitCandidate{bestSplit(x, target, rows, root, 0, maxDepth)}
	leaves := 1

	for leaves < maxLeaves {
		best := -1
		for i, c := range candidates {
			if !c.valid {
				continue
			}
			if best == -1 || c.gain > candidates[best].gain {
				best = i
			}
		}
		if best == -1 {
			break
		}

		c := candidates[best]
		candidates = append(candidates[:best], candidates[best+1:]...)

		left := t.addLeaf(meanTarget(target, c.left))
		right := t.addLeaf(meanTarget(target, c.right))
		t.Nodes[c.node].Feature = c.feature
		t.Nodes[c.node].Threshold = c.threshold
		t.Nodes[c.node].Left = left
		t.Nodes[c.node].Right = right
		leaves++

		candidates = append(candidates,
			bestSplit(x, target, c.left, left, c.depth+1, maxDepth),
			bestSplit(x, target, c.right, right, c.depth+1, maxDepth),
		)
	}
	return t
}

func (t *Tree) addLeaf(value float64) int {
	t.Nodes = append(t.Nodes, TreeNode{Left: -1, Right: -1, Value: value})
	return len(t.Nodes) - 1
}

// PredictRow routes one feature row to its leaf value.
func (t *Tree) PredictRow(row []float64) float64 {
	i := 0
	for t.Nodes[i].Left != -1 {
		n := t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

func meanTarget(target []float64, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += target[r]
	}
	return sum / float64(len(rows))
}

// bestSplit finds the (feature, threshold) pair with the largest squared-
// error reduction over the node's rows. An exhausted node (too deep, too
// small, or no gain) yields an invalid candidate.
func bestSplit(x *mat.Dense, target []float64, rows []int, node, depth, maxDepth int) splitCandidate {
	out := splitCandidate{node: node, depth: depth}
	if depth >= maxDepth || len(rows) < 2 {
		return out
	}

	_, features := x.Dims()
	nodeSSE := sse(target, rows)

	type pair struct {
		v float64
		y float64
	}
	pairs := make([]pair, len(rows))

	for f := 0; f < features; f++ {
		for i, r := range rows {
			pairs[i] = pair{v: x.At(r, f), y: target[r]}
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].v < pairs[b].v })

		var leftSum, leftSq float64
		totalSum, totalSq := sums(target, rows)

		for i := 0; i < len(pairs)-1; i++ {
			leftSum += pairs[i].y
			leftSq += pairs[i].y * pairs[i].y
			if pairs[i].v == pairs[i+1].v {
				continue
			}
			nL := float64(i + 1)
			nR := float64(len(pairs) - i - 1)
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sseL := leftSq - leftSum*leftSum/nL
			sseR := rightSq - rightSum*rightSum/nR
			gain := nodeSSE - sseL - sseR
			if gain > out.gain {
				out.valid = true
				out.gain = gain
				out.feature = f
				out.threshold = (pairs[i].v + pairs[i+1].v) / 2
			}
		}
	}

	if out.valid {
		out.left = out.left[:0]
		out.right = out.right[:0]
		for _, r := range rows {
			if x.At(r, out.feature) <= out.threshold {
				out.left = append(out.left, r)
			} else {
				out.right = append(out.right, r)
			}
		}
	}
	return out
}

func sums(target []float64, rows []int) (sum, sq float64) {
	for _, r := range rows {
		sum += target[r]
		sq += target[r] * target[r]
	}
	return sum, sq
}

func sse(target []float64, rows []int) float64 {
	sum, sq := sums(target, rows)
	n := float64(len(rows))
	return sq - sum*sum/n
}
