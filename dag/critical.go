//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoPlan.
//
// GoPlan is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoPlan is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoPlan. If not, see https://www.gnu.org/licenses/.

package dag

import "math"

// CriticalPath returns the heaviest path from an entry task to an exit task.
//
// The weight of a path is the sum of the durations of its tasks except the first:
// each dependency edge weighs as much as the task it leads to. A lone task is its own
// path with weight 0, and an empty graph gives an empty path.
//
// When several paths share the maximum weight, the lexicographically smallest id
// sequence is returned. Weights are sums of decimal hours, so two weights count as
// equal when they differ by no more than a relative WeightTolerance: 0.1+0.2+0.3 ties
// with 0.6. The computation is a single pass over the reverse topological order,
// linear in tasks plus dependencies.
func (g *Graph) CriticalPath() (Path, error) {
	n := len(g.ids)
	if n == 0 {
		return Path{IDs: []string{}}, nil
	}

	order, err := g.topologicalSort()
	if err != nil {
		return Path{}, err
	}

	// best[v] is the heaviest weight from v to any exit; next[v] the successor taking it.
	best := make([]float64, n)
	next := make([]int, n)
	for i := range next {
		next[i] = -1
	}
	for i := n - 1; i >= 0; i-- {
		v := order[i]
		for _, w := range g.succs[v] {
			weight := g.tasks[w].Duration() + best[w]
			if next[v] == -1 || heavier(weight, best[v]) {
				best[v] = weight
				next[v] = w
			}
		}
	}

	start, top := -1, math.Inf(-1)
	for v := 0; v < n; v++ {
		if len(g.preds[v]) == 0 && (start == -1 || heavier(best[v], top)) {
			start, top = v, best[v]
		}
	}

	var ids []string
	for v := start; v != -1; v = next[v] {
		ids = append(ids, g.ids[v])
	}
	return Path{IDs: ids, Weight: best[start]}, nil
}

// WeightTolerance is the relative difference below which two path weights are equal.
const WeightTolerance = 1e-9

// heavier reports whether a exceeds b by more than the weight tolerance.
func heavier(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return a-b > WeightTolerance*scale
}

// CriticalPathOf returns the critical path of g.
func CriticalPathOf(g *Graph) (Path, error) {
	return g.CriticalPath()
}
