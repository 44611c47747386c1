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

import (
	"container/heap"
)

// nodeHeap is a min-heap of node indexes. Indexes follow id order, so the heap
// always yields the smallest ready id.
type nodeHeap []int

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topologicalSort runs Kahn's algorithm, releasing ready nodes smallest id first.
func (g *Graph) topologicalSort() ([]int, error) {
	n := len(g.ids)
	inDegree := make([]int, n)
	for v := range g.preds {
		inDegree[v] = len(g.preds[v])
	}

	ready := &nodeHeap{}
	for v := 0; v < n; v++ {
		if inDegree[v] == 0 {
			*ready = append(*ready, v)
		}
	}
	heap.Init(ready)

	order := make([]int, 0, n)
	for ready.Len() > 0 {
		v := heap.Pop(ready).(int)
		order = append(order, v)
		for _, w := range g.succs[v] {
			inDegree[w]--
			if inDegree[w] == 0 {
				heap.Push(ready, w)
			}
		}
	}

	if len(order) != n {
		cycles, truncated := g.findCycles()
		return nil, &CycleError{Cycles: cycles, Truncated: truncated}
	}
	return order, nil
}

// Order returns every task id exactly once, each after all of its dependencies.
// Among tasks that are ready at the same time the smallest id comes first, so the
// order is the same on every call.
func (g *Graph) Order() ([]string, error) {
	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	return g.names(order), nil
}

// TopologicalOrder returns the deterministic execution order of g.
func TopologicalOrder(g *Graph) ([]string, error) {
	return g.Order()
}

// Levels groups tasks into waves: a task sits one level after its deepest
// dependency, entries at level 0. Each level is sorted by id.
func (g *Graph) Levels() ([][]string, error) {
	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}

	level := make([]int, len(g.ids))
	depth := 0
	for _, v := range order {
		for _, u := range g.preds[v] {
			level[v] = max(level[v], level[u]+1)
		}
		depth = max(depth, level[v]+1)
	}

	levels := make([][]string, depth)
	for v, id := range g.ids {
		levels[level[v]] = append(levels[level[v]], id)
	}
	return levels, nil
}

// LevelOf returns the level of every task, keyed by id.
func (g *Graph) LevelOf() (map[string]int, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(g.ids))
	for l, ids := range levels {
		for _, id := range ids {
			out[id] = l
		}
	}
	return out, nil
}
