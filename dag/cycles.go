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
	"sort"
)

// findCycles enumerates the elementary cycles of the graph (Johnson), each starting at
// its smallest id, sorted. At most g.maxCycles cycles are returned; truncated reports
// whether more exist. Nil means acyclic.
func (g *Graph) findCycles() (cycles [][]string, truncated bool) {
	limit := g.maxCycles
	if limit <= 0 {
		limit = DefaultMaxCycles
	}
	comp := g.components()
	members := make(map[int][]int) // ascending node indexes per component
	for v, c := range comp {
		members[c] = append(members[c], v)
	}

	n := len(g.ids)
	blocked := make([]bool, n)
	blockedBy := make([]map[int]struct{}, n)
	var stack []int

	var unblock func(u int)
	unblock = func(u int) {
		blocked[u] = false
		for w := range blockedBy[u] {
			delete(blockedBy[u], w)
			if blocked[w] {
				unblock(w)
			}
		}
	}

	// Cycles through s use only nodes of s's component with an index above s, so each
	// cycle is found exactly once, from its smallest node.
	for s := 0; s < n && !truncated; s++ {
		inScope := func(w int) bool { return w >= s && comp[w] == comp[s] }

		var circuit func(v int) bool
		circuit = func(v int) bool {
			found := false
			stack = append(stack, v)
			blocked[v] = true
			for _, w := range g.succs[v] {
				if truncated {
					break
				}
				if !inScope(w) {
					continue
				}
				if w == s {
					if len(cycles) == limit {
						truncated = true
						break
					}
					cycles = append(cycles, g.names(stack))
					found = true
				} else if !blocked[w] && circuit(w) {
					found = true
				}
			}
			if found {
				unblock(v)
			} else {
				for _, w := range g.succs[v] {
					if inScope(w) {
						if blockedBy[w] == nil {
							blockedBy[w] = make(map[int]struct{})
						}
						blockedBy[w][v] = struct{}{}
					}
				}
			}
			stack = stack[:len(stack)-1]
			return found
		}

		nodes := members[comp[s]]
		if len(nodes) == 1 && !g.hasEdge(s, s) {
			continue
		}
		for _, v := range nodes {
			if v >= s {
				blocked[v] = false
				blockedBy[v] = nil
			}
		}
		circuit(s)
	}

	sort.Slice(cycles, func(i, j int) bool {
		return lessIDs(cycles[i], cycles[j])
	})
	return cycles, truncated
}

func (g *Graph) hasEdge(from, to int) bool {
	for _, w := range g.succs[from] {
		if w == to {
			return true
		}
	}
	return false
}

// components labels every node with its strongly connected component (Tarjan).
func (g *Graph) components() []int {
	n := len(g.ids)
	comp := make([]int, n)
	low := make([]int, n)
	num := make([]int, n)
	onStack := make([]bool, n)
	for i := range num {
		num[i] = -1
	}
	var stack []int
	counter, label := 0, 0

	var visit func(v int)
	visit = func(v int) {
		num[v], low[v] = counter, counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.succs[v] {
			if num[w] == -1 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], num[w])
			}
		}

		if low[v] == num[v] {
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp[w] = label
				if w == v {
					break
				}
			}
			label++
		}
	}

	for v := 0; v < n; v++ {
		if num[v] == -1 {
			visit(v)
		}
	}
	return comp
}

// lessIDs orders id sequences lexicographically, byte-wise per element.
func lessIDs(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
