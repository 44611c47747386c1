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

// graph_builder.go - Graph construction and validation
package dag

import (
	"math"
	"sort"

	"github.com/aaronlmathis/goplan/core"
)

// GraphBuilder provides a fluent API for constructing Graphs
type GraphBuilder struct {
	tasks []core.Task
	opts  []BuildOption
}

// NewGraph creates a new graph builder
func NewGraph() *GraphBuilder {
	return &GraphBuilder{}
}

// AddTask appends a task to the graph
func (gb *GraphBuilder) AddTask(task core.Task) *GraphBuilder {
	gb.tasks = append(gb.tasks, task)
	return gb
}

// AddTasks appends several tasks to the graph, keeping their order
func (gb *GraphBuilder) AddTasks(tasks ...core.Task) *GraphBuilder {
	gb.tasks = append(gb.tasks, tasks...)
	return gb
}

// WithDuplicatePolicy sets how duplicate task ids are handled
func (gb *GraphBuilder) WithDuplicatePolicy(policy DuplicatePolicy) *GraphBuilder {
	gb.opts = append(gb.opts, WithDuplicatePolicy(policy))
	return gb
}

// WithMaxCycles caps the cycles listed when the build fails on a cycle
func (gb *GraphBuilder) WithMaxCycles(n int) *GraphBuilder {
	gb.opts = append(gb.opts, WithMaxCycles(n))
	return gb
}

// Build validates the collected tasks and returns the graph
func (gb *GraphBuilder) Build() (*Graph, error) {
	return Build(gb.tasks, gb.opts...)
}

// Build constructs a validated dependency graph from a task snapshot.
//
// Every task becomes a node, including tasks with no dependencies and no dependents.
// Dependencies are checked in input order, task by task and then in listed order; the
// first one naming an absent id fails the build with an *UnknownDependencyError.
// Repeated dependencies collapse into one edge. If the edges form a cycle, Build
// returns a *CycleError listing every distinct elementary cycle, up to the
// WithMaxCycles cap. Durations must be finite and non-negative, otherwise the build
// fails with an *InvalidDurationError. The input slice and its tasks are never modified.
func Build(tasks []core.Task, opts ...BuildOption) (*Graph, error) {
	g, err := assemble(tasks, opts...)
	if err != nil {
		return nil, err
	}
	if cycles, truncated := g.findCycles(); len(cycles) > 0 {
		return nil, &CycleError{Cycles: cycles, Truncated: truncated}
	}
	return g, nil
}

// assemble builds the node and edge sets without the acyclicity check.
func assemble(tasks []core.Task, opts ...BuildOption) (*Graph, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	o.withDefaults()

	kept := make([]core.Task, 0, len(tasks))
	position := make(map[string]int, len(tasks))
	for _, task := range tasks {
		if pos, exists := position[task.ID]; exists {
			if o.duplicates == RejectDuplicates {
				return nil, &DuplicateTaskError{TaskID: task.ID}
			}
			kept[pos] = task.Clone()
			continue
		}
		position[task.ID] = len(kept)
		kept = append(kept, task.Clone())
	}

	for _, task := range kept {
		if d := task.Duration(); math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return nil, &InvalidDurationError{TaskID: task.ID, Hours: d}
		}
	}

	g := &Graph{
		ids:       make([]string, 0, len(kept)),
		index:     make(map[string]int, len(kept)),
		tasks:     make([]core.Task, len(kept)),
		succs:     make([][]int, len(kept)),
		preds:     make([][]int, len(kept)),
		maxCycles: o.maxCycles,
	}

	// Nodes first, so that isolated tasks are present and lookups are complete.
	for _, task := range kept {
		g.ids = append(g.ids, task.ID)
	}
	sort.Strings(g.ids)
	for i, id := range g.ids {
		g.index[id] = i
	}
	for _, task := range kept {
		g.tasks[g.index[task.ID]] = task
	}

	for _, task := range kept {
		to := g.index[task.ID]
		seen := make(map[int]struct{}, len(task.DependsOn))
		for _, dep := range task.DependsOn {
			from, ok := g.index[dep]
			if !ok {
				return nil, &UnknownDependencyError{TaskID: task.ID, DependencyID: dep}
			}
			if _, dup := seen[from]; dup {
				continue
			}
			seen[from] = struct{}{}
			g.succs[from] = append(g.succs[from], to)
			g.preds[to] = append(g.preds[to], from)
			g.edges++
		}
	}

	for i := range g.ids {
		sort.Ints(g.succs[i])
		sort.Ints(g.preds[i])
	}
	return g, nil
}
