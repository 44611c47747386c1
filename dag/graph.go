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
	"fmt"
	"io"

	"github.com/aaronlmathis/goplan/core"
)

// Len returns the number of tasks in the graph
func (g *Graph) Len() int {
	return len(g.ids)
}

// EdgeCount returns the number of dependency edges
func (g *Graph) EdgeCount() int {
	return g.edges
}

// IDs returns all task ids in ascending order
func (g *Graph) IDs() []string {
	return append([]string{}, g.ids...)
}

// HasTask checks if a task exists in the graph
func (g *Graph) HasTask(id string) bool {
	_, exists := g.index[id]
	return exists
}

// Task returns a copy of the task stored under id
func (g *Graph) Task(id string) (core.Task, bool) {
	i, ok := g.index[id]
	if !ok {
		return core.Task{}, false
	}
	return g.tasks[i].Clone(), true
}

// Tasks returns copies of all tasks in ascending id order
func (g *Graph) Tasks() []core.Task {
	out := make([]core.Task, len(g.tasks))
	for i, t := range g.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Duration returns the duration of a task, or 0 if it does not exist
func (g *Graph) Duration(id string) float64 {
	if i, ok := g.index[id]; ok {
		return g.tasks[i].Duration()
	}
	return 0
}

// Predecessors returns the tasks id depends on, in ascending order
func (g *Graph) Predecessors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.preds[i])
}

// Successors returns the tasks that depend on id, in ascending order
func (g *Graph) Successors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.succs[i])
}

// Entries returns the tasks without dependencies
func (g *Graph) Entries() []string {
	var out []string
	for i, p := range g.preds {
		if len(p) == 0 {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// Exits returns the tasks nothing depends on
func (g *Graph) Exits() []string {
	var out []string
	for i, s := range g.succs {
		if len(s) == 0 {
			out = append(out, g.ids[i])
		}
	}
	return out
}

// Edges returns every edge ordered by source then target id
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for from, succs := range g.succs {
		for _, to := range succs {
			out = append(out, Edge{From: g.ids[from], To: g.ids[to], Weight: g.tasks[to].Duration()})
		}
	}
	return out
}

// WriteStructure writes a human-readable description of the graph. The first write
// error stops the output and is returned.
func (g *Graph) WriteStructure(w io.Writer) error {
	sw := &stickyWriter{w: w}
	sw.printf("Tasks: %d, dependencies: %d\n", len(g.ids), g.edges)
	for i, id := range g.ids {
		task := g.tasks[i]
		sw.printf("  %s (%gh)", id, task.Duration())
		if task.Title != "" {
			sw.printf(" %s", task.Title)
		}
		sw.printf("\n")
		if len(g.preds[i]) > 0 {
			sw.printf("    ← depends on: %v\n", g.names(g.preds[i]))
		}
		if len(g.succs[i]) > 0 {
			sw.printf("    → unblocks: %v\n", g.names(g.succs[i]))
		}
	}
	return sw.err
}

// stickyWriter keeps the first write error and drops every later write.
type stickyWriter struct {
	w   io.Writer
	err error
}

func (s *stickyWriter) printf(format string, args ...interface{}) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format, args...)
}

func (g *Graph) names(nodes []int) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = g.ids[n]
	}
	return out
}
