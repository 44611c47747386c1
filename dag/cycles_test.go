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
	"errors"
	"testing"

	"github.com/aaronlmathis/goplan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cycleErr(t *testing.T, err error) *CycleError {
	t.Helper()
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle), "expected CycleError, got %v", err)
	assert.True(t, errors.Is(err, ErrCycle))
	return cycle
}

// assertCycleUsesInputEdges checks every reported cycle is made of real dependency edges
func assertCycleUsesInputEdges(t *testing.T, tasks []core.Task, cycles [][]string) {
	t.Helper()
	deps := make(map[string]map[string]bool)
	for _, tk := range tasks {
		if deps[tk.ID] == nil {
			deps[tk.ID] = make(map[string]bool)
		}
		for _, d := range tk.DependsOn {
			deps[tk.ID][d] = true
		}
	}
	for _, c := range cycles {
		require.NotEmpty(t, c)
		seen := make(map[string]bool)
		for i, from := range c {
			assert.False(t, seen[from], "cycle %v repeats %s", c, from)
			seen[from] = true
			to := c[(i+1)%len(c)]
			assert.True(t, deps[to][from], "edge %s -> %s not in input", from, to)
		}
	}
}

func TestBuild_SelfDependency(t *testing.T) {
	tasks := []core.Task{task("A", 1, "A")}
	_, err := Build(tasks)
	cycle := cycleErr(t, err)
	assert.Equal(t, [][]string{{"A"}}, cycle.Cycles)
	assert.Equal(t, "circular dependencies detected: A -> A", err.Error())
}

// TestBuild_TwoCycle tests the A -> B -> A case
func TestBuild_TwoCycle(t *testing.T) {
	tasks := []core.Task{task("B", 1, "A"), task("A", 1, "B")}
	_, err := Build(tasks)
	cycle := cycleErr(t, err)
	assert.Equal(t, [][]string{{"A", "B"}}, cycle.Cycles)
	assertCycleUsesInputEdges(t, tasks, cycle.Cycles)
}

// TestBuild_DisjointCycles tests that each cycle is reported once and in a stable order
func TestBuild_DisjointCycles(t *testing.T) {
	tasks := []core.Task{
		task("root", 1),
		task("x", 1, "z", "root"),
		task("y", 1, "x"),
		task("z", 1, "y"),
		task("b", 1, "a"),
		task("a", 1, "b"),
		task("leaf", 1, "a"),
	}
	_, err := Build(tasks)
	cycle := cycleErr(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"x", "y", "z"}}, cycle.Cycles)
	assertCycleUsesInputEdges(t, tasks, cycle.Cycles)

	_, again := Build(tasks)
	assert.Equal(t, cycle.Cycles, cycleErr(t, again).Cycles)
}

// TestBuild_SharedComponentCycles tests that cycles sharing nodes are each reported
func TestBuild_SharedComponentCycles(t *testing.T) {
	tasks := []core.Task{
		task("A", 1, "C", "D"),
		task("B", 1, "A"),
		task("C", 1, "B"),
		task("D", 1, "B"),
	}
	_, err := Build(tasks)
	cycle := cycleErr(t, err)
	assert.Equal(t, [][]string{{"A", "B", "C"}, {"A", "B", "D"}}, cycle.Cycles)
	assert.False(t, cycle.Truncated)
	assertCycleUsesInputEdges(t, tasks, cycle.Cycles)
	assert.Equal(t, "circular dependencies detected: A -> B -> C -> A; A -> B -> D -> A", err.Error())
}

// TestBuild_AllElementaryCycles tests a complete graph on three nodes
func TestBuild_AllElementaryCycles(t *testing.T) {
	tasks := []core.Task{
		task("a", 1, "b", "c"),
		task("b", 1, "a", "c"),
		task("c", 1, "a", "b", "c"),
	}
	_, err := Build(tasks)
	cycle := cycleErr(t, err)
	assert.Equal(t, [][]string{
		{"a", "b"},
		{"a", "b", "c"},
		{"a", "c"},
		{"a", "c", "b"},
		{"b", "c"},
		{"c"},
	}, cycle.Cycles)
	assertCycleUsesInputEdges(t, tasks, cycle.Cycles)
}

func TestBuild_MaxCycles(t *testing.T) {
	tasks := []core.Task{
		task("a", 1, "b", "c"),
		task("b", 1, "a", "c"),
		task("c", 1, "a", "b"),
	}
	_, err := NewGraph().AddTasks(tasks...).WithMaxCycles(2).Build()
	cycle := cycleErr(t, err)
	assert.Len(t, cycle.Cycles, 2)
	assert.True(t, cycle.Truncated)
	assert.Contains(t, err.Error(), "; ...")
	assertCycleUsesInputEdges(t, tasks, cycle.Cycles)

	_, err = Build(tasks, WithMaxCycles(0))
	assert.Len(t, cycleErr(t, err).Cycles, 5)
}

// TestAnalyses_DefensiveCycleError tests analyses on a graph that skipped validation
func TestAnalyses_DefensiveCycleError(t *testing.T) {
	g, err := assemble([]core.Task{task("A", 1, "C"), task("B", 1, "A"), task("C", 1, "B"), task("D", 1)})
	require.NoError(t, err)

	_, err = g.Order()
	assert.Equal(t, [][]string{{"A", "B", "C"}}, cycleErr(t, err).Cycles)

	_, err = g.CriticalPath()
	cycleErr(t, err)

	_, err = g.Levels()
	cycleErr(t, err)

	_, err = g.Schedule()
	cycleErr(t, err)
}

func TestFormatCycle(t *testing.T) {
	assert.Equal(t, "a -> b -> c -> a", FormatCycle([]string{"a", "b", "c"}))
	assert.Equal(t, "", FormatCycle(nil))
}
