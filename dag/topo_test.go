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
	"math/rand"
	"testing"

	"github.com/aaronlmathis/goplan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomDAG builds n tasks whose edges only point forward in a shuffled rank, so ids
// and topological position are unrelated. Durations are halves to stay exact.
func randomDAG(r *rand.Rand, n int, density float64) []core.Task {
	rank := r.Perm(n)
	tasks := make([]core.Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = task(fmt.Sprintf("n%02d", rank[i]), float64(r.Intn(10))/2)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			if r.Float64() < density {
				tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[j].ID)
			}
		}
	}
	r.Shuffle(n, func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	return tasks
}

func assertValidOrder(t *testing.T, tasks []core.Task, order []string) {
	t.Helper()
	require.Len(t, order, len(tasks))
	pos := make(map[string]int, len(order))
	for i, id := range order {
		_, dup := pos[id]
		require.False(t, dup, "id %s appears twice", id)
		pos[id] = i
	}
	for _, tk := range tasks {
		for _, dep := range tk.DependsOn {
			assert.Less(t, pos[dep], pos[tk.ID], "%s must precede %s", dep, tk.ID)
		}
	}
}

// TestOrder_RespectsEdges tests completeness and edge order over random graphs
func TestOrder_RespectsEdges(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		tasks := randomDAG(r, 1+r.Intn(25), r.Float64()*0.5)
		g, err := Build(tasks)
		require.NoError(t, err)

		order, err := TopologicalOrder(g)
		require.NoError(t, err)
		assertValidOrder(t, tasks, order)

		again, err := g.Order()
		require.NoError(t, err)
		assert.Equal(t, order, again)
	}
}

// TestOrder_TieBreakByID tests that ready tasks are released smallest id first
func TestOrder_TieBreakByID(t *testing.T) {
	g, err := Build([]core.Task{
		task("d", 1),
		task("c", 1, "d"),
		task("b", 1),
		task("a", 1, "d"),
		task("B", 1),
	})
	require.NoError(t, err)

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "b", "d", "a", "c"}, order)
}

// TestOrder_IndependentOfInputOrder tests that shuffling the input does not change results
func TestOrder_IndependentOfInputOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tasks := randomDAG(r, 20, 0.3)

	g, err := Build(tasks)
	require.NoError(t, err)
	want, err := g.Order()
	require.NoError(t, err)
	wantPath, err := g.CriticalPath()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		shuffled := append([]core.Task{}, tasks...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		g2, err := Build(shuffled)
		require.NoError(t, err)
		got, err := g2.Order()
		require.NoError(t, err)
		assert.Equal(t, want, got)
		gotPath, err := g2.CriticalPath()
		require.NoError(t, err)
		assert.Equal(t, wantPath, gotPath)
	}
}

func TestLevels(t *testing.T) {
	g, err := Build([]core.Task{
		task("A", 1),
		task("B", 1, "A"),
		task("C", 1, "A"),
		task("D", 1, "B", "C"),
		task("E", 1, "A", "D"),
		task("F", 1),
	})
	require.NoError(t, err)

	levels, err := g.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "F"}, {"B", "C"}, {"D"}, {"E"}}, levels)

	byID, err := g.LevelOf()
	require.NoError(t, err)
	assert.Equal(t, 3, byID["E"])
	assert.Equal(t, 0, byID["F"])
}

// TestLevels_RandomGraphs tests that every dependency sits on an earlier level
func TestLevels_RandomGraphs(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		tasks := randomDAG(r, 1+r.Intn(20), 0.3)
		g, err := Build(tasks)
		require.NoError(t, err)
		byID, err := g.LevelOf()
		require.NoError(t, err)
		require.Len(t, byID, len(tasks))
		for _, tk := range tasks {
			for _, dep := range tk.DependsOn {
				assert.Less(t, byID[dep], byID[tk.ID])
			}
		}
	}
}
