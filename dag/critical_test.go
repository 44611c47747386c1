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
	"sync"
	"testing"

	"github.com/aaronlmathis/goplan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func criticalPath(t *testing.T, tasks ...core.Task) Path {
	t.Helper()
	g, err := Build(tasks)
	require.NoError(t, err)
	path, err := CriticalPathOf(g)
	require.NoError(t, err)
	return path
}

func TestCriticalPath_IsolatedTask(t *testing.T) {
	path := criticalPath(t, task("solo", 8))
	assert.Equal(t, []string{"solo"}, path.IDs)
	assert.Equal(t, 0.0, path.Weight)
}

// TestCriticalPath_Chain tests that the entry task's own duration is excluded
func TestCriticalPath_Chain(t *testing.T) {
	path := criticalPath(t, task("A", 1), task("B", 2, "A"), task("C", 3, "B"))
	assert.Equal(t, []string{"A", "B", "C"}, path.IDs)
	assert.Equal(t, 5.0, path.Weight)
}

func TestCriticalPath_Diamond(t *testing.T) {
	path := criticalPath(t,
		task("A", 5),
		task("B", 10, "A"),
		task("C", 1, "A"),
		task("D", 1, "B", "C"),
	)
	assert.Equal(t, []string{"A", "B", "D"}, path.IDs)
	assert.Equal(t, 11.0, path.Weight)
	assert.True(t, path.Contains("B"))
	assert.False(t, path.Contains("C"))
	assert.Equal(t, 3, path.Len())
}

// TestCriticalPath_EntryDurationIgnored tests that a heavy entry does not attract the path
func TestCriticalPath_EntryDurationIgnored(t *testing.T) {
	path := criticalPath(t,
		task("heavy", 100),
		task("x", 1, "heavy"),
		task("light", 0),
		task("y", 2, "light"),
	)
	assert.Equal(t, []string{"light", "y"}, path.IDs)
	assert.Equal(t, 2.0, path.Weight)
}

// TestCriticalPath_TieBreak tests the lexicographically smallest sequence wins
func TestCriticalPath_TieBreak(t *testing.T) {
	path := criticalPath(t,
		task("A", 1),
		task("C", 4, "A"),
		task("B", 4, "A"),
		task("D", 1, "B", "C"),
	)
	assert.Equal(t, []string{"A", "B", "D"}, path.IDs)
	assert.Equal(t, 5.0, path.Weight)

	path = criticalPath(t, task("y", 3), task("x", 3))
	assert.Equal(t, []string{"x"}, path.IDs)

	path = criticalPath(t,
		task("q", 0),
		task("p", 0),
		task("r", 2, "q"),
		task("s", 2, "p"),
	)
	assert.Equal(t, []string{"p", "s"}, path.IDs)
}

// TestCriticalPath_DecimalHours tests ties between sums that differ only by rounding
func TestCriticalPath_DecimalHours(t *testing.T) {
	path := criticalPath(t,
		task("A", 1),
		task("X", 0.1, "A"),
		task("Y", 0.2, "X"),
		task("Z", 0.3, "Y"),
		task("W", 0.6, "A"),
	)
	assert.Equal(t, []string{"A", "W"}, path.IDs)
	assert.InDelta(t, 0.6, path.Weight, 1e-12)

	path = criticalPath(t,
		task("A", 1),
		task("X", 0.1, "A"),
		task("Y", 0.2, "X"),
		task("Z", 0.3, "Y"),
		task("b", 0.6, "A"),
	)
	assert.Equal(t, []string{"A", "X", "Y", "Z"}, path.IDs)

	assert.False(t, heavier(0.1+0.2+0.3, 0.6))
	assert.False(t, heavier(0.6, 0.1+0.2+0.3))
	assert.True(t, heavier(0.61, 0.6))
}

// TestCriticalPath_MatchesBruteForceDecimal repeats the oracle check with tenths of hours
func TestCriticalPath_MatchesBruteForceDecimal(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		tasks := randomDAG(r, 1+r.Intn(10), r.Float64()*0.6)
		for j := range tasks {
			tasks[j].Estimate.Hours = float64(r.Intn(10)) / 10
		}
		g, err := Build(tasks)
		require.NoError(t, err)

		got, err := g.CriticalPath()
		require.NoError(t, err)
		want := bruteForce(g)
		require.Equal(t, want.IDs, got.IDs, "graph %d: %v", i, tasks)
		require.InDelta(t, want.Weight, got.Weight, 1e-9, "graph %d", i)
	}
}

func TestCriticalPath_ZeroDurations(t *testing.T) {
	path := criticalPath(t, task("A", 0), task("B", 0, "A"), task("C", 0, "B"))
	assert.Equal(t, []string{"A", "B", "C"}, path.IDs)
	assert.Equal(t, 0.0, path.Weight)
}

// bruteForce enumerates every entry-to-exit path and keeps the heaviest, smallest on
// ties. Weights are summed forward, so ties only hold within the weight tolerance.
func bruteForce(g *Graph) Path {
	var best Path
	found := false
	var walk func(v int, ids []string, weight float64)
	walk = func(v int, ids []string, weight float64) {
		ids = append(ids, g.ids[v])
		if len(g.succs[v]) == 0 {
			if !found || heavier(weight, best.Weight) || (!heavier(best.Weight, weight) && lessIDs(ids, best.IDs)) {
				best = Path{IDs: append([]string{}, ids...), Weight: weight}
				found = true
			}
			return
		}
		for _, w := range g.succs[v] {
			walk(w, ids, weight+g.tasks[w].Duration())
		}
	}
	for v := range g.ids {
		if len(g.preds[v]) == 0 {
			walk(v, nil, 0)
		}
	}
	return best
}

// TestCriticalPath_MatchesBruteForce tests the linear pass against full enumeration
func TestCriticalPath_MatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		tasks := randomDAG(r, 1+r.Intn(12), r.Float64()*0.6)
		g, err := Build(tasks)
		require.NoError(t, err)

		got, err := g.CriticalPath()
		require.NoError(t, err)
		want := bruteForce(g)
		require.Equal(t, want, got, "graph %d: %v", i, tasks)
	}
}

// TestCriticalPath_ManyPaths tests a graph with 2^60 entry-to-exit paths
func TestCriticalPath_ManyPaths(t *testing.T) {
	var tasks []core.Task
	tasks = append(tasks, task("L00a", 1), task("L00b", 1))
	for layer := 1; layer < 60; layer++ {
		prevA, prevB := fmt.Sprintf("L%02da", layer-1), fmt.Sprintf("L%02db", layer-1)
		tasks = append(tasks,
			task(fmt.Sprintf("L%02da", layer), 1, prevA, prevB),
			task(fmt.Sprintf("L%02db", layer), 2, prevA, prevB),
		)
	}
	path := criticalPath(t, tasks...)
	assert.Len(t, path.IDs, 60)
	assert.Equal(t, "L00a", path.IDs[0])
	assert.Equal(t, "L59b", path.IDs[59])
	assert.Equal(t, 118.0, path.Weight)
}

func TestCriticalPath_LongChain(t *testing.T) {
	const n = 100000
	tasks := make([]core.Task, n)
	tasks[0] = task("t000000", 1)
	for i := 1; i < n; i++ {
		tasks[i] = task(fmt.Sprintf("t%06d", i), 1, fmt.Sprintf("t%06d", i-1))
	}
	path := criticalPath(t, tasks...)
	assert.Len(t, path.IDs, n)
	assert.Equal(t, float64(n-1), path.Weight)
}

// TestGraph_ConcurrentReaders tests that analyses can share one graph
func TestGraph_ConcurrentReaders(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	g, err := Build(randomDAG(r, 30, 0.2))
	require.NoError(t, err)
	want, err := g.CriticalPath()
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := g.CriticalPath()
			if err != nil {
				errs <- err
				return
			}
			if _, err := g.Order(); err != nil {
				errs <- err
				return
			}
			if fmt.Sprint(got) != fmt.Sprint(want) {
				errs <- fmt.Errorf("got %v, want %v", got, want)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
