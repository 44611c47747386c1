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

// slackEpsilon absorbs float rounding when deciding whether a task has slack.
const slackEpsilon = 1e-9

// Schedule computes earliest and latest start and finish times for every task,
// assuming unlimited workers and that each task starts once all of its dependencies
// have finished. Unlike CriticalPath, every task's own duration counts, entries
// included. Timings are returned in topological order.
func (g *Graph) Schedule() (*Schedule, error) {
	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}

	n := len(g.ids)
	es := make([]float64, n)
	ef := make([]float64, n)
	span := 0.0
	for _, v := range order {
		for _, u := range g.preds[v] {
			es[v] = math.Max(es[v], ef[u])
		}
		ef[v] = es[v] + g.tasks[v].Duration()
		span = math.Max(span, ef[v])
	}

	lf := make([]float64, n)
	ls := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		v := order[i]
		lf[v] = span
		for _, w := range g.succs[v] {
			lf[v] = math.Min(lf[v], ls[w])
		}
		ls[v] = lf[v] - g.tasks[v].Duration()
	}

	s := &Schedule{Span: span, Timings: make([]Timing, 0, n)}
	for _, v := range order {
		slack := ls[v] - es[v]
		if math.Abs(slack) < slackEpsilon {
			slack = 0
		}
		s.Timings = append(s.Timings, Timing{
			ID:             g.ids[v],
			Duration:       g.tasks[v].Duration(),
			EarliestStart:  es[v],
			EarliestFinish: ef[v],
			LatestStart:    ls[v],
			LatestFinish:   lf[v],
			Slack:          slack,
		})
	}
	return s, nil
}
