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

package goplan

import (
	"context"
	"fmt"

	"github.com/aaronlmathis/goplan/aggregate"
	"github.com/aaronlmathis/goplan/core"
	"github.com/aaronlmathis/goplan/dag"
	"github.com/aaronlmathis/goplan/internal/ctxlog"
	"github.com/aaronlmathis/goplan/internal/idgen"
)

// Schedule row fields produced by Analysis.Records.
const (
	FieldRunID          = "run_id"
	FieldPosition       = "position"
	FieldTaskID         = "task_id"
	FieldTitle          = "title"
	FieldSection        = "section"
	FieldLevel          = "level"
	FieldDuration       = "duration"
	FieldEarliestStart  = "earliest_start"
	FieldEarliestFinish = "earliest_finish"
	FieldLatestStart    = "latest_start"
	FieldLatestFinish   = "latest_finish"
	FieldSlack          = "slack"
	FieldCritical       = "critical"
	FieldCriticalIndex  = "critical_index"
)

// RecordFields lists the schedule row fields in column order.
var RecordFields = []string{
	FieldRunID, FieldPosition, FieldTaskID, FieldTitle, FieldSection, FieldLevel,
	FieldDuration, FieldEarliestStart, FieldEarliestFinish, FieldLatestStart,
	FieldLatestFinish, FieldSlack, FieldCritical, FieldCriticalIndex,
}

// Analysis is the result of analysing one task snapshot.
type Analysis struct {
	RunID        string
	Graph        *dag.Graph
	Order        []string
	CriticalPath dag.Path
	Levels       [][]string
	Schedule     *dag.Schedule

	// Skipped counts records dropped under SkipErrors or CollectErrors.
	Skipped int
	// Errors holds the record errors kept under CollectErrors.
	Errors []error
}

// Analyze builds the dependency graph of tasks and computes its order, critical path,
// levels and schedule. Any graph error aborts the analysis.
func Analyze(ctx context.Context, tasks []core.Task, opts ...dag.BuildOption) (*Analysis, error) {
	logger := ctxlog.FromContext(ctx)

	runID, err := idgen.RunID()
	if err != nil {
		return nil, err
	}
	logger = logger.With("run_id", runID)

	g, err := dag.Build(tasks, opts...)
	if err != nil {
		logger.Debug("graph build failed", "tasks", len(tasks), "error", err)
		return nil, err
	}
	logger.Debug("graph built", "tasks", g.Len(), "dependencies", g.EdgeCount())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order, err := dag.TopologicalOrder(g)
	if err != nil {
		return nil, err
	}
	path, err := dag.CriticalPathOf(g)
	if err != nil {
		return nil, err
	}
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	schedule, err := g.Schedule()
	if err != nil {
		return nil, err
	}

	logger.Info("analysis complete",
		"tasks", g.Len(),
		"levels", len(levels),
		"critical_path", path.IDs,
		"critical_weight", path.Weight,
		"span", schedule.Span,
	)

	return &Analysis{
		RunID:        runID,
		Graph:        g,
		Order:        order,
		CriticalPath: path,
		Levels:       levels,
		Schedule:     schedule,
	}, nil
}

// Records returns one schedule row per task, in execution order.
func (a *Analysis) Records() []core.Record {
	level := make(map[string]int, len(a.Order))
	for l, ids := range a.Levels {
		for _, id := range ids {
			level[id] = l
		}
	}
	timings := make(map[string]dag.Timing, len(a.Order))
	for _, t := range a.Schedule.Timings {
		timings[t.ID] = t
	}
	critical := make(map[string]int, len(a.CriticalPath.IDs))
	for i, id := range a.CriticalPath.IDs {
		critical[id] = i
	}

	records := make([]core.Record, 0, len(a.Order))
	for pos, id := range a.Order {
		task, _ := a.Graph.Task(id)
		timing := timings[id]
		index, onPath := critical[id]
		if !onPath {
			index = -1
		}
		records = append(records, core.Record{
			FieldRunID:          a.RunID,
			FieldPosition:       int64(pos + 1),
			FieldTaskID:         id,
			FieldTitle:          task.Title,
			FieldSection:        task.Section,
			FieldLevel:          int64(level[id]),
			FieldDuration:       task.Duration(),
			FieldEarliestStart:  timing.EarliestStart,
			FieldEarliestFinish: timing.EarliestFinish,
			FieldLatestStart:    timing.LatestStart,
			FieldLatestFinish:   timing.LatestFinish,
			FieldSlack:          timing.Slack,
			FieldCritical:       onPath,
			FieldCriticalIndex:  int64(index),
		})
	}
	return records
}

// Section summary fields produced by Analysis.Sections.
const (
	FieldTasks    = "tasks"
	FieldHours    = "hours"
	FieldMaxSlack = "max_slack"
)

// Sections summarises the schedule rows per section, ordered by section name: task
// count, total hours, number of critical tasks and the largest slack.
func (a *Analysis) Sections(ctx context.Context) ([]core.Record, error) {
	return aggregate.NewGroupBy(FieldSection).
		Count(FieldTasks).
		Sum(FieldDuration, FieldHours).
		CountTrue(FieldCritical, FieldCritical).
		Max(FieldSlack, FieldMaxSlack).
		Process(ctx, a.Records())
}

// Export writes every schedule row to sink and flushes it. The sink is not closed.
func (a *Analysis) Export(ctx context.Context, sink core.DataSink) error {
	for _, record := range a.Records() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.Write(ctx, record); err != nil {
			return fmt.Errorf("write schedule row %v: %w", record[FieldTaskID], err)
		}
	}
	return sink.Flush()
}
