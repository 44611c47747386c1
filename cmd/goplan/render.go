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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/aaronlmathis/goplan"
	"github.com/aaronlmathis/goplan/dag"
	"github.com/aaronlmathis/goplan/internal/ui"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func pathJSON(a *goplan.Analysis) map[string]interface{} {
	return map[string]interface{}{
		"ids":    nonNil(a.CriticalPath.IDs),
		"weight": a.CriticalPath.Weight,
	}
}

func analysisJSON(ctx context.Context, a *goplan.Analysis) (map[string]interface{}, error) {
	sections, err := a.Sections(ctx)
	if err != nil {
		return nil, err
	}
	errs := make([]string, len(a.Errors))
	for i, err := range a.Errors {
		errs[i] = err.Error()
	}
	levels := a.Levels
	if levels == nil {
		levels = [][]string{}
	}
	return map[string]interface{}{
		"run_id":        a.RunID,
		"order":         nonNil(a.Order),
		"critical_path": pathJSON(a),
		"levels":        levels,
		"span":          a.Schedule.Span,
		"schedule":      a.Records(),
		"sections":      sections,
		"skipped":       a.Skipped,
		"errors":        errs,
	}, nil
}

func renderOrder(w io.Writer, a *goplan.Analysis) error {
	fmt.Fprintln(w, ui.Heading("Order"))
	for i, id := range a.Order {
		fmt.Fprintf(w, "  %d. %s\n", i+1, id)
	}
	return nil
}

func renderCriticalPath(w io.Writer, a *goplan.Analysis) error {
	fmt.Fprintln(w, ui.Heading(fmt.Sprintf("Critical path (%s)", ui.Hours(a.CriticalPath.Weight))))
	if a.CriticalPath.Len() == 0 {
		fmt.Fprintln(w, "  (no tasks)")
		return nil
	}
	fmt.Fprintf(w, "  %s\n", ui.Chain(a.CriticalPath.IDs, true))
	return nil
}

func renderLevels(w io.Writer, a *goplan.Analysis) error {
	fmt.Fprintln(w, ui.Heading("Levels"))
	for i, ids := range a.Levels {
		fmt.Fprintf(w, "  %d: %s\n", i, strings.Join(ids, ", "))
	}
	return nil
}

func renderSchedule(w io.Writer, a *goplan.Analysis) error {
	fmt.Fprintln(w, ui.Heading(fmt.Sprintf("Schedule (span %s)", ui.Hours(a.Schedule.Span))))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  TASK\tDURATION\tSTART\tFINISH\tSLACK\tCRITICAL")
	for _, t := range a.Schedule.Timings {
		critical := ""
		if a.CriticalPath.Contains(t.ID) {
			critical = "*"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, num(t.Duration), num(t.EarliestStart), num(t.EarliestFinish), num(t.Slack), critical)
	}
	return tw.Flush()
}

func renderSections(ctx context.Context, w io.Writer, a *goplan.Analysis) error {
	sections, err := a.Sections(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, ui.Heading("Sections"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  SECTION	TASKS	HOURS	CRITICAL")
	for _, s := range sections {
		name, _ := s[goplan.FieldSection].(string)
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(tw, "  %s\t%v\t%s\t%v\n", name, s[goplan.FieldTasks], num(s[goplan.FieldHours].(float64)), s[goplan.FieldCritical])
	}
	return tw.Flush()
}

func renderValid(w io.Writer, a *goplan.Analysis) error {
	msg := fmt.Sprintf("ok: %d tasks, %d dependencies", a.Graph.Len(), a.Graph.EdgeCount())
	if a.Skipped > 0 {
		msg += fmt.Sprintf(", %d records skipped", a.Skipped)
	}
	fmt.Fprintln(w, ui.Pass(msg))
	return nil
}

func renderAnalysis(ctx context.Context, w io.Writer, a *goplan.Analysis) error {
	fmt.Fprintf(w, "%s %s\n\n", ui.Heading("Run"), ui.MutedStyle.Render(a.RunID))
	for _, render := range []func(io.Writer, *goplan.Analysis) error{
		renderValid, renderOrder, renderCriticalPath, renderLevels, renderSchedule,
	} {
		if err := render(w, a); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if err := renderSections(ctx, w, a); err != nil {
		return err
	}
	fmt.Fprintln(w)
	for _, err := range a.Errors {
		fmt.Fprintln(w, ui.MutedStyle.Render("skipped: "+err.Error()))
	}
	return nil
}

// reportError prints err, one line per cycle for cycle errors.
func reportError(w io.Writer, err error) {
	var cycleErr *dag.CycleError
	if errors.As(err, &cycleErr) {
		fmt.Fprintln(w, ui.Fail(fmt.Sprintf("%d dependency cycle(s)", len(cycleErr.Cycles))))
		for _, cycle := range cycleErr.Cycles {
			fmt.Fprintf(w, "  %s\n", dag.FormatCycle(cycle))
		}
		if cycleErr.Truncated {
			fmt.Fprintln(w, ui.MutedStyle.Render("  (more cycles not shown)"))
		}
		return
	}
	fmt.Fprintln(w, ui.Fail(err.Error()))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
