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
	"github.com/aaronlmathis/goplan"
	"github.com/spf13/cobra"
)

func (a *app) run(cmd *cobra.Command, withSink bool) (*goplan.Analysis, error) {
	planner, err := newPlanner(cmd.Context(), a.cfg, withSink)
	if err != nil {
		return nil, err
	}
	return planner.Execute(cmd.Context())
}

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Order tasks, find the critical path and write the schedule",
		Long: `Load the task snapshot, validate it, build the dependency graph and print its
execution order, critical path, levels and timings. When an output is configured
one schedule row per task is written to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := a.run(cmd, true)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				out, err := analysisJSON(cmd.Context(), analysis)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return renderAnalysis(cmd.Context(), cmd.OutOrStdout(), analysis)
		},
	}
}

func (a *app) orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print tasks in dependency order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := a.run(cmd, false)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"order": nonNil(analysis.Order)})
			}
			return renderOrder(cmd.OutOrStdout(), analysis)
		},
	}
}

func (a *app) criticalPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "critical-path",
		Aliases: []string{"cp"},
		Short:   "Print the heaviest dependency chain",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := a.run(cmd, false)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), pathJSON(analysis))
			}
			return renderCriticalPath(cmd.OutOrStdout(), analysis)
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	var structure bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that tasks decode and form an acyclic graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := a.run(cmd, false)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"valid":        true,
					"tasks":        analysis.Graph.Len(),
					"dependencies": analysis.Graph.EdgeCount(),
					"skipped":      analysis.Skipped,
				})
			}
			if err := renderValid(cmd.OutOrStdout(), analysis); err != nil {
				return err
			}
			if structure {
				return analysis.Graph.WriteStructure(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&structure, "structure", false, "also print every task with its dependencies and dependents")
	return cmd
}
