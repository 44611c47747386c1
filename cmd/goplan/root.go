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
	"os"

	"github.com/aaronlmathis/goplan/internal/config"
	"github.com/aaronlmathis/goplan/internal/ctxlog"
	"github.com/aaronlmathis/goplan/internal/ui"
	"github.com/spf13/cobra"
)

// app holds the global flags and the configuration resolved from them.
type app struct {
	configPath string
	sourcePath string
	sourceKind string
	logLevel   string
	logFormat  string
	duplicates string
	jsonOutput bool
	noColor    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "goplan <command>",
		Short:         "Order tasks and find the critical path of a dependency graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("GOPLAN_CONFIG"), "path to a TOML config file")
	flags.StringVarP(&a.sourcePath, "source", "s", "", "task file (kind inferred from extension)")
	flags.StringVar(&a.sourceKind, "source-kind", "", "source kind: csv, jsonl, plan, parquet, http, postgres, mongo, s3")
	flags.BoolVar(&a.jsonOutput, "json", false, "output as JSON")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.BoolVar(&a.noColor, "no-color", false, "disable coloured output")
	flags.StringVar(&a.duplicates, "duplicates", "", "duplicate task ids: reject or last-write-wins")

	root.AddCommand(
		a.analyzeCmd(),
		a.orderCmd(),
		a.criticalPathCmd(),
		a.validateCmd(),
	)
	return root
}

// setup loads the config, applies flag overrides and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.sourcePath != "" {
		cfg.Source.Path = a.sourcePath
	}
	if a.sourceKind != "" {
		cfg.Source.Kind = a.sourceKind
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.duplicates != "" {
		cfg.Analysis.Duplicates = a.duplicates
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	ui.Init(os.Stdout, a.noColor)
	logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}
