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
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/goplan/core"
	"github.com/aaronlmathis/goplan/dag"
	"github.com/aaronlmathis/goplan/internal/ctxlog"
	"github.com/aaronlmathis/goplan/validators"
)

// Package goplan computes scheduling metadata for sets of interdependent tasks.
//
// Core Concepts:
//   - DataSource: streams raw task records (CSV, JSON, the task service, PostgreSQL, MongoDB, S3, Parquet).
//   - Transformer and Filter: normalise and select raw records before they are decoded into tasks.
//   - Planner: loads one task snapshot, builds the dependency graph and analyses it.
//   - DataSink: receives one schedule row per task (CSV, JSON, Parquet, PostgreSQL, NATS).
//   - ErrorStrategy: how record errors are handled (fail fast, skip, collect, custom handler).
//
// Example usage:
//
//   planner, err := goplan.NewPlanner().
//       From(csvReader).
//       Transform(transform.Rename(map[string]string{"task": "id"})).
//       To(jsonWriter).
//       WithErrorStrategy(goplan.SkipErrors).
//       Build()
//   if err != nil { log.Fatal(err) }
//   analysis, err := planner.Execute(context.Background())
//
// Graph errors (unknown dependency, cycle, duplicate id) always fail the analysis.

// RecordError wraps a failure on the n-th record read from the source.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// PlannerBuilder provides a fluent API for constructing planners.
// Use NewPlanner() to create a new builder, then chain From, Transform, Filter, To, and configuration methods.
type PlannerBuilder struct {
	planner *Planner
}

// NewPlanner creates a new PlannerBuilder.
func NewPlanner() *PlannerBuilder {
	return &PlannerBuilder{
		planner: &Planner{
			transformers: make([]Transformer, 0),
			filters:      make([]Filter, 0),
			strategy:     FailFast,
			validator:    validators.NewTaskValidator(),
		},
	}
}

// From sets the DataSource tasks are read from.
func (pb *PlannerBuilder) From(source DataSource) *PlannerBuilder {
	pb.planner.source = source
	return pb
}

// Transform adds a Transformer applied to every raw record.
func (pb *PlannerBuilder) Transform(transformer Transformer) *PlannerBuilder {
	pb.planner.transformers = append(pb.planner.transformers, transformer)
	return pb
}

// Filter adds a Filter applied to every transformed record.
func (pb *PlannerBuilder) Filter(filter Filter) *PlannerBuilder {
	pb.planner.filters = append(pb.planner.filters, filter)
	return pb
}

// Map adds a mapping transformation using a function.
func (pb *PlannerBuilder) Map(fn func(ctx context.Context, record Record) (Record, error)) *PlannerBuilder {
	return pb.Transform(TransformFunc(fn))
}

// Where adds a filtering condition using a function.
func (pb *PlannerBuilder) Where(fn func(ctx context.Context, record Record) (bool, error)) *PlannerBuilder {
	return pb.Filter(FilterFunc(fn))
}

// To sets the DataSink that receives the schedule rows. Optional.
func (pb *PlannerBuilder) To(sink DataSink) *PlannerBuilder {
	pb.planner.sink = sink
	return pb
}

// WithErrorStrategy sets the record error handling strategy.
func (pb *PlannerBuilder) WithErrorStrategy(strategy ErrorStrategy) *PlannerBuilder {
	pb.planner.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom record error handler.
func (pb *PlannerBuilder) WithErrorHandler(handler ErrorHandler) *PlannerBuilder {
	pb.planner.errorHandler = handler
	return pb
}

// WithValidator replaces the default task validator. Nil disables validation.
func (pb *PlannerBuilder) WithValidator(validator *validators.TaskValidator) *PlannerBuilder {
	pb.planner.validator = validator
	return pb
}

// WithBuildOptions sets the options passed to dag.Build.
func (pb *PlannerBuilder) WithBuildOptions(opts ...dag.BuildOption) *PlannerBuilder {
	pb.planner.buildOpts = append(pb.planner.buildOpts, opts...)
	return pb
}

// Build validates and constructs the Planner.
func (pb *PlannerBuilder) Build() (*Planner, error) {
	if pb.planner.source == nil {
		return nil, fmt.Errorf("planner requires a data source")
	}
	return pb.planner, nil
}

// Planner loads a task snapshot from a DataSource and analyses it.
type Planner struct {
	transformers []Transformer
	filters      []Filter
	source       DataSource
	sink         DataSink
	strategy     ErrorStrategy
	errorHandler ErrorHandler
	validator    *validators.TaskValidator
	buildOpts    []dag.BuildOption
}

// Execute reads every record, decodes and validates tasks, analyses the snapshot and
// writes the schedule rows to the sink if one is set. Source and sink are closed
// before Execute returns.
func (p *Planner) Execute(ctx context.Context) (analysis *Analysis, err error) {
	logger := ctxlog.FromContext(ctx)

	defer func() {
		if p.source != nil {
			if cerr := p.source.Close(); cerr != nil {
				logger.Warn("closing source", "error", cerr)
			}
		}
		if p.sink != nil {
			if cerr := p.sink.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing sink: %w", cerr)
			}
		}
	}()

	tasks, loadStats, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("tasks loaded", "tasks", len(tasks), "skipped", loadStats.skipped)

	analysis, err = Analyze(ctx, tasks, p.buildOpts...)
	if err != nil {
		return nil, err
	}
	analysis.Skipped = loadStats.skipped
	analysis.Errors = loadStats.errors

	if p.sink != nil {
		if err := analysis.Export(ctx, p.sink); err != nil {
			return analysis, err
		}
	}
	return analysis, nil
}

type loadStats struct {
	skipped int
	errors  []error
}

// load drains the source into decoded, validated tasks.
func (p *Planner) load(ctx context.Context) ([]core.Task, loadStats, error) {
	var (
		tasks []core.Task
		stats loadStats
	)

	fail := func(index int, record Record, err error) error {
		recErr := &RecordError{Index: index, Err: err}
		if herr := p.handleError(ctx, record, recErr); herr != nil {
			return herr
		}
		stats.skipped++
		if p.strategy == CollectErrors {
			stats.errors = append(stats.errors, recErr)
		}
		return nil
	}

	for index := 0; ; index++ {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}

		// Read next record
		record, err := p.source.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, stats, err
			}
			if err := fail(index, record, err); err != nil {
				return nil, stats, err
			}
			continue
		}

		// Skip empty records early
		if len(record) == 0 {
			continue
		}

		transformed, err := p.applyTransformations(ctx, record)
		if err != nil {
			if err := fail(index, record, err); err != nil {
				return nil, stats, err
			}
			continue
		}
		if len(transformed) == 0 {
			continue
		}

		include, err := p.applyFilters(ctx, transformed)
		if err != nil {
			if err := fail(index, transformed, err); err != nil {
				return nil, stats, err
			}
			continue
		}
		if !include {
			continue
		}

		task, err := core.TaskFromRecord(transformed)
		if err == nil && p.validator != nil {
			err = p.validator.Validate(task)
		}
		if err != nil {
			if err := fail(index, transformed, err); err != nil {
				return nil, stats, err
			}
			continue
		}
		tasks = append(tasks, task)
	}

	return tasks, stats, nil
}

// applyFilters applies all configured filters to a record.
func (p *Planner) applyFilters(ctx context.Context, record Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

// applyTransformations applies all configured transformers to a record in sequence.
func (p *Planner) applyTransformations(ctx context.Context, record Record) (Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

// handleError applies the error strategy and handler. A non-nil result stops loading.
func (p *Planner) handleError(ctx context.Context, record Record, err error) error {
	switch p.strategy {
	case FailFast:
		return err
	case SkipErrors, CollectErrors:
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		ctxlog.FromContext(ctx).Warn("skipping task record", "error", err)
		return nil
	default:
		return err
	}
}
