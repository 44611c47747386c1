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

package core

import "context"

// Package core defines the core types for the GoPlan library.
//
// GoPlan computes scheduling metadata for sets of interdependent tasks: it loads task
// snapshots from pluggable sources, builds a validated dependency graph, orders it, and
// finds the critical path.
//
// This file contains the task model and the record function adapters.

// Record represents a single raw record read from a task source.
// Each record is a map from field names to values, supporting heterogeneous data.
type Record map[string]interface{}

// TransformFunc is a function adapter for the Transformer interface.
// Allows ordinary functions to be used as Transformers.
type TransformFunc func(ctx context.Context, record Record) (Record, error)

// Transform implements the Transformer interface for TransformFunc.
func (f TransformFunc) Transform(ctx context.Context, record Record) (Record, error) {
	return f(ctx, record)
}

// FilterFunc is a function adapter for the Filter interface.
// Allows ordinary functions to be used as Filters.
type FilterFunc func(ctx context.Context, record Record) (bool, error)

// ShouldInclude implements the Filter interface for FilterFunc.
func (f FilterFunc) ShouldInclude(ctx context.Context, record Record) (bool, error) {
	return f(ctx, record)
}

// Priority is the MoSCoW priority of a task.
type Priority string

const (
	PriorityMustHave   Priority = "must_have"
	PriorityShouldHave Priority = "should_have"
	PriorityCouldHave  Priority = "could_have"
)

// Valid reports whether p is one of the known priorities. The empty priority is valid.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityMustHave, PriorityShouldHave, PriorityCouldHave:
		return true
	}
	return false
}

// ConfidenceLevel describes how much trust to place in an estimate.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Valid reports whether c is one of the known confidence levels. The empty level is valid.
func (c ConfidenceLevel) Valid() bool {
	switch c {
	case "", ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// RiskLevel grades the risk attached to a task.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// Valid reports whether r is one of the known risk levels. The empty level is valid.
func (r RiskLevel) Valid() bool {
	switch r {
	case "", RiskHigh, RiskMedium, RiskLow:
		return true
	}
	return false
}

// Estimate holds the effort estimate of a task. Hours is the only value the
// graph algorithms consume.
type Estimate struct {
	Hours           float64         `json:"hours"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level,omitempty"`
	StoryPoints     *int            `json:"story_points,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// Risk describes an optional risk assessment for a task.
type Risk struct {
	Level              RiskLevel `json:"level"`
	Description        string    `json:"description"`
	MitigationStrategy string    `json:"mitigation_strategy,omitempty"`
}

// Task is a unit of planned work. ID, DependsOn and Estimate.Hours drive the
// dependency analysis; every other field is carried along untouched.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	DependsOn   []string `json:"depends_on"`
	Estimate    Estimate `json:"estimate"`
	Risk        *Risk    `json:"risk,omitempty"`
	Section     string   `json:"section,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Duration returns the weight of the task in the dependency graph.
func (t Task) Duration() float64 {
	return t.Estimate.Hours
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Estimate.StoryPoints != nil {
		sp := *t.Estimate.StoryPoints
		c.Estimate.StoryPoints = &sp
	}
	if t.Risk != nil {
		r := *t.Risk
		c.Risk = &r
	}
	return c
}

// Plan is a named snapshot of tasks, as served by the task service.
type Plan struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tasks       []Task `json:"tasks"`
}
