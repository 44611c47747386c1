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

// validators.go - Task validation run before graph construction
package validators

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/aaronlmathis/goplan/core"
)

// ValidationError holds the field-level failures of one task.
type ValidationError struct {
	TaskID string
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return fmt.Sprintf("task %s failed validation: %s", e.TaskID, strings.Join(parts, "; "))
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// TaskValidator checks decoded tasks for constraint violations.
// The zero value applies only the structural rules every task must satisfy.
type TaskValidator struct {
	MaxHours         float64                // Largest accepted estimate (0 = unlimited)
	RequireTitle     bool                   // Reject tasks without a title
	IDPattern        *regexp.Regexp         // Optional pattern task ids must match
	AllowedSections  []string               // Whitelist of sections (empty = any)
	CustomValidators []func(core.Task) error // Extra per-task rules
}

// TaskValidatorOption configures a TaskValidator
type TaskValidatorOption func(*TaskValidator)

// WithMaxHours rejects estimates above max hours
func WithMaxHours(max float64) TaskValidatorOption {
	return func(v *TaskValidator) {
		v.MaxHours = max
	}
}

// WithRequiredTitle rejects tasks without a title
func WithRequiredTitle() TaskValidatorOption {
	return func(v *TaskValidator) {
		v.RequireTitle = true
	}
}

// WithIDPattern requires task ids to match pattern
func WithIDPattern(pattern *regexp.Regexp) TaskValidatorOption {
	return func(v *TaskValidator) {
		v.IDPattern = pattern
	}
}

// WithAllowedSections restricts the section field to the given values
func WithAllowedSections(sections ...string) TaskValidatorOption {
	return func(v *TaskValidator) {
		v.AllowedSections = append(v.AllowedSections, sections...)
	}
}

// WithCustomValidator adds a custom per-task rule
func WithCustomValidator(fn func(core.Task) error) TaskValidatorOption {
	return func(v *TaskValidator) {
		v.CustomValidators = append(v.CustomValidators, fn)
	}
}

// NewTaskValidator creates a validator with the given options
func NewTaskValidator(options ...TaskValidatorOption) *TaskValidator {
	v := &TaskValidator{}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Validate returns a *ValidationError if any rule fails, or nil if the task is valid
func (v *TaskValidator) Validate(task core.Task) error {
	ve := ValidationError{TaskID: task.ID}
	add := func(field, format string, args ...interface{}) {
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(task.ID) == "" {
		add("id", "is required")
	} else if v.IDPattern != nil && !v.IDPattern.MatchString(task.ID) {
		add("id", "must match %s", v.IDPattern.String())
	}

	if v.RequireTitle && strings.TrimSpace(task.Title) == "" {
		add("title", "is required")
	}

	hours := task.Estimate.Hours
	switch {
	case math.IsNaN(hours) || math.IsInf(hours, 0):
		add("estimate.hours", "must be a finite number")
	case hours < 0:
		add("estimate.hours", "must not be negative, got %g", hours)
	case v.MaxHours > 0 && hours > v.MaxHours:
		add("estimate.hours", "must be at most %g, got %g", v.MaxHours, hours)
	}

	if !task.Priority.Valid() {
		add("priority", "invalid value %q", task.Priority)
	}
	if !task.Estimate.ConfidenceLevel.Valid() {
		add("estimate.confidence_level", "invalid value %q", task.Estimate.ConfidenceLevel)
	}
	if task.Estimate.StoryPoints != nil && *task.Estimate.StoryPoints < 0 {
		add("estimate.story_points", "must not be negative")
	}
	if task.Risk != nil && !task.Risk.Level.Valid() {
		add("risk.level", "invalid value %q", task.Risk.Level)
	}

	for i, dep := range task.DependsOn {
		if strings.TrimSpace(dep) == "" {
			add("depends_on", "entry %d is empty", i)
		}
	}

	if len(v.AllowedSections) > 0 && task.Section != "" && !contains(v.AllowedSections, task.Section) {
		add("section", "%q is not allowed", task.Section)
	}

	for i, custom := range v.CustomValidators {
		if err := custom(task); err != nil {
			add("custom", "validator %d: %v", i, err)
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateTask checks a task against the structural rules only
func ValidateTask(task core.Task) error {
	return (&TaskValidator{}).Validate(task)
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
