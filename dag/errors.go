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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownDependency matches any *UnknownDependencyError.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrCycle matches any *CycleError.
	ErrCycle = errors.New("dependency cycle")
	// ErrDuplicateTask matches any *DuplicateTaskError.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrInvalidDuration matches any *InvalidDurationError.
	ErrInvalidDuration = errors.New("invalid task duration")
)

// UnknownDependencyError reports a task that depends on an id absent from the input.
type UnknownDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %s depends on non-existent task %s", e.TaskID, e.DependencyID)
}

func (e *UnknownDependencyError) Is(target error) bool {
	return target == ErrUnknownDependency
}

// CycleError reports circular dependencies. Each distinct elementary cycle is listed
// once, its ids in edge order starting at its smallest id; the closing edge back to the
// first id is implied. Truncated is set when the cycle cap cut the list short.
type CycleError struct {
	Cycles    [][]string
	Truncated bool
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Cycles)+1)
	for _, c := range e.Cycles {
		parts = append(parts, FormatCycle(c))
	}
	if e.Truncated {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("circular dependencies detected: %s", strings.Join(parts, "; "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// DuplicateTaskError reports a task id that appears more than once.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task id %s", e.TaskID)
}

func (e *DuplicateTaskError) Is(target error) bool {
	return target == ErrDuplicateTask
}

// InvalidDurationError reports a task whose duration is negative, NaN or infinite.
type InvalidDurationError struct {
	TaskID string
	Hours  float64
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("task %s has invalid duration %v", e.TaskID, e.Hours)
}

func (e *InvalidDurationError) Is(target error) bool {
	return target == ErrInvalidDuration
}

// FormatCycle renders a cycle as "a -> b -> a".
func FormatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(append(append([]string{}, cycle...), cycle[0]), " -> ")
}
