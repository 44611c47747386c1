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
	"strings"

	"github.com/aaronlmathis/goplan/core"
)

// Package dag builds and analyses task dependency graphs.
//
// A Graph is built once from a snapshot of tasks and never changes afterwards; every
// analysis (ordering, levels, critical path, timings) is a read-only view, so a Graph
// may be shared between goroutines without locking.

// Graph is an immutable, validated dependency graph. Nodes are task ids; an edge
// dep -> task exists for every dependency a task lists.
type Graph struct {
	ids   []string       // ascending; a node's index orders it by id
	index map[string]int // id -> node index
	tasks []core.Task    // by node index
	succs [][]int        // ascending node indexes
	preds [][]int        // ascending node indexes
	edges int

	maxCycles int // cap on cycles reported by a CycleError
}

// Edge is a directed dependency edge. Weight is the duration of To.
type Edge struct {
	From   string
	To     string
	Weight float64
}

// Path is a chain of task ids and its weight. For a critical path the weight is the
// sum of the durations of every task after the first.
type Path struct {
	IDs    []string `json:"ids"`
	Weight float64  `json:"weight"`
}

// Len returns the number of tasks on the path.
func (p Path) Len() int {
	return len(p.IDs)
}

// Contains reports whether id lies on the path.
func (p Path) Contains(id string) bool {
	for _, v := range p.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// Timing holds the relative schedule of one task when every task starts as soon as
// its dependencies finish. All values are in estimate hours from project start.
type Timing struct {
	ID             string  `json:"id"`
	Duration       float64 `json:"duration"`
	EarliestStart  float64 `json:"earliest_start"`
	EarliestFinish float64 `json:"earliest_finish"`
	LatestStart    float64 `json:"latest_start"`
	LatestFinish   float64 `json:"latest_finish"`
	Slack          float64 `json:"slack"`
}

// Schedule is the set of task timings in topological order plus the overall span.
type Schedule struct {
	Span    float64  `json:"span"`
	Timings []Timing `json:"timings"`
}

// Timing returns the timing of id.
func (s *Schedule) Timing(id string) (Timing, bool) {
	for _, t := range s.Timings {
		if t.ID == id {
			return t, true
		}
	}
	return Timing{}, false
}

// DuplicatePolicy decides what Build does when two tasks share an id.
type DuplicatePolicy int

const (
	// RejectDuplicates fails the build with a DuplicateTaskError.
	RejectDuplicates DuplicatePolicy = iota
	// LastWriteWins keeps only the last task with a given id, dependencies included.
	LastWriteWins
)

// String returns the configuration name of the policy.
func (p DuplicatePolicy) String() string {
	switch p {
	case LastWriteWins:
		return "last-write-wins"
	default:
		return "reject"
	}
}

// ParseDuplicatePolicy maps a configuration name to a DuplicatePolicy.
func ParseDuplicatePolicy(name string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "reject", "error":
		return RejectDuplicates, nil
	case "last-write-wins", "last", "lww":
		return LastWriteWins, nil
	}
	return RejectDuplicates, fmt.Errorf("unknown duplicate policy %q", name)
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	duplicates DuplicatePolicy
	maxCycles  int
}

func (o *buildOptions) withDefaults() {
	if o.duplicates != LastWriteWins {
		o.duplicates = RejectDuplicates
	}
	if o.maxCycles <= 0 {
		o.maxCycles = DefaultMaxCycles
	}
}

// WithDuplicatePolicy sets how duplicate task ids are handled.
func WithDuplicatePolicy(policy DuplicatePolicy) BuildOption {
	return func(o *buildOptions) {
		o.duplicates = policy
	}
}

// DefaultMaxCycles bounds the cycles a CycleError lists unless WithMaxCycles says otherwise.
const DefaultMaxCycles = 100

// WithMaxCycles caps how many distinct cycles a CycleError lists. Values below one
// select DefaultMaxCycles.
func WithMaxCycles(n int) BuildOption {
	return func(o *buildOptions) {
		o.maxCycles = n
	}
}
