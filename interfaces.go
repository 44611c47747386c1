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
	"github.com/aaronlmathis/goplan/core"
)

// Package goplan defines the top-level interfaces and types for the GoPlan library.
//
// The names below alias the core package so that callers can work with a single import.

// Record represents a single raw task record.
type Record = core.Record

// Task is a unit of planned work.
type Task = core.Task

// DataSource streams raw task records.
type DataSource = core.DataSource

// DataSink receives analysis rows.
type DataSink = core.DataSink

// Transformer normalises raw records before decoding.
type Transformer = core.Transformer

// TransformFunc is a function adapter for the Transformer interface.
type TransformFunc = core.TransformFunc

// Filter selects the raw records that take part in the plan.
type Filter = core.Filter

// FilterFunc is a function adapter for the Filter interface.
type FilterFunc = core.FilterFunc

// ErrorHandler handles record errors while loading tasks.
type ErrorHandler = core.ErrorHandler

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc = core.ErrorHandlerFunc

// ErrorStrategy defines how record errors are handled.
type ErrorStrategy = core.ErrorStrategy

const (
	// FailFast stops processing on the first error encountered.
	FailFast = core.FailFast
	// SkipErrors continues processing, skipping failed records.
	SkipErrors = core.SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors = core.CollectErrors
)
