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

package readers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aaronlmathis/goplan/core"
)

// Format names a task document encoding.
type Format string

const (
	FormatCSV     Format = "csv"     // One task per row, header names the fields
	FormatJSONL   Format = "jsonl"   // One JSON task object per line
	FormatPlan    Format = "plan"    // A plan object with a tasks array, or a bare array
	FormatParquet Format = "parquet" // One task per row
)

// ParseFormat validates a format name. "json" is an alias for plan.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return FormatCSV, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "plan", "json":
		return FormatPlan, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unknown task format %q", name)
	}
}

// FormatForPath infers the format from a file name or object key extension.
func FormatForPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer task format of %q", path)
	}
	return ParseFormat(ext)
}

// NewFormatReader wraps body in the reader for format. The reader owns body.
func NewFormatReader(format Format, body io.ReadCloser) (core.DataSource, error) {
	switch format {
	case FormatCSV:
		r, err := NewCSVReader(body)
		if err != nil {
			body.Close()
			return nil, err
		}
		return r, nil
	case FormatJSONL:
		return NewJSONReader(body), nil
	case FormatPlan:
		return NewPlanReader(body), nil
	case FormatParquet:
		r, err := NewParquetReaderFrom(body)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		body.Close()
		return nil, fmt.Errorf("unknown task format %q", format)
	}
}
