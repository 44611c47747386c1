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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/goplan/core"
)

// PlanReader implements DataSource for a single plan document, either an object
// {"name": ..., "description": ..., "tasks": [...]} or a bare array of tasks.
// The document is decoded on the first Read.
type PlanReader struct {
	r           io.ReadCloser
	loaded      bool
	records     []core.Record
	pos         int
	name        string
	description string
}

// NewPlanReader creates a reader over a plan document
func NewPlanReader(r io.ReadCloser) *PlanReader {
	return &PlanReader{r: r}
}

// Read implements the DataSource interface
func (p *PlanReader) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &JSONReaderError{Op: "read", Err: err}
	}
	if !p.loaded {
		if err := p.load(); err != nil {
			return nil, err
		}
	}
	if p.pos >= len(p.records) {
		return nil, io.EOF
	}
	record := p.records[p.pos]
	p.pos++
	return record, nil
}

// Name returns the plan name once the document has been read.
func (p *PlanReader) Name() string {
	return p.name
}

// Description returns the plan description once the document has been read.
func (p *PlanReader) Description() string {
	return p.description
}

// Close implements the DataSource interface
func (p *PlanReader) Close() error {
	if p.r != nil {
		return p.r.Close()
	}
	return nil
}

func (p *PlanReader) load() error {
	p.loaded = true

	dec := json.NewDecoder(p.r)
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return &JSONReaderError{Op: "decode_plan", Err: err}
	}

	var tasks interface{}
	switch v := doc.(type) {
	case []interface{}:
		tasks = v
	case map[string]interface{}:
		p.name, _ = v["name"].(string)
		p.description, _ = v["description"].(string)
		var ok bool
		if tasks, ok = v["tasks"]; !ok {
			return &JSONReaderError{Op: "decode_plan", Err: errors.New("document has no tasks field")}
		}
	default:
		return &JSONReaderError{Op: "decode_plan", Err: fmt.Errorf("unexpected document type %T", doc)}
	}

	records, err := convertToRecords(tasks)
	if err != nil {
		return &JSONReaderError{Op: "decode_plan", Err: err}
	}
	p.records = records
	return nil
}

// RecordsFromPlan returns the raw records of a typed plan.
func RecordsFromPlan(plan core.Plan) []core.Record {
	records := make([]core.Record, len(plan.Tasks))
	for i, task := range plan.Tasks {
		records[i] = core.RecordFromTask(task)
	}
	return records
}

// SliceReader implements DataSource over records already in memory.
type SliceReader struct {
	records []core.Record
	pos     int
}

// NewSliceReader creates a reader over records
func NewSliceReader(records []core.Record) *SliceReader {
	return &SliceReader{records: records}
}

// Read implements the DataSource interface
func (s *SliceReader) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	record := s.records[s.pos]
	s.pos++
	return record, nil
}

// Close implements the DataSource interface
func (s *SliceReader) Close() error {
	return nil
}
