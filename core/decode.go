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

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// This file converts between raw records and Tasks.

// Field names recognised by TaskFromRecord.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldPriority    = "priority"
	FieldDependsOn   = "depends_on"
	FieldEstimate    = "estimate"
	FieldRisk        = "risk"
	FieldSection     = "section"
	FieldTags        = "tags"
)

// durationFields are the flat fallbacks for estimate.hours, in lookup order.
var durationFields = []string{"estimate_hours", "hours", "duration"}

// TaskFromRecord decodes a raw record into a Task.
//
// The duration is taken from estimate.hours when estimate is a nested object, otherwise
// from the first of estimate_hours, hours or duration present. depends_on may be a list,
// a JSON array string, or a string separated by ';' or ','. Absent durations are 0.
func TaskFromRecord(record Record) (Task, error) {
	var task Task

	id, ok := record[FieldID]
	if !ok || id == nil {
		return task, &DecodeError{Field: FieldID, Err: errors.New("missing task id")}
	}
	task.ID = strings.TrimSpace(toString(id))
	if task.ID == "" {
		return task, &DecodeError{Field: FieldID, Err: errors.New("empty task id")}
	}

	task.Title = toString(record[FieldTitle])
	task.Description = toString(record[FieldDescription])
	task.Priority = Priority(strings.ToLower(toString(record[FieldPriority])))
	task.Section = toString(record[FieldSection])

	deps, err := toStringSlice(record[FieldDependsOn])
	if err != nil {
		return task, &DecodeError{Field: FieldDependsOn, Err: err}
	}
	task.DependsOn = deps

	tags, err := toStringSlice(record[FieldTags])
	if err != nil {
		return task, &DecodeError{Field: FieldTags, Err: err}
	}
	task.Tags = tags

	if err := decodeEstimate(record, &task.Estimate); err != nil {
		return task, err
	}

	risk, err := decodeRisk(record)
	if err != nil {
		return task, err
	}
	task.Risk = risk

	return task, nil
}

// RecordFromTask encodes a Task as a raw record that TaskFromRecord accepts.
func RecordFromTask(task Task) Record {
	estimate := map[string]interface{}{
		"hours": task.Estimate.Hours,
	}
	if task.Estimate.ConfidenceLevel != "" {
		estimate["confidence_level"] = string(task.Estimate.ConfidenceLevel)
	}
	if task.Estimate.StoryPoints != nil {
		estimate["story_points"] = *task.Estimate.StoryPoints
	}
	if task.Estimate.Notes != "" {
		estimate["notes"] = task.Estimate.Notes
	}

	record := Record{
		FieldID:        task.ID,
		FieldDependsOn: append([]string{}, task.DependsOn...),
		FieldEstimate:  estimate,
	}
	if task.Title != "" {
		record[FieldTitle] = task.Title
	}
	if task.Description != "" {
		record[FieldDescription] = task.Description
	}
	if task.Priority != "" {
		record[FieldPriority] = string(task.Priority)
	}
	if task.Section != "" {
		record[FieldSection] = task.Section
	}
	if len(task.Tags) > 0 {
		record[FieldTags] = append([]string{}, task.Tags...)
	}
	if task.Risk != nil {
		record[FieldRisk] = map[string]interface{}{
			"level":               string(task.Risk.Level),
			"description":         task.Risk.Description,
			"mitigation_strategy": task.Risk.MitigationStrategy,
		}
	}
	return record
}

func decodeEstimate(record Record, est *Estimate) error {
	nested := asMap(record[FieldEstimate])

	var raw interface{}
	field := ""
	if nested != nil {
		raw, field = nested["hours"], FieldEstimate+".hours"
	} else if v, ok := record[FieldEstimate]; ok && v != nil {
		raw, field = v, FieldEstimate
	} else {
		for _, name := range durationFields {
			if v, ok := record[name]; ok && v != nil {
				raw, field = v, name
				break
			}
		}
	}
	if raw != nil {
		hours, err := toFloat(raw)
		if err != nil {
			return &DecodeError{Field: field, Err: err}
		}
		est.Hours = hours
	}

	lookup := func(name string) interface{} {
		if nested != nil {
			if v, ok := nested[name]; ok {
				return v
			}
		}
		return record[name]
	}

	est.ConfidenceLevel = ConfidenceLevel(strings.ToLower(toString(lookup("confidence_level"))))
	est.Notes = toString(lookup("notes"))
	if sp := lookup("story_points"); sp != nil && toString(sp) != "" {
		f, err := toFloat(sp)
		if err != nil {
			return &DecodeError{Field: "story_points", Err: err}
		}
		n := int(f)
		est.StoryPoints = &n
	}
	return nil
}

func decodeRisk(record Record) (*Risk, error) {
	if nested := asMap(record[FieldRisk]); nested != nil {
		return &Risk{
			Level:              RiskLevel(strings.ToLower(toString(nested["level"]))),
			Description:        toString(nested["description"]),
			MitigationStrategy: toString(nested["mitigation_strategy"]),
		}, nil
	}
	level := toString(record["risk_level"])
	if level == "" {
		return nil, nil
	}
	return &Risk{
		Level:              RiskLevel(strings.ToLower(level)),
		Description:        toString(record["risk_description"]),
		MitigationStrategy: toString(record["risk_mitigation"]),
	}, nil
}

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case Record:
		return m
	case string:
		s := strings.TrimSpace(m)
		if strings.HasPrefix(s, "{") {
			var out map[string]interface{}
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	case []byte:
		return asMap(string(m))
	}
	return nil
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", val)
		}
		return f, nil
	case []byte:
		return toFloat(string(val))
	case bool:
		return 0, fmt.Errorf("invalid number %v", val)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// toStringSlice accepts lists, JSON array strings and ';' or ',' separated strings.
// Empty elements are dropped.
func toStringSlice(v interface{}) ([]string, error) {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case []string:
		for _, s := range val {
			add(s)
		}
	case []interface{}:
		for _, item := range val {
			switch item.(type) {
			case []interface{}, map[string]interface{}:
				return nil, fmt.Errorf("nested value %v in list", item)
			}
			add(toString(item))
		}
	case string:
		s := strings.TrimSpace(val)
		if strings.HasPrefix(s, "[") {
			var items []interface{}
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				return nil, fmt.Errorf("invalid list %q: %w", val, err)
			}
			return toStringSlice(items)
		}
		sep := ";"
		if !strings.Contains(s, sep) {
			sep = ","
		}
		for _, part := range strings.Split(s, sep) {
			add(part)
		}
	case []byte:
		return toStringSlice(string(val))
	case float64:
		if math.IsNaN(val) {
			return nil, nil
		}
		add(toString(val))
	case int, int32, int64, uint, uint32, uint64, json.Number:
		add(toString(val))
	default:
		return nil, fmt.Errorf("unsupported list type %T", v)
	}
	return out, nil
}
