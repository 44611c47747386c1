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

package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aaronlmathis/goplan/core"
)

// Package transform normalises raw task records before they are decoded.
//
// Sources rarely agree on field names or types: a spreadsheet export may call the id
// "key", store hours as text and list dependencies as "A, B". The functions here
// return core.Transformer values for Planner.Transform. Each returns a new record
// and leaves its input untouched.

func clone(record core.Record) core.Record {
	result := make(core.Record, len(record))
	for k, v := range record {
		result[k] = v
	}
	return result
}

// Select keeps only the listed fields.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(fields))
		for _, field := range fields {
			if value, exists := record[field]; exists {
				result[field] = value
			}
		}
		return result, nil
	})
}

// Rename renames fields according to mapping (old name to new name).
// A renamed field overwrites an existing field with the new name.
func Rename(mapping map[string]string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for key, value := range record {
			if _, renamed := mapping[key]; !renamed {
				result[key] = value
			}
		}
		for oldKey, newKey := range mapping {
			if value, exists := record[oldKey]; exists {
				result[newKey] = value
			}
		}
		return result, nil
	})
}

// TrimSpace trims whitespace from the given string fields, or from every string field when none are given.
func TrimSpace(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := clone(record)
		if len(fields) == 0 {
			for k, v := range record {
				if str, ok := v.(string); ok {
					result[k] = strings.TrimSpace(str)
				}
			}
			return result, nil
		}
		for _, field := range fields {
			if str, ok := record[field].(string); ok {
				result[field] = strings.TrimSpace(str)
			}
		}
		return result, nil
	})
}

// ToLower lowercases the given string fields, e.g. priority or risk level.
func ToLower(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := clone(record)
		for _, field := range fields {
			if str, ok := record[field].(string); ok {
				result[field] = strings.ToLower(str)
			}
		}
		return result, nil
	})
}

// ToFloat converts a field to float64. Empty strings become nil.
func ToFloat(field string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return record, nil
		}
		result := clone(record)
		if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
			result[field] = nil
			return result, nil
		}
		f, err := convertToFloat(value)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field %s: %w", field, err)
		}
		result[field] = f
		return result, nil
	})
}

// SplitList splits a string field into a []string on any of the separator characters.
// Items are trimmed and empty items dropped. The default separators are ";" and ",".
func SplitList(field string, separators ...string) core.Transformer {
	seps := ";,"
	if len(separators) > 0 {
		seps = strings.Join(separators, "")
	}
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		str, ok := record[field].(string)
		if !ok {
			return record, nil
		}
		items := make([]string, 0)
		for _, part := range strings.FieldsFunc(str, func(r rune) bool { return strings.ContainsRune(seps, r) }) {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		result := clone(record)
		result[field] = items
		return result, nil
	})
}

// Default sets field to value when it is missing, nil or an empty string.
func Default(field string, value interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		current, exists := record[field]
		if exists && current != nil {
			if str, ok := current.(string); !ok || str != "" {
				return record, nil
			}
		}
		result := clone(record)
		result[field] = value
		return result, nil
	})
}

// RemoveFields removes the listed fields. Fields that don't exist are ignored.
func RemoveFields(fields ...string) core.Transformer {
	fieldsToRemove := make(map[string]bool, len(fields))
	for _, field := range fields {
		fieldsToRemove[field] = true
	}

	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for k, v := range record {
			if !fieldsToRemove[k] {
				result[k] = v
			}
		}
		return result, nil
	})
}

// Chain applies transformers in order.
func Chain(transformers ...core.Transformer) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		current := record
		for _, t := range transformers {
			next, err := t.Transform(ctx, current)
			if err != nil {
				return nil, err
			}
			current = next
		}
		return current, nil
	})
}

func convertToFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}
