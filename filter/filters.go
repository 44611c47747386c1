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

package filter

import (
	"context"
	"fmt"
	"reflect"
	"regexp"

	"github.com/aaronlmathis/goplan/core"
)

// Package filter selects which raw task records take part in a plan, for example one
// project's rows from a shared tasks table. All functions return core.Filter values
// for Planner.Filter.

// NotNull excludes records where the field is missing, nil or an empty string.
func NotNull(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return false, nil
		}
		if str, ok := value.(string); ok && str == "" {
			return false, nil
		}
		return true, nil
	})
}

// Equals includes records where the field equals expected.
// A string expected value also matches the formatted form of non-string values, so
// Equals("sprint", "3") matches an int64 3 read from a database.
func Equals(field string, expected interface{}) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists {
			return false, nil
		}
		return matches(value, expected), nil
	})
}

// NotEquals includes records where the field is missing or differs from unwanted.
func NotEquals(field string, unwanted interface{}) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists {
			return true, nil
		}
		return !matches(value, unwanted), nil
	})
}

// In includes records where the field equals any of values.
func In(field string, values ...interface{}) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists {
			return false, nil
		}
		for _, v := range values {
			if matches(value, v) {
				return true, nil
			}
		}
		return false, nil
	})
}

// MatchesRegex includes records where the string field matches pattern.
func MatchesRegex(field, pattern string) (core.Filter, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", field, err)
	}
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		if str, ok := record[field].(string); ok {
			return regex.MatchString(str), nil
		}
		return false, nil
	}), nil
}

// And requires all filters to pass.
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Or requires at least one filter to pass.
func Or(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not negates filter.
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

func matches(value, expected interface{}) bool {
	if reflect.DeepEqual(value, expected) {
		return true
	}
	if str, ok := expected.(string); ok && value != nil {
		return fmt.Sprint(value) == str
	}
	return false
}
