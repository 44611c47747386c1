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

package validators

import (
	"errors"
	"math"
	"regexp"
	"testing"

	"github.com/aaronlmathis/goplan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(t *testing.T, err error) []string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	out := make([]string, len(ve.Errors))
	for i, fe := range ve.Errors {
		out[i] = fe.Field
	}
	return out
}

func TestValidateTask_Valid(t *testing.T) {
	task := core.Task{
		ID:        "T1",
		Priority:  core.PriorityShouldHave,
		DependsOn: []string{"T0"},
		Estimate:  core.Estimate{Hours: 4, ConfidenceLevel: core.ConfidenceHigh},
		Risk:      &core.Risk{Level: core.RiskLow},
	}
	assert.NoError(t, ValidateTask(task))
	assert.NoError(t, ValidateTask(core.Task{ID: "bare"}))
}

// TestValidateTask_StructuralRules tests the rules applied by the zero validator
func TestValidateTask_StructuralRules(t *testing.T) {
	sp := -1
	tests := []struct {
		name  string
		task  core.Task
		field []string
	}{
		{"empty id", core.Task{ID: " "}, []string{"id"}},
		{"negative hours", core.Task{ID: "a", Estimate: core.Estimate{Hours: -1}}, []string{"estimate.hours"}},
		{"nan hours", core.Task{ID: "a", Estimate: core.Estimate{Hours: math.NaN()}}, []string{"estimate.hours"}},
		{"inf hours", core.Task{ID: "a", Estimate: core.Estimate{Hours: math.Inf(1)}}, []string{"estimate.hours"}},
		{"priority", core.Task{ID: "a", Priority: "urgent"}, []string{"priority"}},
		{"confidence", core.Task{ID: "a", Estimate: core.Estimate{ConfidenceLevel: "certain"}}, []string{"estimate.confidence_level"}},
		{"story points", core.Task{ID: "a", Estimate: core.Estimate{StoryPoints: &sp}}, []string{"estimate.story_points"}},
		{"risk level", core.Task{ID: "a", Risk: &core.Risk{Level: "extreme"}}, []string{"risk.level"}},
		{"empty dependency", core.Task{ID: "a", DependsOn: []string{"b", ""}}, []string{"depends_on"}},
		{"several", core.Task{ID: "a", Priority: "x", Estimate: core.Estimate{Hours: -2}}, []string{"estimate.hours", "priority"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.field, fields(t, ValidateTask(tt.task)))
		})
	}
}

func TestTaskValidator_Options(t *testing.T) {
	v := NewTaskValidator(
		WithMaxHours(40),
		WithRequiredTitle(),
		WithIDPattern(regexp.MustCompile(`^T\d+$`)),
		WithAllowedSections("backend", "frontend"),
		WithCustomValidator(func(task core.Task) error {
			if len(task.DependsOn) > 2 {
				return errors.New("too many dependencies")
			}
			return nil
		}),
	)

	good := core.Task{ID: "T1", Title: "Ship", Section: "backend", Estimate: core.Estimate{Hours: 8}}
	assert.NoError(t, v.Validate(good))

	bad := core.Task{ID: "x1", Section: "ops", DependsOn: []string{"a", "b", "c"}, Estimate: core.Estimate{Hours: 41}}
	err := v.Validate(bad)
	assert.Equal(t, []string{"id", "title", "estimate.hours", "section", "custom"}, fields(t, err))
	assert.Contains(t, err.Error(), "task x1 failed validation")
	assert.Contains(t, err.Error(), "too many dependencies")
}
