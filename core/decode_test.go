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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskFromRecord_NestedEstimate tests the shape served by the task service
func TestTaskFromRecord_NestedEstimate(t *testing.T) {
	record := Record{
		"id":          "T2",
		"title":       "Build API",
		"priority":    "Must_Have",
		"depends_on":  []interface{}{"T1"},
		"section":     "backend",
		"tags":        []interface{}{"api", "go"},
		"estimate":    map[string]interface{}{"hours": 6.5, "confidence_level": "medium", "story_points": float64(5)},
		"risk":        map[string]interface{}{"level": "high", "description": "new vendor", "mitigation_strategy": "spike"},
		"description": "REST endpoints",
	}

	task, err := TaskFromRecord(record)
	require.NoError(t, err)

	assert.Equal(t, "T2", task.ID)
	assert.Equal(t, "Build API", task.Title)
	assert.Equal(t, PriorityMustHave, task.Priority)
	assert.Equal(t, []string{"T1"}, task.DependsOn)
	assert.Equal(t, []string{"api", "go"}, task.Tags)
	assert.Equal(t, 6.5, task.Duration())
	assert.Equal(t, ConfidenceMedium, task.Estimate.ConfidenceLevel)
	require.NotNil(t, task.Estimate.StoryPoints)
	assert.Equal(t, 5, *task.Estimate.StoryPoints)
	require.NotNil(t, task.Risk)
	assert.Equal(t, RiskHigh, task.Risk.Level)
	assert.Equal(t, "spike", task.Risk.MitigationStrategy)
}

// TestTaskFromRecord_FlatFields tests rows coming from CSV or SQL sources
func TestTaskFromRecord_FlatFields(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		wantDeps []string
		wantDur  float64
	}{
		{
			name:     "semicolon list and hours",
			record:   Record{"id": "C", "depends_on": "A; B", "hours": "3"},
			wantDeps: []string{"A", "B"},
			wantDur:  3,
		},
		{
			name:     "comma list and duration",
			record:   Record{"id": "C", "depends_on": "A,B", "duration": int64(2)},
			wantDeps: []string{"A", "B"},
			wantDur:  2,
		},
		{
			name:     "json array string",
			record:   Record{"id": "C", "depends_on": `["A","B"]`, "estimate_hours": 1.5},
			wantDeps: []string{"A", "B"},
			wantDur:  1.5,
		},
		{
			name:     "numeric ids",
			record:   Record{"id": int64(3), "depends_on": int64(1), "estimate": json.Number("4")},
			wantDeps: []string{"1"},
			wantDur:  4,
		},
		{
			name:     "empty dependencies",
			record:   Record{"id": "C", "depends_on": ""},
			wantDeps: nil,
			wantDur:  0,
		},
		{
			name:     "estimate as json object string",
			record:   Record{"id": "C", "estimate": `{"hours": 8}`},
			wantDeps: nil,
			wantDur:  8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := TaskFromRecord(tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDeps, task.DependsOn)
			assert.Equal(t, tt.wantDur, task.Duration())
		})
	}
}

func TestTaskFromRecord_FlatRisk(t *testing.T) {
	task, err := TaskFromRecord(Record{"id": "A", "risk_level": "LOW", "risk_description": "none"})
	require.NoError(t, err)
	require.NotNil(t, task.Risk)
	assert.Equal(t, RiskLow, task.Risk.Level)
	assert.Equal(t, "none", task.Risk.Description)

	task, err = TaskFromRecord(Record{"id": "A"})
	require.NoError(t, err)
	assert.Nil(t, task.Risk)
}

// TestTaskFromRecord_Errors tests decode failures carry the offending field
func TestTaskFromRecord_Errors(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		field  string
	}{
		{"missing id", Record{"title": "x"}, FieldID},
		{"blank id", Record{"id": "  "}, FieldID},
		{"bad hours", Record{"id": "A", "hours": "soon"}, "hours"},
		{"bad nested hours", Record{"id": "A", "estimate": map[string]interface{}{"hours": "x"}}, "estimate.hours"},
		{"bad dependency list", Record{"id": "A", "depends_on": `["A"`}, FieldDependsOn},
		{"nested dependency", Record{"id": "A", "depends_on": []interface{}{[]interface{}{"B"}}}, FieldDependsOn},
		{"unsupported dependency type", Record{"id": "A", "depends_on": true}, FieldDependsOn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TaskFromRecord(tt.record)
			require.Error(t, err)
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tt.field, decodeErr.Field)
		})
	}
}

// TestRecordFromTask_RoundTrip tests that encoded tasks decode to the same task
func TestRecordFromTask_RoundTrip(t *testing.T) {
	sp := 3
	task := Task{
		ID:        "B",
		Title:     "Design",
		Priority:  PriorityCouldHave,
		DependsOn: []string{"A"},
		Estimate:  Estimate{Hours: 2, ConfidenceLevel: ConfidenceLow, StoryPoints: &sp, Notes: "rough"},
		Risk:      &Risk{Level: RiskMedium, Description: "scope"},
		Section:   "ux",
		Tags:      []string{"design"},
	}

	decoded, err := TaskFromRecord(RecordFromTask(task))
	require.NoError(t, err)
	assert.Equal(t, task, decoded)
}

func TestTask_CloneIsDeep(t *testing.T) {
	sp := 1
	task := Task{ID: "A", DependsOn: []string{"B"}, Tags: []string{"x"}, Estimate: Estimate{StoryPoints: &sp}, Risk: &Risk{Level: RiskLow}}
	clone := task.Clone()

	clone.DependsOn[0] = "Z"
	clone.Tags[0] = "z"
	*clone.Estimate.StoryPoints = 9
	clone.Risk.Level = RiskHigh

	assert.Equal(t, "B", task.DependsOn[0])
	assert.Equal(t, "x", task.Tags[0])
	assert.Equal(t, 1, *task.Estimate.StoryPoints)
	assert.Equal(t, RiskLow, task.Risk.Level)
}

func TestParseErrorStrategy(t *testing.T) {
	for name, want := range map[string]ErrorStrategy{"": FailFast, "skip": SkipErrors, "Collect": CollectErrors} {
		got, err := ParseErrorStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseErrorStrategy("retry")
	assert.Error(t, err)
}
