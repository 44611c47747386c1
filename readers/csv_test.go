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
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aaronlmathis/goplan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, src core.DataSource) []core.Record {
	t.Helper()
	var out []core.Record
	for {
		record, err := src.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, record)
	}
}

const tasksCSV = "\ufeffid,title,depends_on,hours\n" +
	"1,Design,,3\n" +
	"2,Build,1,8.5\n" +
	"t,Test,\"1;2\",2\n"

// TestCSVReader_TaskList tests reading a task export with headers
func TestCSVReader_TaskList(t *testing.T) {
	reader, err := NewCSVReader(io.NopCloser(strings.NewReader(tasksCSV)))
	require.NoError(t, err)

	records := readAll(t, reader)
	require.Len(t, records, 3)
	assert.Equal(t, core.Record{"id": "1", "title": "Design", "depends_on": nil, "hours": "3"}, records[0])
	assert.Equal(t, "t", records[2]["id"])
	assert.Equal(t, "1;2", records[2]["depends_on"])

	stats := reader.Stats()
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.NullValueCounts["depends_on"])

	task, err := core.TaskFromRecord(records[2])
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, task.DependsOn)
	assert.Equal(t, 2.0, task.Duration())
}

func TestCSVReader_InferTypes(t *testing.T) {
	reader, err := NewCSVReader(io.NopCloser(strings.NewReader("id;hours;done\nA;2.5;true\n")),
		WithCSVComma(';'), WithCSVInferTypes(true))
	require.NoError(t, err)

	records := readAll(t, reader)
	require.Len(t, records, 1)
	assert.Equal(t, 2.5, records[0]["hours"])
	assert.Equal(t, true, records[0]["done"])
}

func TestCSVReader_NoHeaders(t *testing.T) {
	reader, err := NewCSVReader(io.NopCloser(strings.NewReader("A,1\n")), WithCSVHasHeaders(false))
	require.NoError(t, err)
	records := readAll(t, reader)
	assert.Equal(t, core.Record{"col_0": "A", "col_1": "1"}, records[0])
}

func TestCSVReader_Errors(t *testing.T) {
	_, err := NewCSVReader(io.NopCloser(strings.NewReader("")))
	var csvErr *CSVReaderError
	require.True(t, errors.As(err, &csvErr))
	assert.Equal(t, "read_headers", csvErr.Op)

	reader, err := NewCSVReader(io.NopCloser(strings.NewReader("id,hours\nA,1,extra\n")))
	require.NoError(t, err)
	_, err = reader.Read(context.Background())
	require.True(t, errors.As(err, &csvErr))
	assert.Equal(t, "read_record", csvErr.Op)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = reader.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
