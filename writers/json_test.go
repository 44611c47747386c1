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

package writers

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/aaronlmathis/goplan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWriter_WritesLines(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	for _, r := range scheduleRows() {
		require.NoError(t, writer.Write(context.Background(), r))
	}
	assert.Empty(t, mock.String(), "output is buffered until Flush")
	require.NoError(t, writer.Close())
	assert.True(t, mock.IsClosed())

	scanner := bufio.NewScanner(strings.NewReader(mock.String()))
	var got []map[string]interface{}
	for scanner.Scan() {
		var row map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		got = append(got, row)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[1]["task_id"])
	assert.Equal(t, 2.5, got[1]["duration"])
	assert.Equal(t, true, got[1]["critical"])
	assert.Equal(t, int64(2), writer.RecordsWritten())
}

func TestJSONWriter_NoHTMLEscaping(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)
	require.NoError(t, writer.Write(context.Background(), core.Record{"title": "a < b & c"}))
	require.NoError(t, writer.Flush())
	assert.Equal(t, `{"title":"a < b & c"}`+"\n", mock.String())
}

func TestJSONWriter_UnsupportedValue(t *testing.T) {
	writer := NewJSONWriter(newMockWriteCloser())
	err := writer.Write(context.Background(), core.Record{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestJSONWriter_ConcurrentWrites(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, writer.Write(context.Background(), core.Record{"n": i}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, writer.Flush())
	assert.Len(t, strings.Split(strings.TrimSpace(mock.String()), "\n"), 20)
}
