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
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aaronlmathis/goplan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskServiceReader tests reading GET /plan/ with bearer auth
func TestTaskServiceReader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plan/" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"Roadmap","tasks":[
			{"id":"A","depends_on":[],"estimate":{"hours":2}},
			{"id":"B","depends_on":["A"],"estimate":{"hours":3}}]}`)
	}))
	defer server.Close()

	reader, err := NewTaskServiceReader(server.URL+"/", WithHTTPBearerToken("secret"))
	require.NoError(t, err)
	defer reader.Close()

	records := readAll(t, reader)
	require.Len(t, records, 2)
	assert.Equal(t, "Roadmap", reader.PlanName())
	assert.Equal(t, int64(1), reader.Stats().RequestCount)

	task, err := core.TaskFromRecord(records[1])
	require.NoError(t, err)
	assert.Equal(t, 3.0, task.Duration())
}

func TestHTTPReader_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL, WithHTTPRetries(3, time.Millisecond))
	require.NoError(t, err)

	_, err = reader.Read(context.Background())
	var httpErr *HTTPReaderError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPReader_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"id":"A"}]`)
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL, WithHTTPRetries(3, time.Millisecond))
	require.NoError(t, err)

	records := readAll(t, reader)
	assert.Len(t, records, 1)
	assert.Equal(t, int64(2), reader.Stats().RetryCount)
}

// TestHTTPReader_PagePagination tests paging until a short page
func TestHTTPReader_PagePagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		switch page {
		case 1:
			fmt.Fprint(w, `{"items":[{"id":"A"},{"id":"B"}]}`)
		case 2:
			fmt.Fprint(w, `{"items":[{"id":"C"}]}`)
		default:
			t.Errorf("unexpected page %d", page)
		}
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL,
		WithHTTPDataPath("items"),
		WithHTTPPagination(&PaginationConfig{Type: "page", PageParam: "page", LimitParam: "limit", PageSize: 2}),
	)
	require.NoError(t, err)

	records := readAll(t, reader)
	require.Len(t, records, 3)
	assert.Equal(t, "C", records[2]["id"])
}

func TestHTTPReader_CSVAndJSONL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks.csv":
			fmt.Fprint(w, "id,depends_on\nA,\nB,A\n")
		case "/tasks.jsonl":
			fmt.Fprint(w, "{\"id\":\"A\"}\n\n{\"id\":\"B\"}\n")
		}
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL+"/tasks.csv", WithHTTPResponseFormat("csv"))
	require.NoError(t, err)
	records := readAll(t, reader)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[1]["depends_on"])

	reader, err = NewHTTPReader(server.URL+"/tasks.jsonl", WithHTTPResponseFormat("jsonl"))
	require.NoError(t, err)
	assert.Len(t, readAll(t, reader), 2)
}

func TestHTTPReader_BadDataPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	reader, err := NewHTTPReader(server.URL, WithHTTPDataPath("tasks"))
	require.NoError(t, err)
	_, err = reader.Read(context.Background())
	var httpErr *HTTPReaderError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "parse", httpErr.Op)

	_, err = NewHTTPReader("not a url")
	assert.Error(t, err)
}
