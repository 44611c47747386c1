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
	"database/sql"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aaronlmathis/goplan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// taskRows builds rows with postgres column types for id, title, depends_on and hours.
func taskRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("VARCHAR", ""),
		mock.NewColumn("title").OfType("TEXT", ""),
		mock.NewColumn("depends_on").OfType("_TEXT", []byte{}),
		mock.NewColumn("hours").OfType("NUMERIC", []byte{}),
	)
}

func TestPostgresReader_Query(t *testing.T) {
	db, mock := newMockDB(t)
	query := "SELECT id, title, depends_on, hours FROM tasks WHERE plan = $1"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("launch").
		WillReturnRows(taskRows(mock).
			AddRow([]byte("A"), []byte("Design"), []byte("{}"), []byte("5")).
			AddRow([]byte("B"), nil, []byte(`{A,"x y"}`), []byte("2.5")))

	reader, err := NewPostgresReader(WithPostgresDB(db), WithPostgresQuery(query, "launch"))
	require.NoError(t, err)

	records := readAll(t, reader)
	require.Len(t, records, 2)
	assert.Equal(t, core.Record{"id": "A", "title": "Design", "depends_on": []string{}, "hours": 5.0}, records[0])
	assert.Equal(t, []string{"A", "x y"}, records[1]["depends_on"])
	assert.Nil(t, records[1]["title"])

	stats := reader.Stats()
	assert.Equal(t, int64(2), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.NullValueCounts["title"])
	assert.Equal(t, "_TEXT", reader.Schema()["depends_on"])

	task, err := core.TaskFromRecord(records[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "x y"}, task.DependsOn)
	assert.Equal(t, 2.5, task.Duration())

	require.NoError(t, reader.Close())
	_, err = reader.Read(context.Background())
	assert.Error(t, err)
}

func TestPostgresReader_Table(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "plan tasks" ORDER BY id`)).
		WillReturnRows(taskRows(mock))

	reader, err := NewPostgresReader(WithPostgresDB(db), WithPostgresTable("plan tasks"))
	require.NoError(t, err)
	_, err = reader.Read(context.Background())
	assert.Equal(t, io.EOF, err)
	require.NoError(t, reader.Close())
}

// TestPostgresReader_Cursor tests that batches are fetched until a short batch arrives
func TestPostgresReader_Cursor(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DECLARE plan_cursor CURSOR FOR SELECT * FROM tasks")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FETCH 2 FROM plan_cursor")).
		WillReturnRows(taskRows(mock).
			AddRow([]byte("A"), []byte("a"), []byte("{}"), []byte("1")).
			AddRow([]byte("B"), []byte("b"), []byte("{A}"), []byte("1")))
	mock.ExpectQuery(regexp.QuoteMeta("FETCH 2 FROM plan_cursor")).
		WillReturnRows(taskRows(mock).
			AddRow([]byte("C"), []byte("c"), []byte("{B}"), []byte("1")))
	mock.ExpectRollback()

	reader, err := NewPostgresReader(
		WithPostgresDB(db),
		WithPostgresQuery("SELECT * FROM tasks"),
		WithPostgresCursor(true, "plan_cursor"),
		WithPostgresBatchSize(2),
	)
	require.NoError(t, err)

	records := readAll(t, reader)
	require.Len(t, records, 3)
	assert.Equal(t, "C", records[2]["id"])
	assert.Equal(t, int64(2), reader.Stats().Batches)
	require.NoError(t, reader.Close())
}

func TestPostgresReader_Errors(t *testing.T) {
	_, err := NewPostgresReader(WithPostgresQuery("SELECT 1"))
	var readerErr *PostgresReaderError
	require.True(t, errors.As(err, &readerErr))
	assert.Equal(t, "validate", readerErr.Op)

	db, _ := newMockDB(t)
	_, err = NewPostgresReader(WithPostgresDB(db))
	assert.ErrorContains(t, err, "query or table is required")

	_, err = NewPostgresReader(WithPostgresDB(db), WithPostgresQuery("SELECT 1"), WithPostgresCursor(true, "bad name;"))
	require.True(t, errors.As(err, &readerErr))
	assert.Equal(t, "validate_cursor", readerErr.Op)

	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))
	_, err = NewPostgresReader(WithPostgresDB(db), WithPostgresQuery("SELECT * FROM missing"))
	require.True(t, errors.As(err, &readerErr))
	assert.Equal(t, "query", readerErr.Op)
}

func TestConvertSQLValue(t *testing.T) {
	assert.Equal(t, "text", convertSQLValue([]byte("text"), "TEXT"))
	assert.Equal(t, []byte{1, 2}, convertSQLValue([]byte{1, 2}, "BYTEA"))
	assert.Equal(t, []string{"a", "b"}, convertSQLValue([]byte("{a,b}"), "_VARCHAR"))
	assert.Equal(t, 3.25, convertSQLValue([]byte("3.25"), "NUMERIC"))
	assert.Equal(t, int64(7), convertSQLValue(int32(7), "INT4"))
	assert.Equal(t, 1.5, convertSQLValue(float32(1.5), "FLOAT4"))
	assert.Equal(t, true, convertSQLValue(true, "BOOL"))
}

func TestIsValidCursorName(t *testing.T) {
	assert.True(t, isValidCursorName("goplan_tasks"))
	assert.False(t, isValidCursorName(""))
	assert.False(t, isValidCursorName("a;DROP"))
}
