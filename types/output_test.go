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

package types

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aaronlmathis/goplan/core"
	"github.com/aaronlmathis/goplan/readers"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows() []core.Record {
	return []core.Record{
		{"run_id": "run-1", "task_id": "A", "duration": 5.0},
		{"run_id": "run-1", "task_id": "B", "duration": 10.0},
	}
}

func writeRows(t *testing.T, sink core.DataSink) {
	t.Helper()
	ctx := context.Background()
	for _, r := range rows() {
		require.NoError(t, sink.Write(ctx, r))
	}
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())
}

func TestParseOutputFormat(t *testing.T) {
	tests := map[string]OutputFormat{
		"csv":        FormatCSV,
		"JSON":       FormatJSON,
		"ndjson":     FormatJSON,
		"parquet":    FormatParquet,
		"postgresql": FormatPostgres,
		"nats":       FormatNATS,
	}
	for name, want := range tests {
		got, err := ParseOutputFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseOutputFormat("xml")
	assert.Error(t, err)

	assert.Equal(t, FormatCSV, FormatForPath("out/schedule.CSV"))
	assert.Equal(t, FormatParquet, FormatForPath("schedule.parquet"))
	assert.Equal(t, FormatJSON, FormatForPath("schedule.jsonl"))
	assert.Equal(t, "postgres", FormatPostgres.String())
}

func TestFileLocation(t *testing.T) {
	dir := t.TempDir()
	fields := []string{"task_id", "duration", "run_id"}

	csvPath := filepath.Join(dir, "nested", "schedule.csv")
	sink, err := FileLocation{Path: csvPath, Fields: fields}.NewSink(context.Background(), FormatCSV)
	require.NoError(t, err)
	writeRows(t, sink)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "task_id,duration,run_id\nA,5,run-1\nB,10,run-1\n", string(data))

	jsonPath := filepath.Join(dir, "schedule.jsonl")
	sink, err = FileLocation{Path: jsonPath}.NewSink(context.Background(), FormatJSON)
	require.NoError(t, err)
	writeRows(t, sink)
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)

	pqPath := filepath.Join(dir, "schedule.parquet")
	sink, err = FileLocation{Path: pqPath, Fields: fields}.NewSink(context.Background(), FormatParquet)
	require.NoError(t, err)
	writeRows(t, sink)
	reader, err := readers.NewParquetReader(pqPath)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, int64(2), reader.NumRows())

	_, err = FileLocation{Path: csvPath}.NewSink(context.Background(), FormatNATS)
	assert.Error(t, err)
}

type fakeS3 struct {
	puts map[string][]byte
	ct   map[string]string
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	f.puts[key] = body
	f.ct[key] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Location(t *testing.T) {
	client := &fakeS3{puts: map[string][]byte{}, ct: map[string]string{}}

	sink, err := S3Location{Bucket: "plans", Key: "out/schedule.csv", Client: client}.NewSink(context.Background(), FormatCSV)
	require.NoError(t, err)
	writeRows(t, sink)
	assert.Equal(t, "duration,run_id,task_id\n5,run-1,A\n10,run-1,B\n", string(client.puts["plans/out/schedule.csv"]))
	assert.Equal(t, "text/csv", client.ct["plans/out/schedule.csv"])

	sink, err = S3Location{Bucket: "plans", Key: "schedule.parquet", Client: client}.NewSink(context.Background(), FormatParquet)
	require.NoError(t, err)
	writeRows(t, sink)
	body := client.puts["plans/schedule.parquet"]
	require.NotEmpty(t, body)

	reader, err := readers.NewParquetReaderFrom(io.NopCloser(bytes.NewReader(body)))
	require.NoError(t, err)
	defer reader.Close()
	first, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", first["task_id"])

	_, err = S3Location{Bucket: "plans", Client: client}.NewSink(context.Background(), FormatJSON)
	assert.Error(t, err)

	failing := &fakeS3{err: errors.New("access denied")}
	sink, err = S3Location{Bucket: "plans", Key: "x.jsonl", Client: failing}.NewSink(context.Background(), FormatJSON)
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), rows()[0]))
	assert.ErrorContains(t, sink.Close(), "access denied")
}

func TestPostgresLocation_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "goplan_schedule" ("run_id", "task_id", "duration") VALUES ($1, $2, $3), ($4, $5, $6) ON CONFLICT ("run_id", "task_id") DO UPDATE SET "duration" = EXCLUDED."duration"`)).
		WithArgs("run-1", "A", 5.0, "run-1", "B", 10.0).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	loc := PostgresLocation{DB: db, Fields: []string{"run_id", "task_id", "duration"}, Upsert: true}
	sink, err := loc.NewSink(context.Background(), FormatPostgres)
	require.NoError(t, err)
	writeRows(t, sink)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = loc.NewSink(context.Background(), FormatCSV)
	assert.Error(t, err)
}

func TestNATSLocation(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	defer srv.Shutdown()
	require.True(t, srv.ReadyForConnections(5*time.Second))

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync("plans.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	sink, err := NATSLocation{URL: srv.ClientURL(), Subject: "plans", SubjectField: "run_id"}.NewSink(context.Background(), FormatNATS)
	require.NoError(t, err)
	writeRows(t, sink)

	for _, want := range []string{"A", "B"} {
		msg, err := sub.NextMsg(time.Second)
		require.NoError(t, err)
		assert.Equal(t, "plans.run-1", msg.Subject)
		assert.Contains(t, string(msg.Data), `"task_id":"`+want+`"`)
	}

	_, err = NATSLocation{URL: srv.ClientURL()}.NewSink(context.Background(), FormatParquet)
	assert.Error(t, err)
}
