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
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aaronlmathis/goplan/core"
	"github.com/aaronlmathis/goplan/readers"
	"github.com/aaronlmathis/goplan/writers"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nats-io/nats.go"
)

// OutputFormat represents a supported sink format.
type OutputFormat int

const (
	FormatCSV OutputFormat = iota
	FormatJSON
	FormatParquet
	FormatPostgres
	FormatNATS
)

func (f OutputFormat) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	case FormatPostgres:
		return "postgres"
	case FormatNATS:
		return "nats"
	default:
		return fmt.Sprintf("OutputFormat(%d)", int(f))
	}
}

// ParseOutputFormat maps a format name to an OutputFormat.
func ParseOutputFormat(name string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return FormatCSV, nil
	case "json", "jsonl", "ndjson":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	case "postgres", "postgresql":
		return FormatPostgres, nil
	case "nats":
		return FormatNATS, nil
	default:
		return 0, fmt.Errorf("unknown output format %q", name)
	}
}

// FormatForPath infers a file format from the extension, defaulting to JSON.
func FormatForPath(path string) OutputFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	default:
		return FormatJSON
	}
}

// OutputLocation creates a DataSink for a given format.
type OutputLocation interface {
	NewSink(ctx context.Context, format OutputFormat) (core.DataSink, error)
}

// FileLocation writes output to a local filesystem path.
type FileLocation struct {
	Path string
	// Fields fixes the column order for CSV and Parquet output.
	Fields []string
}

// NewSink instantiates a writer for the file location.
func (f FileLocation) NewSink(ctx context.Context, format OutputFormat) (core.DataSink, error) {
	switch format {
	case FormatCSV, FormatJSON:
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return nil, err
		}
		file, err := os.Create(f.Path)
		if err != nil {
			return nil, err
		}
		return newStreamSink(file, format, f.Fields)
	case FormatParquet:
		return writers.NewParquetWriter(f.Path, writers.WithFieldOrder(f.Fields))
	default:
		return nil, fmt.Errorf("unsupported format %s for FileLocation", format)
	}
}

// S3PutAPI is the subset of the S3 client used for uploads.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Location writes one object to an S3 bucket when the sink is closed.
type S3Location struct {
	Bucket    string
	Key       string
	Region    string
	Profile   string
	Endpoint  string
	PathStyle bool
	Fields    []string
	Client    S3PutAPI
}

type s3WriteCloser struct {
	ctx         context.Context
	buf         *bytes.Buffer
	client      S3PutAPI
	bucket      string
	key         string
	contentType string
}

func (s *s3WriteCloser) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *s3WriteCloser) Close() error {
	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(s.buf.Bytes()),
		ContentType: aws.String(s.contentType),
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// NewSink creates a writer buffering the object in memory and uploading it on Close.
func (s S3Location) NewSink(ctx context.Context, format OutputFormat) (core.DataSink, error) {
	if s.Bucket == "" || s.Key == "" {
		return nil, fmt.Errorf("s3 output requires bucket and key")
	}
	if s.Client == nil {
		cfg, err := readers.LoadAWSConfig(ctx, s.Region, s.Profile, aws.Credentials{})
		if err != nil {
			return nil, err
		}
		s.Client = readers.NewS3Client(cfg, s.Endpoint, s.PathStyle)
	}

	upload := &s3WriteCloser{ctx: ctx, buf: &bytes.Buffer{}, client: s.Client, bucket: s.Bucket, key: s.Key}
	switch format {
	case FormatCSV:
		upload.contentType = "text/csv"
		return newStreamSink(upload, format, s.Fields)
	case FormatJSON:
		upload.contentType = "application/x-ndjson"
		return newStreamSink(upload, format, s.Fields)
	case FormatParquet:
		upload.contentType = "application/vnd.apache.parquet"
		return writers.NewParquetStreamWriter(upload, writers.WithFieldOrder(s.Fields)), nil
	default:
		return nil, fmt.Errorf("unsupported format %s for S3Location", format)
	}
}

// PostgresLocation directs output to a PostgreSQL table.
type PostgresLocation struct {
	DSN         string
	DB          *sql.DB
	Table       string
	Fields      []string
	CreateTable bool
	// Upsert replaces rows that share run_id and task_id.
	Upsert bool
}

// NewSink instantiates a PostgreSQL writer.
func (p PostgresLocation) NewSink(ctx context.Context, format OutputFormat) (core.DataSink, error) {
	if format != FormatPostgres {
		return nil, fmt.Errorf("unsupported format %s for PostgresLocation", format)
	}
	table := p.Table
	if table == "" {
		table = "goplan_schedule"
	}

	opts := []writers.PostgresWriterOption{
		writers.WithTableName(table),
		writers.WithColumns(p.Fields),
		writers.WithCreateTable(p.CreateTable),
	}
	if p.DB != nil {
		opts = append(opts, writers.WithPostgresDB(p.DB))
	} else {
		opts = append(opts, writers.WithPostgresDSN(p.DSN))
	}
	if p.Upsert {
		key := []string{"run_id", "task_id"}
		var update []string
		for _, field := range p.Fields {
			if field != "run_id" && field != "task_id" {
				update = append(update, field)
			}
		}
		opts = append(opts, writers.WithConflictResolution(writers.ConflictUpdate, key, update))
	}
	return writers.NewPostgresWriter(opts...)
}

// NATSLocation publishes rows to a NATS subject.
type NATSLocation struct {
	URL     string
	Conn    *nats.Conn
	Subject string
	// SubjectField appends a row field to Subject, e.g. run_id.
	SubjectField string
}

// NewSink instantiates a NATS writer.
func (n NATSLocation) NewSink(ctx context.Context, format OutputFormat) (core.DataSink, error) {
	if format != FormatNATS && format != FormatJSON {
		return nil, fmt.Errorf("unsupported format %s for NATSLocation", format)
	}
	opts := []writers.NATSWriterOption{writers.WithNATSSubjectField(n.SubjectField)}
	if n.Subject != "" {
		opts = append(opts, writers.WithNATSSubject(n.Subject))
	}
	if n.Conn != nil {
		opts = append(opts, writers.WithNATSConn(n.Conn))
	} else {
		opts = append(opts, writers.WithNATSURL(n.URL))
	}
	return writers.NewNATSWriter(opts...)
}

func newStreamSink(w io.WriteCloser, format OutputFormat, fields []string) (core.DataSink, error) {
	if format == FormatCSV {
		var opts []writers.WriterOptionCSV
		if len(fields) > 0 {
			opts = append(opts, writers.WithHeaders(fields))
		}
		return writers.NewCSVWriter(w, opts...)
	}
	return writers.NewJSONWriter(w), nil
}
