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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/goplan/core"
)

// This file implements a Parquet sink. The schema is inferred from the first record
// unless one is supplied; []string values become list<string> columns.

// ParquetWriterError provides structured error information for parquet writer operations
type ParquetWriterError struct {
	Op  string
	Err error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter implements core.DataSink for Parquet output.
type ParquetWriter struct {
	mu           sync.Mutex
	sink         io.Writer
	closer       io.Closer
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	fieldOrder   []string
	recordBuffer []core.Record
	stats        WriterStats
	errorState   bool
	closed       bool
	allocator    memory.Allocator
	opts         *ParquetWriterOptions
}

// ParquetWriterOptions configures the parquet writer
type ParquetWriterOptions struct {
	BatchSize    int64                // Records buffered per Arrow batch
	Schema       *arrow.Schema        // Optional fixed schema
	Compression  compress.Compression // Column compression
	FieldOrder   []string             // Column order when the schema is inferred
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // Key/value metadata stored in the footer
}

// WriterStats holds writer statistics
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption is a functional option for ParquetWriterOptions
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records per Arrow batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the column compression codec.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder fixes the column order of an inferred schema.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

// WithSchema fixes the schema instead of inferring it.
func WithSchema(schema *arrow.Schema) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Schema = schema
	}
}

// WithRowGroupSize sets the maximum rows per row group.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata adds key/value metadata to the file footer.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// NewParquetWriter creates filename, and its directory if needed, and writes parquet to it.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ParquetWriterError{Op: "create_directory", Err: err}
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: err}
	}
	return NewParquetStreamWriter(f, options...), nil
}

// NewParquetStreamWriter writes parquet to w, which is closed by Close.
func NewParquetStreamWriter(w io.WriteCloser, options ...WriterOption) *ParquetWriter {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}
	return &ParquetWriter{
		// pqarrow may close an io.Closer sink itself; Close owns that here.
		sink:         struct{ io.Writer }{w},
		closer:       w,
		schema:       opts.Schema,
		fieldOrder:   opts.FieldOrder,
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		allocator:    memory.NewGoAllocator(),
		opts:         opts,
	}
}

// Stats returns writer statistics.
func (p *ParquetWriter) Stats() WriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := p.stats
	stats.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// Schema returns the schema in use, nil before the first record.
func (p *ParquetWriter) Schema() *arrow.Schema {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schema
}

// Write implements the core.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	if p.schema == nil {
		schema, err := inferSchema(record, p.fieldOrder)
		if err != nil {
			p.errorState = true
			return &ParquetWriterError{Op: "schema", Err: err}
		}
		p.schema = schema
	}
	if p.writer == nil {
		if err := p.openWriter(); err != nil {
			p.errorState = true
			return err
		}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}
	return nil
}

// Flush writes buffered records as one batch.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errorState {
		return &ParquetWriterError{Op: "flush", Err: fmt.Errorf("writer is in error state")}
	}
	return p.flushBatch()
}

// Close flushes, writes the footer and closes the output. A writer that received no
// records still produces a valid file when a schema or field order is known.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	if !p.errorState {
		if err := p.flushBatch(); err != nil {
			firstErr = err
		}
		if p.writer == nil && p.schema == nil && len(p.fieldOrder) > 0 {
			fields := make([]arrow.Field, len(p.fieldOrder))
			for i, name := range p.fieldOrder {
				fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
			}
			p.schema = arrow.NewSchema(fields, nil)
		}
		if p.writer == nil && p.schema != nil && firstErr == nil {
			firstErr = p.openWriter()
		}
	}

	if p.writer != nil {
		if err := p.writer.Close(); err != nil && firstErr == nil {
			firstErr = &ParquetWriterError{Op: "close_writer", Err: err}
		}
		p.writer = nil
	}
	if p.closer != nil {
		if err := p.closer.Close(); err != nil && firstErr == nil {
			firstErr = &ParquetWriterError{Op: "close_file", Err: err}
		}
		p.closer = nil
	}
	return firstErr
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	return result
}

// openWriter creates the pqarrow writer for the current schema
func (p *ParquetWriter) openWriter() error {
	schema := p.schema
	if len(p.opts.Metadata) > 0 {
		keys := make([]string, 0, len(p.opts.Metadata))
		for k := range p.opts.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = p.opts.Metadata[k]
		}
		md := arrow.NewMetadata(keys, values)
		schema = arrow.NewSchema(schema.Fields(), &md)
		p.schema = schema
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(schema, p.sink, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: err}
	}
	p.writer = writer
	return nil
}

// inferSchema derives nullable columns from the first record's values
func inferSchema(record core.Record, order []string) (*arrow.Schema, error) {
	names := order
	if len(names) == 0 {
		for name := range record {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		dataType, err := inferArrowType(record[name])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[i] = arrow.Field{Name: name, Type: dataType, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func inferArrowType(value interface{}) (arrow.DataType, error) {
	switch value.(type) {
	case nil, string:
		return arrow.BinaryTypes.String, nil
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return arrow.PrimitiveTypes.Int64, nil
	case float32, float64:
		return arrow.PrimitiveTypes.Float64, nil
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case []byte:
		return arrow.BinaryTypes.Binary, nil
	case []string, []interface{}:
		return arrow.ListOf(arrow.BinaryTypes.String), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}

// flushBatch converts buffered records into one Arrow record and writes it
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 || p.writer == nil {
		return nil
	}
	start := time.Now()

	builder := array.NewRecordBuilder(p.allocator, p.schema)
	defer builder.Release()

	for _, record := range p.recordBuffer {
		for i, field := range p.schema.Fields() {
			value := record[field.Name]
			if value == nil {
				builder.Field(i).AppendNull()
				p.stats.NullValueCounts[field.Name]++
				continue
			}
			if err := appendValue(builder.Field(i), value); err != nil {
				return &ParquetWriterError{Op: "append_value", Err: fmt.Errorf("field %s: %w", field.Name, err)}
			}
		}
	}

	rec := builder.NewRecord()
	defer rec.Release()
	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.stats.RecordsWritten += int64(len(p.recordBuffer))
	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

func appendValue(b array.Builder, value interface{}) error {
	switch builder := b.(type) {
	case *array.StringBuilder:
		builder.Append(formatCSVValue(value, ";"))
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		builder.Append(v)
	case *array.Int64Builder:
		v, ok := toInt64(value)
		if !ok {
			return fmt.Errorf("expected integer, got %T", value)
		}
		builder.Append(v)
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			builder.Append(v)
		case float32:
			builder.Append(float64(v))
		default:
			i, ok := toInt64(value)
			if !ok {
				return fmt.Errorf("expected number, got %T", value)
			}
			builder.Append(float64(i))
		}
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time, got %T", value)
		}
		builder.Append(arrow.Timestamp(v.UnixMicro()))
	case *array.BinaryBuilder:
		v, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("expected bytes, got %T", value)
		}
		builder.Append(v)
	case *array.ListBuilder:
		values, ok := builder.ValueBuilder().(*array.StringBuilder)
		if !ok {
			return fmt.Errorf("unsupported list value builder %T", builder.ValueBuilder())
		}
		builder.Append(true)
		switch v := value.(type) {
		case []string:
			values.AppendValues(v, nil)
		case []interface{}:
			for _, item := range v {
				values.Append(formatCSVValue(item, ";"))
			}
		default:
			return fmt.Errorf("expected list, got %T", value)
		}
	default:
		return fmt.Errorf("unsupported column builder %T", b)
	}
	return nil
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	default:
		return 0, false
	}
}
