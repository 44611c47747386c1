package readers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aaronlmathis/goplan/core"
	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
)

// This file implements a Parquet task source on top of Arrow record batches.
// list<string> columns (depends_on, tags) are returned as []interface{} of strings.

// ParquetReaderError provides structured error information for parquet reader operations
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "read", "load_batch", "open_file", "schema")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReader implements core.DataSource for Parquet files.
type ParquetReader struct {
	closer          io.Closer
	recordReader    pqarrow.RecordReader
	currentBatch    arrow.Record
	currentBatchIdx int
	totalRows       int64
	schema          *arrow.Schema
	stats           ParquetReaderStats
	opts            *ParquetReaderOptions
}

// ParquetReaderStats holds statistics about the parquet reader
type ParquetReaderStats struct {
	RecordsRead     int64
	BatchesRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// ParquetReaderOptions configures the parquet reader
type ParquetReaderOptions struct {
	BatchSize int64
	Columns   []string
}

// ReaderOptionParquet represents a configuration function for ParquetReaderOptions
type ReaderOptionParquet func(*ParquetReaderOptions)

// WithParquetBatchSize sets the number of rows per Arrow batch.
func WithParquetBatchSize(size int64) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

// WithParquetColumns restricts reading to the named columns.
func WithParquetColumns(columns ...string) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) {
		opts.Columns = make([]string, len(columns))
		copy(opts.Columns, columns)
	}
}

// NewParquetReader opens a parquet file of tasks.
func NewParquetReader(filename string, options ...ReaderOptionParquet) (*ParquetReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}
	reader, err := newParquetReader(f, f, options...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return reader, nil
}

// NewParquetReaderFrom reads a parquet document from r, which is buffered in memory
// because the footer must be read first.
func NewParquetReaderFrom(r io.ReadCloser, options ...ReaderOptionParquet) (*ParquetReader, error) {
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, &ParquetReaderError{Op: "read_body", Err: err}
	}
	return newParquetReader(bytes.NewReader(data), nil, options...)
}

func newParquetReader(src parquet.ReaderAtSeeker, closer io.Closer, options ...ReaderOptionParquet) (*ParquetReader, error) {
	opts := (&ParquetReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	parquetReader, err := file.NewParquetReader(src)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_reader", Err: err}
	}

	arrowReader, err := pqarrow.NewFileReader(parquetReader, pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_arrow_reader", Err: err}
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, &ParquetReaderError{Op: "get_schema", Err: err}
	}

	var colIndices []int
	for _, name := range opts.Columns {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			return nil, &ParquetReaderError{Op: "column_projection", Err: fmt.Errorf("column %q not found in schema", name)}
		}
		colIndices = append(colIndices, indices[0])
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), colIndices, nil)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_record_reader", Err: err}
	}

	return &ParquetReader{
		closer:       closer,
		recordReader: recordReader,
		totalRows:    parquetReader.NumRows(),
		schema:       schema,
		stats:        ParquetReaderStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}, nil
}

// Read implements the core.DataSource interface.
func (p *ParquetReader) Read(ctx context.Context) (core.Record, error) {
	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &ParquetReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.recordReader == nil {
		return nil, &ParquetReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}

	if p.currentBatch == nil || p.currentBatchIdx >= int(p.currentBatch.NumRows()) {
		if err := p.loadNextBatch(); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, &ParquetReaderError{Op: "load_batch", Err: err}
		}
	}

	result := p.extractRecordFromBatch(p.currentBatch, p.currentBatchIdx)
	p.currentBatchIdx++
	p.stats.RecordsRead++
	return result, nil
}

// Close releases Arrow buffers and the underlying file.
func (p *ParquetReader) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.closer != nil {
		err := p.closer.Close()
		p.closer = nil
		return err
	}
	return nil
}

// Schema returns the Arrow schema of the file.
func (p *ParquetReader) Schema() *arrow.Schema {
	return p.schema
}

// NumRows returns the row count recorded in the file footer.
func (p *ParquetReader) NumRows() int64 {
	return p.totalRows
}

// Stats returns parquet reader statistics.
func (p *ParquetReader) Stats() ParquetReaderStats {
	return p.stats
}

func (opts *ParquetReaderOptions) withDefaults() *ParquetReaderOptions {
	result := &ParquetReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	return result
}

// loadNextBatch releases the current batch and loads the next non-empty one
func (p *ParquetReader) loadNextBatch() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}

	for {
		rec, err := p.recordReader.Read()
		if err != nil {
			return err
		}
		if rec == nil {
			return io.EOF
		}
		if rec.NumRows() == 0 {
			continue
		}
		// The record reader releases rec on its next Read.
		rec.Retain()
		p.currentBatch = rec
		p.currentBatchIdx = 0
		p.stats.BatchesRead++
		return nil
	}
}

func (p *ParquetReader) extractRecordFromBatch(record arrow.Record, pos int) core.Record {
	res := make(core.Record, record.NumCols())
	sch := record.Schema()
	for i := 0; i < int(record.NumCols()); i++ {
		field := sch.Field(i)
		res[field.Name] = p.extractValueFromColumn(record.Column(i), pos, field.Name)
	}
	return res
}

func (p *ParquetReader) extractValueFromColumn(col arrow.Array, rowIdx int, fieldName string) interface{} {
	if col.IsNull(rowIdx) {
		p.stats.NullValueCounts[fieldName]++
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(rowIdx)
	case *array.Int8:
		return int64(arr.Value(rowIdx))
	case *array.Int16:
		return int64(arr.Value(rowIdx))
	case *array.Int32:
		return int64(arr.Value(rowIdx))
	case *array.Int64:
		return arr.Value(rowIdx)
	case *array.Uint8:
		return int64(arr.Value(rowIdx))
	case *array.Uint16:
		return int64(arr.Value(rowIdx))
	case *array.Uint32:
		return int64(arr.Value(rowIdx))
	case *array.Uint64:
		return arr.Value(rowIdx)
	case *array.Float32:
		return float64(arr.Value(rowIdx))
	case *array.Float64:
		return arr.Value(rowIdx)
	case *array.String:
		return arr.Value(rowIdx)
	case *array.LargeString:
		return arr.Value(rowIdx)
	case *array.Binary:
		return arr.Value(rowIdx)
	case *array.Timestamp:
		unit := arrow.Microsecond
		if ts, ok := arr.DataType().(*arrow.TimestampType); ok {
			unit = ts.Unit
		}
		return arr.Value(rowIdx).ToTime(unit)
	case *array.Date32:
		return arr.Value(rowIdx).ToTime()
	case *array.Date64:
		return arr.Value(rowIdx).ToTime()
	case *array.List:
		offsets := arr.Offsets()
		start, end := int(offsets[rowIdx]), int(offsets[rowIdx+1])
		values := arr.ListValues()
		items := make([]interface{}, 0, end-start)
		for j := start; j < end; j++ {
			items = append(items, p.extractValueFromColumn(values, j, fieldName))
		}
		return items
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(rowIdx))
	}
}
