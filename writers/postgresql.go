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
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/goplan/core"
	"github.com/lib/pq"
)

// This file implements a PostgreSQL sink that writes each batch with one multi-row INSERT.
// List values are stored as text[] so depends_on survives a round trip.

// maxBindParams is the PostgreSQL limit on parameters per statement.
const maxBindParams = 65535

// PostgresWriterError wraps failures with the operation that caused them.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect")
	Err error  // The underlying error
}

func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats tracks writer metrics.
type PostgresWriterStats struct {
	RecordsWritten   int64
	BatchesWritten   int64
	TransactionCount int64
	LastWriteTime    time.Time
	WriteDuration    time.Duration
	ConnectionTime   time.Duration
	NullValueCounts  map[string]int64
	ConflictCount    int64 // Rows skipped by ON CONFLICT DO NOTHING
}

// ConflictResolution specifies how to handle unique key conflicts.
type ConflictResolution int

const (
	ConflictError  ConflictResolution = iota // Fail on conflict
	ConflictIgnore                           // ON CONFLICT DO NOTHING
	ConflictUpdate                           // ON CONFLICT DO UPDATE
)

// PostgresWriterOptions configures the writer.
type PostgresWriterOptions struct {
	DSN                string
	DB                 *sql.DB // Existing handle, used instead of DSN and left open on Close
	TableName          string
	Columns            []string // Column order; defaults to the sorted keys of the first record
	BatchSize          int
	CreateTable        bool
	TruncateTable      bool
	ConflictResolution ConflictResolution
	ConflictColumns    []string
	UpdateColumns      []string
	TransactionMode    bool
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	MaxOpenConns       int
	MaxIdleConns       int
	QueryTimeout       time.Duration
}

// PostgresWriterOption is a functional option.
type PostgresWriterOption func(*PostgresWriterOptions)

func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB writes through an existing database handle. The writer does not close it.
func WithPostgresDB(db *sql.DB) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DB = db
	}
}

func WithTableName(tableName string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TableName = tableName
	}
}

func WithColumns(columns []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

func WithCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.CreateTable = create
	}
}

func WithTruncateTable(truncate bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TruncateTable = truncate
	}
}

// WithConflictResolution sets the ON CONFLICT behaviour. A created table gets conflictCols as its primary key.
func WithConflictResolution(resolution ConflictResolution, conflictCols, updateCols []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.ConflictResolution = resolution
		opts.ConflictColumns = append([]string(nil), conflictCols...)
		opts.UpdateColumns = append([]string(nil), updateCols...)
	}
}

func WithTransactionMode(enabled bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TransactionMode = enabled
	}
}

func WithPostgresConnectionPool(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
		opts.ConnMaxIdleTime = maxIdleTime
	}
}

func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresWriter implements core.DataSink for PostgreSQL tables.
type PostgresWriter struct {
	db          *sql.DB
	ownsDB      bool
	options     PostgresWriterOptions
	columns     []string
	recordBuf   []core.Record
	stats       PostgresWriterStats
	initialized bool
	errorState  bool
	mu          sync.Mutex
}

// NewPostgresWriter validates options and connects.
func NewPostgresWriter(opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := &PostgresWriterOptions{TransactionMode: true}
	for _, opt := range opts {
		opt(options)
	}
	options = options.withDefaults()

	if err := validateOptions(options); err != nil {
		return nil, &PostgresWriterError{Op: "validate", Err: err}
	}

	writer := &PostgresWriter{
		options:   *options,
		columns:   append([]string(nil), options.Columns...),
		recordBuf: make([]core.Record, 0, options.BatchSize),
		stats:     PostgresWriterStats{NullValueCounts: make(map[string]int64)},
	}
	if err := writer.connect(); err != nil {
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}
	return writer, nil
}

// Stats returns a snapshot of writer statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	statsCopy := w.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(w.stats.NullValueCounts))
	for k, v := range w.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Write buffers a record and writes a batch when the buffer is full.
func (w *PostgresWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &PostgresWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	if !w.initialized {
		if err := w.initializeUnsafe(ctx, record); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "initialize", Err: err}
		}
	}

	for k, v := range record {
		if v == nil {
			w.stats.NullValueCounts[k]++
		}
	}
	w.recordBuf = append(w.recordBuf, record)

	if len(w.recordBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "flush_batch", Err: err}
		}
	}
	return nil
}

// Flush writes any buffered records.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := w.flushBufferUnsafe(ctx); err != nil {
		w.errorState = true
		return &PostgresWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close flushes and closes the database unless it was supplied.
func (w *PostgresWriter) Close() error {
	var flushErr error
	if !w.errorState {
		flushErr = w.Flush()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db != nil && w.ownsDB {
		if err := w.db.Close(); err != nil && flushErr == nil {
			flushErr = &PostgresWriterError{Op: "close", Err: err}
		}
	}
	w.db = nil
	return flushErr
}

func (opts *PostgresWriterOptions) withDefaults() *PostgresWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 1 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 4
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 2
	}
	return opts
}

func validateOptions(opts *PostgresWriterOptions) error {
	if opts.DSN == "" && opts.DB == nil {
		return fmt.Errorf("dsn is required")
	}
	if opts.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if opts.ConflictResolution == ConflictUpdate && len(opts.UpdateColumns) == 0 {
		return fmt.Errorf("update columns required for conflict update resolution")
	}
	if opts.ConflictResolution != ConflictError && len(opts.ConflictColumns) == 0 {
		return fmt.Errorf("conflict columns required for conflict resolution")
	}
	return nil
}

func (w *PostgresWriter) connect() error {
	start := time.Now()

	db := w.options.DB
	if db == nil {
		var err error
		db, err = sql.Open("postgres", w.options.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		w.ownsDB = true
		db.SetMaxOpenConns(w.options.MaxOpenConns)
		db.SetMaxIdleConns(w.options.MaxIdleConns)
		db.SetConnMaxLifetime(w.options.ConnMaxLifetime)
		db.SetConnMaxIdleTime(w.options.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if w.ownsDB {
			db.Close()
		}
		return fmt.Errorf("failed to ping database: %w", err)
	}

	w.db = db
	w.stats.ConnectionTime = time.Since(start)
	return nil
}

// initializeUnsafe fixes the columns and prepares the table (must hold mutex).
func (w *PostgresWriter) initializeUnsafe(ctx context.Context, firstRecord core.Record) error {
	if len(w.columns) == 0 {
		for key := range firstRecord {
			w.columns = append(w.columns, key)
		}
		sort.Strings(w.columns)
	}
	if max := maxBindParams / len(w.columns); w.options.BatchSize > max {
		w.options.BatchSize = max
	}

	if w.options.CreateTable {
		if _, err := w.db.ExecContext(ctx, w.createTableSQL(firstRecord)); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if w.options.TruncateTable {
		if _, err := w.db.ExecContext(ctx, "TRUNCATE TABLE "+pq.QuoteIdentifier(w.options.TableName)); err != nil {
			return fmt.Errorf("failed to truncate table: %w", err)
		}
	}

	w.initialized = true
	return nil
}

func (w *PostgresWriter) createTableSQL(record core.Record) string {
	columns := make([]string, 0, len(w.columns)+1)
	for _, col := range w.columns {
		columns = append(columns, pq.QuoteIdentifier(col)+" "+inferSQLType(record[col]))
	}
	if len(w.options.ConflictColumns) > 0 {
		columns = append(columns, "PRIMARY KEY ("+quoteIdentifiers(w.options.ConflictColumns)+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pq.QuoteIdentifier(w.options.TableName), strings.Join(columns, ", "))
}

// insertSQL builds the INSERT for rows records.
func (w *PostgresWriter) insertSQL(rows int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", pq.QuoteIdentifier(w.options.TableName), quoteIdentifiers(w.columns))

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range w.columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
		}
		sb.WriteByte(')')
	}

	switch w.options.ConflictResolution {
	case ConflictIgnore:
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO NOTHING", quoteIdentifiers(w.options.ConflictColumns))
	case ConflictUpdate:
		updates := make([]string, len(w.options.UpdateColumns))
		for i, col := range w.options.UpdateColumns {
			q := pq.QuoteIdentifier(col)
			updates[i] = q + " = EXCLUDED." + q
		}
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s", quoteIdentifiers(w.options.ConflictColumns), strings.Join(updates, ", "))
	}
	return sb.String()
}

// flushBufferUnsafe writes the buffer as one statement (must hold mutex).
func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) (err error) {
	if len(w.recordBuf) == 0 {
		return nil
	}
	start := time.Now()

	args := make([]interface{}, 0, len(w.recordBuf)*len(w.columns))
	for _, record := range w.recordBuf {
		for _, col := range w.columns {
			args = append(args, convertValue(record[col]))
		}
	}
	query := w.insertSQL(len(w.recordBuf))

	var result sql.Result
	if w.options.TransactionMode {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		result, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute insert: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		w.stats.TransactionCount++
	} else {
		result, err = w.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to execute insert: %w", err)
		}
	}

	written := int64(len(w.recordBuf))
	if affected, err := result.RowsAffected(); err == nil && affected < written && w.options.ConflictResolution == ConflictIgnore {
		w.stats.ConflictCount += written - affected
	}

	w.stats.RecordsWritten += written
	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]
	return nil
}

func quoteIdentifiers(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = pq.QuoteIdentifier(name)
	}
	return strings.Join(quoted, ", ")
}

func inferSQLType(value interface{}) string {
	switch value.(type) {
	case bool:
		return "BOOLEAN"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "BIGINT"
	case float32, float64:
		return "DOUBLE PRECISION"
	case time.Time:
		return "TIMESTAMPTZ"
	case []byte:
		return "BYTEA"
	case []string, []interface{}:
		return "TEXT[]"
	default:
		return "TEXT"
	}
}

// convertValue maps record values to driver arguments.
func convertValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time, bool, int64, float64, string, []byte:
		return v
	case []string:
		return pq.StringArray(v)
	case []interface{}:
		arr := make(pq.StringArray, len(v))
		for i, item := range v {
			arr[i] = formatCSVValue(item, ";")
		}
		return arr
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		case reflect.Float32:
			return rv.Float()
		default:
			return fmt.Sprintf("%v", v)
		}
	}
}
