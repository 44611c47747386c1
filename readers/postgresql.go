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
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/goplan/core"
	"github.com/lib/pq" // PostgreSQL driver
)

// This file implements a PostgreSQL task source. Each result row becomes one raw task record,
// so the query should project columns named after the task fields (id, title, depends_on, hours, ...).
// text[] columns are returned as []string, which suits depends_on and tags.

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReader implements core.DataSource for PostgreSQL databases.
// Supports plain queries and server-side cursors fetched in batches.
type PostgresReader struct {
	mu                  sync.Mutex
	db                  *sql.DB
	ownsDB              bool
	tx                  *sql.Tx
	rows                *sql.Rows
	columnNames         []string
	columnTypes         []*sql.ColumnType
	scanBuffer          []interface{}
	values              []interface{}
	batchRows           int
	batchSize           int
	cursorName          string
	query               string
	params              []interface{}
	stats               PostgresReaderStats
	opts                *PostgresReaderOptions
	isFinished          bool
	lastHealthCheck     time.Time
	healthCheckInterval time.Duration
}

// PostgresReaderStats holds statistics about the Postgres reader
type PostgresReaderStats struct {
	RecordsRead     int64
	Batches         int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	ConnectionTime  time.Duration
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DSN                 string        // Database connection string
	DB                  *sql.DB       // Existing handle, used instead of DSN and left open on Close
	Query               string        // SQL query to execute
	Table               string        // Table to read when Query is empty
	Params              []interface{} // Optional query parameters
	BatchSize           int           // Rows per FETCH when UseCursor is set
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	MaxOpenConns        int
	MaxIdleConns        int
	QueryTimeout        time.Duration // Applies to connecting and running the query
	UseCursor           bool          // Use a server-side cursor for large task tables
	CursorName          string
	HealthCheckInterval time.Duration
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB reads through an existing database handle. The reader does not close it.
func WithPostgresDB(db *sql.DB) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DB = db
	}
}

// WithPostgresQuery sets the SQL query and optional parameters.
func WithPostgresQuery(query string, params ...interface{}) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = query
		if len(params) > 0 {
			opts.Params = make([]interface{}, len(params))
			copy(opts.Params, params)
		}
	}
}

// WithPostgresTable reads every row of table, ordered by id.
func WithPostgresTable(table string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Table = table
	}
}

// WithPostgresBatchSize sets the number of rows fetched per cursor batch.
func WithPostgresBatchSize(size int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.BatchSize = size
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
	}
}

// WithPostgresConnectionTimeout sets connection and idle timeouts.
func WithPostgresConnectionTimeout(lifetime, idleTime time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.ConnMaxLifetime = lifetime
		opts.ConnMaxIdleTime = idleTime
	}
}

// WithPostgresHealthCheckInterval sets how often Read pings the database.
func WithPostgresHealthCheckInterval(interval time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.HealthCheckInterval = interval
	}
}

// WithPostgresQueryTimeout sets the query execution timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresCursor enables or disables server-side cursor usage.
func WithPostgresCursor(useCursor bool, cursorName string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.UseCursor = useCursor
		opts.CursorName = cursorName
	}
}

// NewPostgresReader creates a new PostgreSQL task reader and runs its query.
func NewPostgresReader(options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := &PostgresReaderOptions{}
	for _, option := range options {
		option(opts)
	}
	return createPostgresReader(opts.withDefaults())
}

// createPostgresReader connects, pings and executes the query
func createPostgresReader(opts *PostgresReaderOptions) (*PostgresReader, error) {
	if opts.DSN == "" && opts.DB == nil {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	if opts.Query == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("query or table is required")}
	}
	cursorName := opts.CursorName
	if cursorName == "" {
		cursorName = "goplan_tasks"
	}
	if opts.UseCursor && !isValidCursorName(cursorName) {
		return nil, &PostgresReaderError{Op: "validate_cursor", Err: fmt.Errorf("invalid cursor name: %s", cursorName)}
	}

	startTime := time.Now()
	db := opts.DB
	ownsDB := false
	if db == nil {
		var err error
		db, err = sql.Open("postgres", opts.DSN)
		if err != nil {
			return nil, &PostgresReaderError{Op: "connect", Err: err}
		}
		ownsDB = true
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if ownsDB {
			db.Close()
		}
		return nil, &PostgresReaderError{Op: "ping", Err: err}
	}

	reader := &PostgresReader{
		db:                  db,
		ownsDB:              ownsDB,
		query:               opts.Query,
		params:              opts.Params,
		batchSize:           opts.BatchSize,
		cursorName:          cursorName,
		opts:                opts,
		healthCheckInterval: opts.HealthCheckInterval,
		lastHealthCheck:     time.Now(),
		stats: PostgresReaderStats{
			NullValueCounts: make(map[string]int64),
			ConnectionTime:  time.Since(startTime),
		},
	}

	if err := reader.executeQuery(ctx); err != nil {
		reader.Close()
		return nil, err
	}

	return reader, nil
}

// Stats returns statistics about the PostgreSQL reader
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Read implements the core.DataSource interface.
// Reads the next task row, fetching the next cursor batch when the current one is drained.
func (p *PostgresReader) Read(ctx context.Context) (core.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &PostgresReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.db == nil {
		return nil, &PostgresReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}

	if time.Since(p.lastHealthCheck) > p.healthCheckInterval {
		if err := p.db.PingContext(ctx); err != nil {
			return nil, &PostgresReaderError{Op: "ping", Err: err}
		}
		p.lastHealthCheck = time.Now()
	}

	if p.isFinished || p.rows == nil {
		return nil, io.EOF
	}

	for !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return nil, &PostgresReaderError{Op: "read", Err: err}
		}
		// A short batch means the cursor is exhausted.
		if p.tx == nil || p.batchRows < p.batchSize {
			p.isFinished = true
			return nil, io.EOF
		}
		if err := p.fetchBatch(ctx); err != nil {
			return nil, err
		}
	}

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return nil, &PostgresReaderError{Op: "scan", Err: err}
	}

	record := p.convertRowToRecord()
	p.batchRows++
	p.stats.RecordsRead++

	return record, nil
}

// Close releases the rows, the cursor transaction and, unless it was supplied, the database.
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error

	if p.rows != nil {
		if err := p.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing rows: %w", err))
		}
		p.rows = nil
	}

	if p.tx != nil {
		if err := p.tx.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("rolling back transaction: %w", err))
		}
		p.tx = nil
	}

	if p.db != nil && p.ownsDB {
		if err := p.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	p.db = nil

	if len(errs) > 0 {
		return &PostgresReaderError{Op: "close", Err: fmt.Errorf("multiple errors: %v", errs)}
	}
	return nil
}

// Schema returns a map of column name to database type name.
func (p *PostgresReader) Schema() map[string]string {
	schema := make(map[string]string)
	for i, name := range p.columnNames {
		if i < len(p.columnTypes) {
			schema[name] = p.columnTypes[i].DatabaseTypeName()
		}
	}
	return schema
}

// withDefaults applies default values to PostgresReaderOptions
func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.Query == "" && result.Table != "" {
		result.Query = fmt.Sprintf("SELECT * FROM %s ORDER BY id", pq.QuoteIdentifier(result.Table))
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.ConnMaxIdleTime <= 0 {
		result.ConnMaxIdleTime = 1 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 4
	}
	if result.MaxIdleConns <= 0 {
		result.MaxIdleConns = 2
	}
	if result.HealthCheckInterval <= 0 {
		result.HealthCheckInterval = 30 * time.Second
	}
	return result
}

// executeQuery runs the query, or declares the cursor and fetches its first batch
func (p *PostgresReader) executeQuery(ctx context.Context) error {
	startTime := time.Now()

	if p.opts.UseCursor {
		if err := p.declareCursor(ctx); err != nil {
			return err
		}
	} else {
		rows, err := p.db.QueryContext(ctx, p.query, p.params...)
		if err != nil {
			return &PostgresReaderError{Op: "query", Err: err}
		}
		p.rows = rows
		p.stats.Batches++
	}

	p.stats.QueryDuration = time.Since(startTime)
	return p.describeColumns()
}

// describeColumns records the column names and types of the current rows and sizes the scan buffers
func (p *PostgresReader) describeColumns() error {
	columnNames, err := p.rows.Columns()
	if err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	p.columnNames = columnNames

	columnTypes, err := p.rows.ColumnTypes()
	if err != nil {
		return &PostgresReaderError{Op: "column_types", Err: err}
	}
	p.columnTypes = columnTypes

	p.scanBuffer = make([]interface{}, len(columnNames))
	p.values = make([]interface{}, len(columnNames))
	for i := range p.scanBuffer {
		p.scanBuffer[i] = &p.values[i]
	}
	return nil
}

// declareCursor opens the cursor transaction and fetches the first batch
func (p *PostgresReader) declareCursor(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &PostgresReaderError{Op: "begin_transaction", Err: err}
	}
	p.tx = tx

	declareSQL := fmt.Sprintf("DECLARE %s CURSOR FOR %s", p.cursorName, p.query)
	if _, err := tx.ExecContext(ctx, declareSQL, p.params...); err != nil {
		return &PostgresReaderError{Op: "declare_cursor", Err: err}
	}
	return p.fetchBatch(ctx)
}

// fetchBatch replaces the current rows with the next cursor batch
func (p *PostgresReader) fetchBatch(ctx context.Context) error {
	if p.rows != nil {
		p.rows.Close()
		p.rows = nil
	}
	rows, err := p.tx.QueryContext(ctx, fmt.Sprintf("FETCH %d FROM %s", p.batchSize, p.cursorName))
	if err != nil {
		return &PostgresReaderError{Op: "fetch_cursor", Err: err}
	}
	p.rows = rows
	p.batchRows = 0
	p.stats.Batches++
	return nil
}

// isValidCursorName validates cursor name for SQL injection prevention
func isValidCursorName(name string) bool {
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return len(name) > 0 && len(name) <= 63 // PostgreSQL identifier limit
}

// convertSQLValue converts SQL driver values to the types task decoding understands
func convertSQLValue(value interface{}, dbType string) interface{} {
	if b, ok := value.([]byte); ok {
		switch {
		case dbType == "BYTEA":
			return b
		case strings.HasPrefix(dbType, "_"):
			var arr pq.StringArray
			if err := arr.Scan(b); err == nil {
				return []string(arr)
			}
			return string(b)
		case dbType == "NUMERIC" || dbType == "DECIMAL":
			if f, err := strconv.ParseFloat(string(b), 64); err == nil {
				return f
			}
			return string(b)
		default:
			return string(b)
		}
	}

	switch v := value.(type) {
	case time.Time, bool, int64, float64, string:
		return v
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

// convertRowToRecord converts the scanned SQL row values to a core.Record
func (p *PostgresReader) convertRowToRecord() core.Record {
	record := make(core.Record, len(p.columnNames))

	for i, columnName := range p.columnNames {
		value := p.values[i]
		if value == nil {
			p.stats.NullValueCounts[columnName]++
			record[columnName] = nil
			continue
		}
		dbType := ""
		if i < len(p.columnTypes) {
			dbType = p.columnTypes[i].DatabaseTypeName()
		}
		record[columnName] = convertSQLValue(value, dbType)
	}

	return record
}
