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
	"crypto/tls"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/goplan/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// This file implements a MongoDB task source. Each document of the collection (or each
// aggregation result) is one raw task record. Documents without an id field take their _id.

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed
	Collection string // Collection name
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s (collection: %s): %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader
type MongoReaderStats struct {
	RecordsRead     int64
	QueriesExecuted int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	ErrorCount      int64
}

// MongoReadMode defines how documents are selected
type MongoReadMode string

const (
	ModeFind      MongoReadMode = "find"      // Find with filter, projection and sort
	ModeAggregate MongoReadMode = "aggregate" // Aggregation pipeline
)

// MongoReaderOptions configures the MongoDB reader
type MongoReaderOptions struct {
	URI             string
	Database        string
	Collection      string
	Mode            MongoReadMode
	Filter          bson.M
	Projection      bson.M
	Sort            bson.D
	Pipeline        []bson.M
	BatchSize       int32
	Limit           int64
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
	ReadPreference  string // primary, primaryPreferred, secondary, secondaryPreferred, nearest
	ReadConcern     string // local, available, majority, linearizable, snapshot
	AuthDatabase    string
	Username        string
	Password        string
	TLS             bool
	TLSInsecure     bool
	AllowDiskUse    bool
	Comment         string
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

// WithMongoURI sets the connection URI.
func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.URI = uri }
}

// WithMongoDB sets the database name.
func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Database = database }
}

// WithMongoCollection sets the collection name.
func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Collection = collection }
}

// WithMongoFilter restricts the documents read, e.g. bson.M{"plan": "launch"}.
func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Filter = filter }
}

// WithMongoProjection sets the field projection.
func WithMongoProjection(projection bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Projection = projection }
}

// WithMongoSort sets the sort specification.
func WithMongoSort(sort bson.D) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Sort = sort }
}

// WithMongoPipeline switches to aggregate mode with the given stages.
func WithMongoPipeline(pipeline []bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Pipeline = pipeline
		opts.Mode = ModeAggregate
	}
}

// WithMongoLimit caps the number of documents read.
func WithMongoLimit(limit int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Limit = limit }
}

// WithMongoBatchSize sets the cursor batch size.
func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.BatchSize = batchSize }
}

// WithMongoTimeout sets the connect timeout.
func WithMongoTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Timeout = timeout }
}

// WithMongoPoolSize sets the connection pool bounds.
func WithMongoPoolSize(min, max uint64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.MinPoolSize = min
		opts.MaxPoolSize = max
	}
}

// WithMongoReadPreference sets the read preference.
func WithMongoReadPreference(preference string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.ReadPreference = preference }
}

// WithMongoReadConcern sets the read concern level.
func WithMongoReadConcern(concern string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.ReadConcern = concern }
}

// WithMongoAuth sets credentials. authDB defaults to the database.
func WithMongoAuth(username, password, authDB string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

// WithMongoTLS enables TLS.
func WithMongoTLS(enabled, insecure bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.TLS = enabled
		opts.TLSInsecure = insecure
	}
}

// WithMongoComment tags queries for profiling.
func WithMongoComment(comment string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Comment = comment }
}

// MongoReader implements core.DataSource for MongoDB collections.
type MongoReader struct {
	client     *mongo.Client
	collection *mongo.Collection
	cursor     *mongo.Cursor
	opts       *MongoReaderOptions
	stats      MongoReaderStats
	connected  bool
}

// NewMongoReader creates a MongoDB task reader. The connection is opened on the first Read.
func NewMongoReader(options ...ReaderOptionMongo) (*MongoReader, error) {
	opts := &MongoReaderOptions{
		URI:             "mongodb://localhost:27017",
		Mode:            ModeFind,
		Sort:            bson.D{{Key: core.FieldID, Value: 1}},
		BatchSize:       1000,
		Timeout:         30 * time.Second,
		MaxPoolSize:     10,
		MaxConnIdleTime: 10 * time.Minute,
		ReadPreference:  "primary",
		ReadConcern:     "local",
	}
	for _, option := range options {
		option(opts)
	}

	if opts.Database == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}
	if opts.Mode == ModeAggregate && len(opts.Pipeline) == 0 {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("pipeline is required for aggregate mode")}
	}

	return &MongoReader{
		opts:  opts,
		stats: MongoReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Connect establishes the connection to MongoDB
func (mr *MongoReader) Connect(ctx context.Context) error {
	if mr.connected {
		return nil
	}

	clientOpts, err := mr.buildClientOptions()
	if err != nil {
		return &MongoReaderError{Op: "build_options", Err: err}
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return &MongoReaderError{Op: "connect", Err: err}
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return &MongoReaderError{Op: "ping", Err: err}
	}

	mr.client = client
	mr.collection = client.Database(mr.opts.Database).Collection(mr.opts.Collection)
	mr.connected = true
	return nil
}

// buildClientOptions constructs MongoDB client options from reader configuration
func (mr *MongoReader) buildClientOptions() (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(mr.opts.URI)

	if mr.opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(mr.opts.MaxPoolSize)
	}
	if mr.opts.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(mr.opts.MinPoolSize)
	}
	if mr.opts.MaxConnIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(mr.opts.MaxConnIdleTime)
	}
	if mr.opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(mr.opts.Timeout)
		clientOpts.SetServerSelectionTimeout(mr.opts.Timeout)
	}

	if mr.opts.Username != "" && mr.opts.Password != "" {
		auth := options.Credential{
			Username:   mr.opts.Username,
			Password:   mr.opts.Password,
			AuthSource: mr.opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = mr.opts.Database
		}
		clientOpts.SetAuth(auth)
	}

	if mr.opts.TLS {
		clientOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: mr.opts.TLSInsecure})
	}

	if mr.opts.ReadPreference != "" {
		var readPref *readpref.ReadPref
		switch mr.opts.ReadPreference {
		case "primary":
			readPref = readpref.Primary()
		case "primaryPreferred":
			readPref = readpref.PrimaryPreferred()
		case "secondary":
			readPref = readpref.Secondary()
		case "secondaryPreferred":
			readPref = readpref.SecondaryPreferred()
		case "nearest":
			readPref = readpref.Nearest()
		default:
			return nil, fmt.Errorf("invalid read preference: %s", mr.opts.ReadPreference)
		}
		clientOpts.SetReadPreference(readPref)
	}

	if mr.opts.ReadConcern != "" {
		var rc *readconcern.ReadConcern
		switch mr.opts.ReadConcern {
		case "local":
			rc = readconcern.Local()
		case "available":
			rc = readconcern.Available()
		case "majority":
			rc = readconcern.Majority()
		case "linearizable":
			rc = readconcern.Linearizable()
		case "snapshot":
			rc = readconcern.Snapshot()
		default:
			return nil, fmt.Errorf("invalid read concern: %s", mr.opts.ReadConcern)
		}
		clientOpts.SetReadConcern(rc)
	}

	clientOpts.SetRetryReads(true)
	return clientOpts, nil
}

// Read implements the core.DataSource interface
func (mr *MongoReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
		mr.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &MongoReaderError{Op: "read", Collection: mr.opts.Collection, Err: ctx.Err()}
	default:
	}

	if !mr.connected {
		if err := mr.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if mr.cursor == nil {
		if err := mr.initializeCursor(ctx); err != nil {
			return nil, &MongoReaderError{Op: "init_cursor", Collection: mr.opts.Collection, Err: err}
		}
	}

	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			mr.stats.ErrorCount++
			return nil, &MongoReaderError{Op: "cursor_next", Collection: mr.opts.Collection, Err: err}
		}
		return nil, io.EOF
	}

	var doc bson.M
	if err := mr.cursor.Decode(&doc); err != nil {
		mr.stats.ErrorCount++
		return nil, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}

	record := convertBSONToRecord(doc)
	mr.stats.RecordsRead++
	for key, val := range record {
		if val == nil {
			mr.stats.NullValueCounts[key]++
		}
	}
	return record, nil
}

// Close implements the core.DataSource interface
func (mr *MongoReader) Close() error {
	var errs []string
	ctx, cancel := context.WithTimeout(context.Background(), mr.opts.Timeout)
	defer cancel()

	if mr.cursor != nil {
		if err := mr.cursor.Close(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("cursor close: %v", err))
		}
		mr.cursor = nil
	}

	if mr.client != nil {
		if err := mr.client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("client disconnect: %v", err))
		}
		mr.client = nil
	}
	mr.connected = false

	if len(errs) > 0 {
		return &MongoReaderError{Op: "close", Err: fmt.Errorf("multiple errors: %s", strings.Join(errs, "; "))}
	}
	return nil
}

// Stats returns MongoDB reader statistics
func (mr *MongoReader) Stats() MongoReaderStats {
	return mr.stats
}

// initializeCursor opens the find or aggregate cursor
func (mr *MongoReader) initializeCursor(ctx context.Context) error {
	mr.stats.QueriesExecuted++

	switch mr.opts.Mode {
	case ModeFind:
		findOpts := options.Find()
		if mr.opts.BatchSize > 0 {
			findOpts.SetBatchSize(mr.opts.BatchSize)
		}
		if mr.opts.Limit > 0 {
			findOpts.SetLimit(mr.opts.Limit)
		}
		if mr.opts.Projection != nil {
			findOpts.SetProjection(mr.opts.Projection)
		}
		if len(mr.opts.Sort) > 0 {
			findOpts.SetSort(mr.opts.Sort)
		}
		if mr.opts.Comment != "" {
			findOpts.SetComment(mr.opts.Comment)
		}
		filter := mr.opts.Filter
		if filter == nil {
			filter = bson.M{}
		}
		cursor, err := mr.collection.Find(ctx, filter, findOpts)
		if err != nil {
			return err
		}
		mr.cursor = cursor
	case ModeAggregate:
		aggOpts := options.Aggregate()
		if mr.opts.BatchSize > 0 {
			aggOpts.SetBatchSize(mr.opts.BatchSize)
		}
		if mr.opts.AllowDiskUse {
			aggOpts.SetAllowDiskUse(true)
		}
		if mr.opts.Comment != "" {
			aggOpts.SetComment(mr.opts.Comment)
		}
		cursor, err := mr.collection.Aggregate(ctx, mr.opts.Pipeline, aggOpts)
		if err != nil {
			return err
		}
		mr.cursor = cursor
	default:
		return fmt.Errorf("unsupported read mode: %s", mr.opts.Mode)
	}
	return nil
}

// convertBSONToRecord converts a BSON document to a task record
func convertBSONToRecord(doc bson.M) core.Record {
	record := make(core.Record, len(doc))
	for key, value := range doc {
		record[key] = convertBSONValue(value)
	}
	if _, ok := record[core.FieldID]; !ok {
		if id, ok := record["_id"]; ok {
			record[core.FieldID] = id
		}
	}
	return record
}

// convertBSONValue converts BSON values to plain Go types
func convertBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(v.String(), 64); err == nil {
			return f
		}
		return v.String()
	case int32:
		return int64(v)
	case primitive.Binary:
		return v.Data
	case primitive.Regex:
		return v.Pattern
	case primitive.Symbol:
		return string(v)
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Undefined, primitive.Null:
		return nil
	case bson.M:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			result[k] = convertBSONValue(val)
		}
		return result
	case bson.D:
		result := make(map[string]interface{}, len(v))
		for _, elem := range v {
			result[elem.Key] = convertBSONValue(elem.Value)
		}
		return result
	case bson.A:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = convertBSONValue(val)
		}
		return result
	default:
		return v
	}
}
