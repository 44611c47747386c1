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
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/goplan/core"
)

// This file implements a task source over S3 objects. Every object under a prefix is
// opened with the reader for its extension, so a plan may be split across several
// CSV, JSON lines, plan or parquet files.

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "list_objects", "get_object", "read")
	Key string // Object key, when known
	Err error  // Underlying error
}

func (e *S3ReaderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3 reader %s (%s): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3API is the subset of the S3 client used by S3Reader.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ReaderStats holds statistics about the S3 reader
type S3ReaderStats struct {
	ObjectsListed  int64
	ObjectsRead    int64
	RecordsRead    int64
	ReadDuration   time.Duration
	LastReadTime   time.Time
	ObjectErrors   int64
	CurrentObject  string
	ProcessedFiles []string
}

// SortOrder defines the order objects are read in
type SortOrder string

const (
	SortByName         SortOrder = "name"
	SortByLastModified SortOrder = "last_modified"
	SortBySize         SortOrder = "size"
	SortNone           SortOrder = "none" // S3 listing order
)

// S3ReaderOptions configures the S3 reader
type S3ReaderOptions struct {
	Bucket          string
	Prefix          string
	Suffix          string // Only keys ending in Suffix are read
	Format          Format // Overrides extension detection
	MaxKeys         int32
	Region          string
	Profile         string
	Credentials     aws.Credentials
	EndpointURL     string // S3-compatible endpoint
	ForcePathStyle  bool
	Recursive       bool
	SortOrder       SortOrder
	IncludeMetadata bool // Adds _s3_key and _s3_etag to each record
	Client          S3API
}

// ReaderOptionS3 is a functional option for S3ReaderOptions
type ReaderOptionS3 func(*S3ReaderOptions)

// WithS3Bucket sets the bucket.
func WithS3Bucket(bucket string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Bucket = bucket }
}

// WithS3Prefix restricts the listing to keys under prefix.
func WithS3Prefix(prefix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Prefix = prefix }
}

// WithS3Suffix restricts the listing to keys ending in suffix.
func WithS3Suffix(suffix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Suffix = suffix }
}

// WithS3Format reads every object as format regardless of its extension.
func WithS3Format(format Format) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Format = format }
}

// WithS3Region sets the AWS region.
func WithS3Region(region string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Region = region }
}

// WithS3Profile sets the shared config profile.
func WithS3Profile(profile string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Profile = profile }
}

// WithS3Credentials sets static credentials.
func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Credentials = creds }
}

// WithS3Endpoint sets a custom endpoint for S3-compatible services.
func WithS3Endpoint(endpoint string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.EndpointURL = endpoint }
}

// WithS3PathStyle enables path-style addressing.
func WithS3PathStyle(pathStyle bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.ForcePathStyle = pathStyle }
}

// WithS3MaxKeys sets the listing page size.
func WithS3MaxKeys(maxKeys int32) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.MaxKeys = maxKeys }
}

// WithS3Recursive controls whether keys below nested prefixes are read.
func WithS3Recursive(recursive bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Recursive = recursive }
}

// WithS3SortOrder sets the object read order.
func WithS3SortOrder(order SortOrder) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.SortOrder = order }
}

// WithS3IncludeMetadata adds the object key and etag to each record.
func WithS3IncludeMetadata(include bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.IncludeMetadata = include }
}

// WithS3Client uses client instead of one built from the AWS default config.
func WithS3Client(client S3API) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Client = client }
}

// S3Object describes one listed object
type S3Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// S3Reader implements core.DataSource over the task files of a bucket prefix.
// Objects are listed on the first Read.
type S3Reader struct {
	client        S3API
	objects       []S3Object
	listed        bool
	currentIndex  int
	currentReader core.DataSource
	stats         S3ReaderStats
	opts          S3ReaderOptions
	mu            sync.RWMutex
}

// NewS3Reader creates a new S3 task reader.
func NewS3Reader(options ...ReaderOptionS3) (*S3Reader, error) {
	opts := S3ReaderOptions{
		MaxKeys:   1000,
		SortOrder: SortByName,
		Recursive: true,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}

	client := opts.Client
	if client == nil {
		cfg, err := LoadAWSConfig(context.Background(), opts.Region, opts.Profile, opts.Credentials)
		if err != nil {
			return nil, &S3ReaderError{Op: "create_aws_config", Err: err}
		}
		client = NewS3Client(cfg, opts.EndpointURL, opts.ForcePathStyle)
	}

	return &S3Reader{
		client: client,
		opts:   opts,
		stats:  S3ReaderStats{ProcessedFiles: make([]string, 0)},
	}, nil
}

// Read implements the core.DataSource interface. An object that cannot be opened
// is reported once and skipped on the next Read.
func (s *S3Reader) Read(ctx context.Context) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.stats.ReadDuration += time.Since(start)
		s.stats.LastReadTime = time.Now()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, &S3ReaderError{Op: "read", Err: ctx.Err()}
		default:
		}

		if !s.listed {
			if err := s.listObjects(ctx); err != nil {
				return nil, &S3ReaderError{Op: "list_objects", Err: err}
			}
			s.listed = true
		}

		if s.currentReader == nil {
			if s.currentIndex >= len(s.objects) {
				return nil, io.EOF
			}
			if err := s.openNextObject(ctx); err != nil {
				key := s.objects[s.currentIndex].Key
				s.stats.ObjectErrors++
				s.currentIndex++
				return nil, &S3ReaderError{Op: "open_object", Key: key, Err: err}
			}
		}

		obj := s.objects[s.currentIndex]
		record, err := s.currentReader.Read(ctx)
		if err == io.EOF {
			if err := s.closeCurrentReader(); err != nil {
				return nil, &S3ReaderError{Op: "close_object", Key: obj.Key, Err: err}
			}
			continue
		}
		if err != nil {
			return nil, &S3ReaderError{Op: "read_record", Key: obj.Key, Err: err}
		}

		if s.opts.IncludeMetadata {
			record["_s3_key"] = obj.Key
			record["_s3_etag"] = obj.ETag
		}
		s.stats.RecordsRead++
		return record, nil
	}
}

// Close closes the object being read.
func (s *S3Reader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrentReader()
}

// Stats returns S3 reader statistics.
func (s *S3Reader) Stats() S3ReaderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.ProcessedFiles = append([]string(nil), s.stats.ProcessedFiles...)
	return stats
}

// Objects returns the objects listed so far.
func (s *S3Reader) Objects() []S3Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]S3Object(nil), s.objects...)
}

// LoadAWSConfig loads the default AWS config with optional region, profile and static credentials.
func LoadAWSConfig(ctx context.Context, region, profile string, creds aws.Credentials) (aws.Config, error) {
	var configOpts []func(*config.LoadOptions) error
	if region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}
	if profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if creds.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		)
	}
	return cfg, nil
}

// NewS3Client builds an S3 client, optionally for an S3-compatible endpoint.
func NewS3Client(cfg aws.Config, endpoint string, pathStyle bool) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
}

// listObjects pages through the bucket listing
func (s *S3Reader) listObjects(ctx context.Context) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.opts.Bucket),
		MaxKeys: aws.Int32(s.opts.MaxKeys),
	}
	if s.opts.Prefix != "" {
		input.Prefix = aws.String(s.opts.Prefix)
	}

	var objects []S3Object
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !s.shouldIncludeObject(key) {
				continue
			}
			objects = append(objects, S3Object{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
			})
		}
	}

	sortObjects(objects, s.opts.SortOrder)
	s.objects = objects
	s.stats.ObjectsListed = int64(len(objects))
	return nil
}

// shouldIncludeObject applies the suffix and recursion filters. Directory markers are skipped.
func (s *S3Reader) shouldIncludeObject(key string) bool {
	if strings.HasSuffix(key, "/") {
		return false
	}
	if s.opts.Suffix != "" && !strings.HasSuffix(key, s.opts.Suffix) {
		return false
	}
	if !s.opts.Recursive && strings.Contains(strings.TrimPrefix(key, s.opts.Prefix), "/") {
		return false
	}
	return true
}

// sortObjects orders objects in place. Ties fall back to key order.
func sortObjects(objects []S3Object, order SortOrder) {
	var less func(a, b S3Object) bool
	switch order {
	case SortByName:
		less = func(a, b S3Object) bool { return a.Key < b.Key }
	case SortByLastModified:
		less = func(a, b S3Object) bool {
			if !a.LastModified.Equal(b.LastModified) {
				return a.LastModified.Before(b.LastModified)
			}
			return a.Key < b.Key
		}
	case SortBySize:
		less = func(a, b S3Object) bool {
			if a.Size != b.Size {
				return a.Size < b.Size
			}
			return a.Key < b.Key
		}
	default:
		return
	}
	sort.SliceStable(objects, func(i, j int) bool { return less(objects[i], objects[j]) })
}

// openNextObject fetches the current object and wraps it in the reader for its format
func (s *S3Reader) openNextObject(ctx context.Context) error {
	obj := s.objects[s.currentIndex]
	s.stats.CurrentObject = obj.Key

	format := s.opts.Format
	if format == "" {
		var err error
		if format, err = FormatForPath(obj.Key); err != nil {
			return err
		}
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return err
	}

	reader, err := NewFormatReader(format, result.Body)
	if err != nil {
		return err
	}

	s.currentReader = reader
	s.stats.ObjectsRead++
	s.stats.ProcessedFiles = append(s.stats.ProcessedFiles, obj.Key)
	return nil
}

// closeCurrentReader closes the current object reader and advances to the next object
func (s *S3Reader) closeCurrentReader() error {
	if s.currentReader != nil {
		err := s.currentReader.Close()
		s.currentReader = nil
		s.currentIndex++
		return err
	}
	return nil
}
