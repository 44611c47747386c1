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

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aaronlmathis/goplan"
	"github.com/aaronlmathis/goplan/core"
	"github.com/aaronlmathis/goplan/dag"
	"github.com/aaronlmathis/goplan/filter"
	"github.com/aaronlmathis/goplan/internal/config"
	"github.com/aaronlmathis/goplan/readers"
	"github.com/aaronlmathis/goplan/transform"
	"github.com/aaronlmathis/goplan/types"
	"github.com/aaronlmathis/goplan/validators"
)

// openSource builds the DataSource described by cfg.Source.
func openSource(ctx context.Context, cfg *config.Config) (core.DataSource, error) {
	src := cfg.Source
	timeout := src.Timeout.Duration

	switch kind := cfg.SourceKind(); kind {
	case config.SourceHTTP:
		opts := []readers.ReaderOptionHTTP{readers.WithHTTPTimeout(timeout)}
		if src.Token != "" {
			opts = append(opts, readers.WithHTTPBearerToken(src.Token))
		}
		return readers.NewTaskServiceReader(src.URL, opts...)
	case config.SourcePostgres:
		opts := []readers.PostgresReaderOption{
			readers.WithPostgresDSN(src.DSN),
			readers.WithPostgresQueryTimeout(timeout),
		}
		if src.Query != "" {
			opts = append(opts, readers.WithPostgresQuery(src.Query))
		} else {
			opts = append(opts, readers.WithPostgresTable(src.Table))
		}
		return readers.NewPostgresReader(opts...)
	case config.SourceMongo:
		return readers.NewMongoReader(
			readers.WithMongoURI(src.URL),
			readers.WithMongoDB(src.Database),
			readers.WithMongoCollection(src.Collection),
			readers.WithMongoTimeout(timeout),
		)
	case config.SourceS3:
		return readers.NewS3Reader(
			readers.WithS3Bucket(src.Bucket),
			readers.WithS3Prefix(src.Prefix),
			readers.WithS3Region(src.Region),
			readers.WithS3Endpoint(src.Endpoint),
			readers.WithS3PathStyle(src.PathStyle),
		)
	default:
		format, err := readers.ParseFormat(kind)
		if err != nil {
			return nil, err
		}
		if format == readers.FormatParquet {
			return readers.NewParquetReader(src.Path)
		}
		file, err := os.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("opening source: %w", err)
		}
		return readers.NewFormatReader(format, file)
	}
}

// openSink builds the DataSink described by cfg.Output, or nil when output is disabled.
func openSink(ctx context.Context, cfg *config.Config) (core.DataSink, error) {
	out := cfg.Output
	kind := strings.ToLower(out.Kind)
	if kind == config.OutputNone {
		return nil, nil
	}
	format, err := cfg.OutputFormat()
	if err != nil {
		return nil, err
	}

	var loc types.OutputLocation
	switch kind {
	case config.OutputFile:
		loc = types.FileLocation{Path: out.Path, Fields: goplan.RecordFields}
	case config.OutputS3:
		loc = types.S3Location{
			Bucket:    out.Bucket,
			Key:       out.Key,
			Region:    out.Region,
			Endpoint:  out.Endpoint,
			PathStyle: out.PathStyle,
			Fields:    goplan.RecordFields,
		}
	case config.OutputPostgres:
		loc = types.PostgresLocation{
			DSN:         out.DSN,
			Table:       out.Table,
			Fields:      goplan.RecordFields,
			CreateTable: out.CreateTable,
			Upsert:      out.Upsert,
		}
	case config.OutputNATS:
		loc = types.NATSLocation{URL: out.URL, Subject: out.Subject, SubjectField: out.SubjectField}
	default:
		return nil, fmt.Errorf("unknown output kind %q", out.Kind)
	}
	return loc.NewSink(ctx, format)
}

// newPlanner wires source, normalisation, validation and optionally the sink.
func newPlanner(ctx context.Context, cfg *config.Config, withSink bool) (*goplan.Planner, error) {
	strategy, err := core.ParseErrorStrategy(cfg.Analysis.ErrorStrategy)
	if err != nil {
		return nil, err
	}
	duplicates, err := dag.ParseDuplicatePolicy(cfg.Analysis.Duplicates)
	if err != nil {
		return nil, err
	}

	var filters []core.Filter
	for _, field := range sortedKeys(cfg.Source.Where) {
		filters = append(filters, filter.Equals(field, cfg.Source.Where[field]))
	}
	for _, field := range sortedKeys(cfg.Source.Match) {
		f, err := filter.MatchesRegex(field, cfg.Source.Match[field])
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	source, err := openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pb := goplan.NewPlanner().
		From(source).
		WithErrorStrategy(strategy).
		WithBuildOptions(dag.WithDuplicatePolicy(duplicates))
	if len(cfg.Source.Rename) > 0 {
		pb.Transform(transform.Rename(cfg.Source.Rename))
	}
	pb.Transform(transform.TrimSpace())
	for _, f := range filters {
		pb.Filter(f)
	}
	if cfg.Analysis.MaxHours > 0 {
		pb.WithValidator(validators.NewTaskValidator(validators.WithMaxHours(cfg.Analysis.MaxHours)))
	}

	if withSink {
		sink, err := openSink(ctx, cfg)
		if err != nil {
			source.Close()
			return nil, err
		}
		if sink != nil {
			pb.To(sink)
		}
	}
	return pb.Build()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
