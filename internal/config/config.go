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

// Package config loads goplan CLI configuration from a TOML file and GOPLAN_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aaronlmathis/goplan/core"
	"github.com/aaronlmathis/goplan/dag"
	"github.com/aaronlmathis/goplan/readers"
	"github.com/aaronlmathis/goplan/types"
)

// Source kinds beyond the file formats in readers.
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
	SourceMongo    = "mongo"
	SourceS3       = "s3"
)

// Output kinds.
const (
	OutputNone     = ""
	OutputFile     = "file"
	OutputS3       = "s3"
	OutputPostgres = "postgres"
	OutputNATS     = "nats"
)

// Config is the full CLI configuration.
type Config struct {
	Source   SourceConfig   `toml:"source"`
	Output   OutputConfig   `toml:"output"`
	Log      LogConfig      `toml:"log"`
	Analysis AnalysisConfig `toml:"analysis"`
}

// SourceConfig selects where tasks are read from and how raw records are normalised.
type SourceConfig struct {
	// Kind is csv, jsonl, plan, parquet, http, postgres, mongo or s3.
	// Empty means infer from Path.
	Kind string `toml:"kind"`
	Path string `toml:"path"`

	// Task service (http) and MongoDB (mongo).
	URL   string `toml:"url"`
	Token string `toml:"token"`

	// PostgreSQL.
	DSN   string `toml:"dsn"`
	Query string `toml:"query"`
	Table string `toml:"table"`

	// MongoDB.
	Database   string `toml:"database"`
	Collection string `toml:"collection"`

	// S3.
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`

	Timeout Duration `toml:"timeout"`

	// Rename maps source field names to task fields, e.g. key = "id".
	Rename map[string]string `toml:"rename"`
	// Where keeps records whose field equals the value.
	Where map[string]string `toml:"where"`
	// Match keeps records whose field matches the regular expression.
	Match map[string]string `toml:"match"`
}

// OutputConfig selects where schedule rows are written.
type OutputConfig struct {
	// Kind is file, s3, postgres or nats. Empty disables output.
	Kind string `toml:"kind"`
	// Format is csv, json or parquet for file and s3 outputs. Empty means infer from Path or Key.
	Format string `toml:"format"`

	Path string `toml:"path"`

	Bucket    string `toml:"bucket"`
	Key       string `toml:"key"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`

	DSN         string `toml:"dsn"`
	Table       string `toml:"table"`
	CreateTable bool   `toml:"create_table"`
	Upsert      bool   `toml:"upsert"`

	URL          string `toml:"url"`
	Subject      string `toml:"subject"`
	SubjectField string `toml:"subject_field"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AnalysisConfig configures loading and graph building.
type AnalysisConfig struct {
	// Duplicates is reject or last-write-wins.
	Duplicates string `toml:"duplicates"`
	// ErrorStrategy is fail-fast, skip or collect.
	ErrorStrategy string  `toml:"error_strategy"`
	MaxHours      float64 `toml:"max_hours"`
}

// Duration is a time.Duration that decodes from strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Analysis: AnalysisConfig{Duplicates: "reject", ErrorStrategy: "fail-fast"},
		Source:   SourceConfig{Timeout: Duration{30 * time.Second}},
	}
}

// Load reads path (if not empty) over the defaults, then applies environment overrides.
// It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Source.Kind = envOrDefault("GOPLAN_SOURCE_KIND", c.Source.Kind)
	c.Source.Path = envOrDefault("GOPLAN_SOURCE_PATH", c.Source.Path)
	c.Source.URL = envOrDefault("GOPLAN_SOURCE_URL", c.Source.URL)
	c.Source.Token = envOrDefault("GOPLAN_SOURCE_TOKEN", c.Source.Token)
	c.Source.DSN = envOrDefault("GOPLAN_SOURCE_DSN", c.Source.DSN)
	c.Source.Bucket = envOrDefault("GOPLAN_SOURCE_BUCKET", c.Source.Bucket)
	c.Source.Region = envOrDefault("GOPLAN_SOURCE_REGION", c.Source.Region)

	c.Output.Kind = envOrDefault("GOPLAN_OUTPUT_KIND", c.Output.Kind)
	c.Output.Format = envOrDefault("GOPLAN_OUTPUT_FORMAT", c.Output.Format)
	c.Output.Path = envOrDefault("GOPLAN_OUTPUT_PATH", c.Output.Path)
	c.Output.DSN = envOrDefault("GOPLAN_OUTPUT_DSN", c.Output.DSN)
	c.Output.URL = envOrDefault("GOPLAN_NATS_URL", c.Output.URL)

	c.Log.Level = envOrDefault("GOPLAN_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("GOPLAN_LOG_FORMAT", c.Log.Format)

	c.Analysis.Duplicates = envOrDefault("GOPLAN_DUPLICATES", c.Analysis.Duplicates)
	c.Analysis.ErrorStrategy = envOrDefault("GOPLAN_ERROR_STRATEGY", c.Analysis.ErrorStrategy)

	if v := os.Getenv("GOPLAN_MAX_HOURS"); v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid GOPLAN_MAX_HOURS %q: %w", v, err)
		}
		c.Analysis.MaxHours = hours
	}
	return nil
}

// SourceKind returns the configured source kind, inferring file formats from Path.
func (c *Config) SourceKind() string {
	if c.Source.Kind != "" {
		return strings.ToLower(c.Source.Kind)
	}
	if format, err := readers.FormatForPath(c.Source.Path); err == nil {
		return string(format)
	}
	return ""
}

// OutputFormat returns the configured output format, inferring it from the path or key.
func (c *Config) OutputFormat() (types.OutputFormat, error) {
	switch strings.ToLower(c.Output.Kind) {
	case OutputPostgres:
		return types.FormatPostgres, nil
	case OutputNATS:
		return types.FormatNATS, nil
	}
	if c.Output.Format != "" {
		return types.ParseOutputFormat(c.Output.Format)
	}
	if c.Output.Kind == OutputS3 {
		return types.FormatForPath(c.Output.Key), nil
	}
	return types.FormatForPath(c.Output.Path), nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	var errs []error

	switch kind := c.SourceKind(); kind {
	case "":
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source: path or kind is required"))
		} else {
			errs = append(errs, fmt.Errorf("source: cannot infer kind of %s, set kind", c.Source.Path))
		}
	case SourceHTTP:
		if c.Source.URL == "" {
			errs = append(errs, errors.New("source: url is required for http"))
		}
	case SourcePostgres:
		if c.Source.DSN == "" {
			errs = append(errs, errors.New("source: dsn is required for postgres"))
		}
		if c.Source.Query == "" && c.Source.Table == "" {
			errs = append(errs, errors.New("source: query or table is required for postgres"))
		}
	case SourceMongo:
		if c.Source.URL == "" || c.Source.Database == "" || c.Source.Collection == "" {
			errs = append(errs, errors.New("source: url, database and collection are required for mongo"))
		}
	case SourceS3:
		if c.Source.Bucket == "" {
			errs = append(errs, errors.New("source: bucket is required for s3"))
		}
	default:
		if _, err := readers.ParseFormat(kind); err != nil {
			errs = append(errs, fmt.Errorf("source: unknown kind %q", kind))
		} else if c.Source.Path == "" {
			errs = append(errs, fmt.Errorf("source: path is required for %s", kind))
		}
	}

	switch strings.ToLower(c.Output.Kind) {
	case OutputNone:
	case OutputFile:
		if c.Output.Path == "" {
			errs = append(errs, errors.New("output: path is required for file"))
		}
	case OutputS3:
		if c.Output.Bucket == "" || c.Output.Key == "" {
			errs = append(errs, errors.New("output: bucket and key are required for s3"))
		}
	case OutputPostgres:
		if c.Output.DSN == "" {
			errs = append(errs, errors.New("output: dsn is required for postgres"))
		}
	case OutputNATS:
		if c.Output.URL == "" {
			errs = append(errs, errors.New("output: url is required for nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("output: unknown kind %q", c.Output.Kind))
	}
	if c.Output.Kind != OutputNone {
		if _, err := c.OutputFormat(); err != nil {
			errs = append(errs, fmt.Errorf("output: %w", err))
		}
	}

	if _, err := dag.ParseDuplicatePolicy(c.Analysis.Duplicates); err != nil {
		errs = append(errs, fmt.Errorf("analysis: %w", err))
	}
	if _, err := core.ParseErrorStrategy(c.Analysis.ErrorStrategy); err != nil {
		errs = append(errs, fmt.Errorf("analysis: %w", err))
	}
	if c.Analysis.MaxHours < 0 {
		errs = append(errs, errors.New("analysis: max_hours must not be negative"))
	}

	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
