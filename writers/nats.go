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
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/goplan/core"
	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject is the subject schedule rows are published to when none is set.
const DefaultNATSSubject = "goplan.schedule"

// HeaderTaskID carries the row's task_id on every published message.
const HeaderTaskID = "Goplan-Task-Id"

// NATSWriterError wraps publish failures.
type NATSWriterError struct {
	Op      string
	Subject string
	Err     error
}

func (e *NATSWriterError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("nats writer %s (%s): %v", e.Op, e.Subject, e.Err)
	}
	return fmt.Sprintf("nats writer %s: %v", e.Op, e.Err)
}

func (e *NATSWriterError) Unwrap() error {
	return e.Err
}

// NATSWriterOptions configures the NATS writer.
type NATSWriterOptions struct {
	URL          string
	Conn         *nats.Conn // Existing connection, left open on Close
	Subject      string
	SubjectField string // Record field appended to Subject as a final token
	Name         string
	FlushTimeout time.Duration
}

// NATSWriterOption is a functional option.
type NATSWriterOption func(*NATSWriterOptions)

func WithNATSURL(url string) NATSWriterOption {
	return func(o *NATSWriterOptions) {
		o.URL = url
	}
}

// WithNATSConn publishes on an existing connection. The writer does not close it.
func WithNATSConn(nc *nats.Conn) NATSWriterOption {
	return func(o *NATSWriterOptions) {
		o.Conn = nc
	}
}

func WithNATSSubject(subject string) NATSWriterOption {
	return func(o *NATSWriterOptions) {
		o.Subject = subject
	}
}

// WithNATSSubjectField routes each row to Subject.<value of field>, e.g. goplan.schedule.<run_id>.
func WithNATSSubjectField(field string) NATSWriterOption {
	return func(o *NATSWriterOptions) {
		o.SubjectField = field
	}
}

func WithNATSName(name string) NATSWriterOption {
	return func(o *NATSWriterOptions) {
		o.Name = name
	}
}

func WithNATSFlushTimeout(d time.Duration) NATSWriterOption {
	return func(o *NATSWriterOptions) {
		o.FlushTimeout = d
	}
}

// NATSWriterStats tracks published messages.
type NATSWriterStats struct {
	MessagesPublished int64
	BytesPublished    int64
	FlushCount        int64
	LastPublishTime   time.Time
}

// NATSWriter publishes one JSON message per record.
type NATSWriter struct {
	mu       sync.Mutex
	conn     *nats.Conn
	ownsConn bool
	opts     NATSWriterOptions
	stats    NATSWriterStats
	closed   bool
}

// NewNATSWriter connects to the server unless a connection was supplied.
func NewNATSWriter(opts ...NATSWriterOption) (*NATSWriter, error) {
	o := NATSWriterOptions{
		Subject:      DefaultNATSSubject,
		Name:         "goplan",
		FlushTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Subject == "" {
		return nil, &NATSWriterError{Op: "validate", Err: fmt.Errorf("subject is required")}
	}

	w := &NATSWriter{conn: o.Conn, opts: o}
	if w.conn == nil {
		if o.URL == "" {
			return nil, &NATSWriterError{Op: "validate", Err: fmt.Errorf("url or connection is required")}
		}
		nc, err := nats.Connect(o.URL, nats.Name(o.Name), nats.MaxReconnects(-1), nats.ReconnectWait(time.Second))
		if err != nil {
			return nil, &NATSWriterError{Op: "connect", Err: fmt.Errorf("connecting to NATS at %s: %w", o.URL, err)}
		}
		w.conn = nc
		w.ownsConn = true
	}
	return w, nil
}

// Write publishes record as JSON.
func (w *NATSWriter) Write(ctx context.Context, record core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &NATSWriterError{Op: "write", Err: fmt.Errorf("writer is closed")}
	}

	subject := w.subjectFor(record)
	data, err := json.Marshal(record)
	if err != nil {
		return &NATSWriterError{Op: "marshal", Subject: subject, Err: err}
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	if id, ok := record["task_id"].(string); ok {
		msg.Header.Set(HeaderTaskID, id)
	}
	if err := w.conn.PublishMsg(msg); err != nil {
		return &NATSWriterError{Op: "publish", Subject: subject, Err: err}
	}

	w.stats.MessagesPublished++
	w.stats.BytesPublished += int64(len(data))
	w.stats.LastPublishTime = time.Now()
	return nil
}

// Flush waits until the server has processed every published message.
func (w *NATSWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.conn.FlushTimeout(w.opts.FlushTimeout); err != nil {
		return &NATSWriterError{Op: "flush", Err: err}
	}
	w.stats.FlushCount++
	return nil
}

// Close flushes and closes the connection if the writer opened it.
func (w *NATSWriter) Close() error {
	err := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.ownsConn {
		w.conn.Close()
	}
	return err
}

// Stats returns a snapshot of writer statistics.
func (w *NATSWriter) Stats() NATSWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *NATSWriter) subjectFor(record core.Record) string {
	if w.opts.SubjectField == "" {
		return w.opts.Subject
	}
	value, ok := record[w.opts.SubjectField]
	if !ok || value == nil {
		return w.opts.Subject
	}
	token := subjectToken(fmt.Sprint(value))
	if token == "" {
		return w.opts.Subject
	}
	return w.opts.Subject + "." + token
}

// subjectToken replaces characters that are not valid inside a subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
