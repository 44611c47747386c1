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
	"errors"
	"testing"
	"time"

	"github.com/aaronlmathis/goplan/core"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv.ClientURL()
}

func subscribe(t *testing.T, url, subject string) *nats.Subscription {
	t.Helper()
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync(subject)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	return sub
}

func TestNATSWriter_Publish(t *testing.T) {
	url := startTestNATS(t)
	sub := subscribe(t, url, "goplan.schedule.>")

	w, err := NewNATSWriter(WithNATSURL(url), WithNATSSubjectField("run_id"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, core.Record{"run_id": "run-1", "task_id": "A", "slack": 0.0}))
	require.NoError(t, w.Write(ctx, core.Record{"run_id": "run.2", "task_id": "B", "slack": 9.0}))
	require.NoError(t, w.Close())

	msg, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "goplan.schedule.run-1", msg.Subject)
	assert.Equal(t, "A", msg.Header.Get(HeaderTaskID))

	var row map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &row))
	assert.Equal(t, "A", row["task_id"])

	msg, err = sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "goplan.schedule.run_2", msg.Subject)

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.MessagesPublished)
	assert.Equal(t, int64(1), stats.FlushCount)

	err = w.Write(ctx, core.Record{"task_id": "C"})
	var natsErr *NATSWriterError
	require.True(t, errors.As(err, &natsErr))
	assert.Equal(t, "write", natsErr.Op)
}

// TestNATSWriter_SharedConn tests that a supplied connection stays open
func TestNATSWriter_SharedConn(t *testing.T) {
	url := startTestNATS(t)
	sub := subscribe(t, url, "plans")

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	w, err := NewNATSWriter(WithNATSConn(nc), WithNATSSubject("plans"), WithNATSSubjectField("run_id"))
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), core.Record{"task_id": "A"}))
	require.NoError(t, w.Close())
	assert.False(t, nc.IsClosed())

	msg, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "plans", msg.Subject)
}

func TestNATSWriter_Errors(t *testing.T) {
	_, err := NewNATSWriter()
	assert.Error(t, err)

	_, err = NewNATSWriter(WithNATSURL("nats://127.0.0.1:1"), WithNATSSubject(""))
	assert.Error(t, err)

	url := startTestNATS(t)
	w, err := NewNATSWriter(WithNATSURL(url))
	require.NoError(t, err)
	defer w.Close()

	err = w.Write(context.Background(), core.Record{"bad": make(chan int)})
	var natsErr *NATSWriterError
	require.True(t, errors.As(err, &natsErr))
	assert.Equal(t, "marshal", natsErr.Op)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Write(ctx, core.Record{"task_id": "A"}), context.Canceled)
}
