// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sinks holds the durable, append-only destinations the dispatch
// lanes write to: a JSONL audit log for Vector-lane events, a JSONL log for
// flushed Scalar-lane rate batches, and (optionally) a Postgres-backed
// audit sink for deployments that want queryable history instead of a flat
// file.
package sinks

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"secbeat/internal/dispatch"
)

// AuditLogSink appends Vector-lane events to a JSONL log in arrival order,
// independent of the Scalar lane's coalesced flush cadence. It satisfies
// dispatch.AuditSink.
type AuditLogSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	lastFlush time.Time
}

// NewAuditLogSink opens (or creates) the file at path in append mode with a
// buffered writer. Call Close() when done.
func NewAuditLogSink(path string) (*AuditLogSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &AuditLogSink{f: f, w: bufio.NewWriterSize(f, 1<<20), path: path, lastFlush: time.Now()}, nil
}

// OnAudit appends ev. Every call is written immediately to the in-process
// buffer (never batched across events — the Vector lane's whole point is
// order-sensitive, un-coalesced persistence) but the underlying file sync
// is still periodic, bounding data loss on crash without an fsync per call.
func (s *AuditLogSink) OnAudit(ev dispatch.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	if err := enc.Encode(&ev); err != nil {
		_ = s.w.Flush()
		_ = enc.Encode(&ev)
	}
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		_ = s.w.Flush()
		s.lastFlush = time.Now()
	}
}

// Flush forces buffered data to be written to disk.
func (s *AuditLogSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *AuditLogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// ReadAuditLog reads the entire audit log for replay or operator
// inspection, reconstructing exactly the order events were appended in.
func ReadAuditLog(path string) ([]dispatch.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []dispatch.Event
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<26)
	for scanner.Scan() {
		var ev dispatch.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out, scanner.Err()
}
