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

package sinks

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"secbeat/internal/dispatch"
)

// RateBatchFileSink is a buffered JSONL sink for coalesced Scalar-lane rate
// batches. It is safe for concurrent use and optimized for append-only
// workloads; it satisfies dispatch.RateBatchSink.
type RateBatchFileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	lastFlush time.Time
}

// NewRateBatchFileSink opens (or creates) the file at path in append mode
// with a buffered writer. Call Close() when done.
func NewRateBatchFileSink(path string) (*RateBatchFileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &RateBatchFileSink{f: f, w: bufio.NewWriterSize(f, 1<<20), path: path, lastFlush: time.Now()}, nil
}

// OnRateBatches writes b as JSON lines.
func (s *RateBatchFileSink) OnRateBatches(b []dispatch.RateBatch) {
	if len(b) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	for _, rb := range b {
		if err := enc.Encode(&rb); err != nil {
			_ = s.w.Flush()
			_ = enc.Encode(&rb)
		}
	}
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		_ = s.w.Flush()
		s.lastFlush = time.Now()
	}
}

// Flush forces buffered data to be written to disk.
func (s *RateBatchFileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *RateBatchFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// ReadAllRateBatches reads the entire rate-batch log file as a slice.
// Intended for operator inspection and replay, not a hot path.
func ReadAllRateBatches(path string) ([]dispatch.RateBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []dispatch.RateBatch
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<26)
	for scanner.Scan() {
		var rb dispatch.RateBatch
		if err := json.Unmarshal(scanner.Bytes(), &rb); err == nil {
			out = append(out, rb)
		}
	}
	return out, scanner.Err()
}
