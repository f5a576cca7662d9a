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

package dispatch

import (
	"sync"
	"time"
)

// RateBatchSink receives coalesced Scalar-lane flushes (in cmd/secbeat-node,
// a JSONL rate-batch log). Implementations must not block for long —
// backpressure here stalls every future flush.
type RateBatchSink interface {
	OnRateBatches([]RateBatch)
}

// ScalarServiceOptions configures the background worker's cadence.
type ScalarServiceOptions struct {
	Buffer        int           // ingress channel capacity; default 4096
	FlushInterval time.Duration // periodic flush tick; default 2ms
}

// ScalarService is a single-worker goroutine that ingests rate-increment
// events, coalesces them in a ScalarAccumulator, and periodically flushes
// the result to a sink. The periodic tick bounds tail latency independent
// of how bursty the arrival rate is.
type ScalarService struct {
	acc  *ScalarAccumulator
	sink RateBatchSink

	in         chan Event
	flushNowCh chan struct{}
	stopCh     chan struct{}
	doneCh     chan struct{}
	opts       ScalarServiceOptions
	once       sync.Once
}

// NewScalarService wires acc to sink. acc must not be touched by any other
// goroutine once the service starts.
func NewScalarService(acc *ScalarAccumulator, sink RateBatchSink, opts ScalarServiceOptions) *ScalarService {
	if opts.Buffer <= 0 {
		opts.Buffer = 4096
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Millisecond
	}
	return &ScalarService{
		acc: acc, sink: sink, opts: opts,
		in: make(chan Event, opts.Buffer), flushNowCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

// Start launches the background worker. Safe to call more than once; only
// the first call has effect.
func (s *ScalarService) Start() {
	s.once.Do(func() { go s.run() })
}

// Stop asks the worker to drain and perform a final flush, then waits for it
// to exit.
func (s *ScalarService) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// Ingest enqueues ev, blocking if the buffer is full.
func (s *ScalarService) Ingest(ev Event) { s.in <- ev }

// TryIngest enqueues ev without blocking, returning false if the buffer is
// full.
func (s *ScalarService) TryIngest(ev Event) bool {
	select {
	case s.in <- ev:
		return true
	default:
		return false
	}
}

// Flush requests an out-of-band flush on the service goroutine. Non-blocking
// and coalesced: a pending request is not duplicated.
func (s *ScalarService) Flush() {
	select {
	case s.flushNowCh <- struct{}{}:
	default:
	}
}

func (s *ScalarService) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	flush := func(all bool) {
		var batches []RateBatch
		if all {
			batches = s.acc.FlushAll()
		} else {
			batches = s.acc.FlushDue()
		}
		if len(batches) > 0 && s.sink != nil {
			s.sink.OnRateBatches(batches)
		}
	}

	for {
		select {
		case ev := <-s.in:
			s.acc.Ingest(ev)
		case <-ticker.C:
			flush(false)
		case <-s.flushNowCh:
			flush(true)
		case <-s.stopCh:
			for {
				select {
				case ev := <-s.in:
					s.acc.Ingest(ev)
				default:
					flush(true)
					return
				}
			}
		}
	}
}
