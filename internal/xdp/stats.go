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

package xdp

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
	_ "unsafe"

	"secbeat/internal/telemetry"
)

//go:linkname runtime_procPin runtime.procPin
func runtime_procPin() int

//go:linkname runtime_procUnpin runtime.procUnpin
func runtime_procUnpin()

// padSize over-pads each counter pair to a full cache line to avoid false
// sharing between CPUs hammering adjacent slots.
const padSize = 128 - 16 // two atomic.Int64 = 16 bytes; remainder to reach >=128

type cpuSlot struct {
	passed  atomic.Int64
	dropped atomic.Int64
	_       [padSize]byte
}

// Stats is the userspace mirror of the per-CPU counter pair the data model
// describes: two 64-bit counters per CPU core, incremented without atomics
// by the real XDP program (each core owns its slot) and aggregated here by
// summation. The software fast path uses real atomics per slot since it has
// no kernel per-CPU array to rely on, but keeps the one-slot-per-CPU layout
// so the aggregation logic is identical to the eBPF-backed path.
type Stats struct {
	slots []cpuSlot
}

// NewStats allocates one slot per reported GOMAXPROCS.
func NewStats() *Stats {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return &Stats{slots: make([]cpuSlot, n)}
}

func (s *Stats) slotForCurrentProc() *cpuSlot {
	pid := runtime_procPin()
	runtime_procUnpin()
	return &s.slots[pid%len(s.slots)]
}

// IncPassed records one passed packet on the calling goroutine's pinned CPU
// slot.
func (s *Stats) IncPassed() {
	s.slotForCurrentProc().passed.Add(1)
}

// IncDropped records one dropped packet.
func (s *Stats) IncDropped() {
	s.slotForCurrentProc().dropped.Add(1)
}

// Totals sums every slot. Read-side aggregation, per the data model: never
// called from the packet path.
func (s *Stats) Totals() (passed, dropped uint64) {
	for i := range s.slots {
		passed += uint64(s.slots[i].passed.Load())
		dropped += uint64(s.slots[i].dropped.Load())
	}
	return passed, dropped
}

// RunReporter publishes Totals to the Prometheus exposition surface every
// interval until ctx is canceled. It never touches the packet path.
func (s *Stats) RunReporter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			passed, dropped := s.Totals()
			telemetry.SetPacketTotals(passed, dropped)
		}
	}
}
