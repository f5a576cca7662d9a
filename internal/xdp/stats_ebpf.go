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

//go:build linux

package xdp

import (
	"fmt"
	"runtime"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
)

// EBPFStats mirrors a real kernel PERCPU_ARRAY map of two counters
// (passed, dropped) at a single index, which the XDP program increments
// without synchronization — each CPU core owns its own copy of the array
// element by construction of PERCPU_ARRAY, exactly matching the data
// model's "incremented without atomics, each CPU owns its slot" language.
type EBPFStats struct {
	m *ebpf.Map
}

const statsKey uint32 = 0

// statsRecord is the per-CPU value layout: two uint64 counters.
type statsRecord struct {
	Passed  uint64
	Dropped uint64
}

// NewEBPFStats creates a single-element PERCPU_ARRAY map for the passed and
// dropped counters.
func NewEBPFStats() (*EBPFStats, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("xdp: remove memlock rlimit: %w", err)
	}
	spec := &ebpf.MapSpec{
		Name:       "secbeat_stats",
		Type:       ebpf.PerCPUArray,
		KeySize:    4,
		ValueSize:  16,
		MaxEntries: 1,
	}
	m, err := ebpf.NewMapWithOptions(spec, ebpf.MapOptions{})
	if err != nil {
		return nil, fmt.Errorf("xdp: create stats map: %w", err)
	}
	init := make([]statsRecord, runtime.NumCPU())
	if err := m.Put(statsKey, init); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("xdp: init stats map: %w", err)
	}
	return &EBPFStats{m: m}, nil
}

// Totals sums every per-CPU copy of the array element, the userspace
// aggregation step the data model assigns to the control path.
func (s *EBPFStats) Totals() (passed, dropped uint64, err error) {
	var perCPU []statsRecord
	if err := s.m.Lookup(statsKey, &perCPU); err != nil {
		return 0, 0, fmt.Errorf("xdp: read stats map: %w", err)
	}
	for _, r := range perCPU {
		passed += r.Passed
		dropped += r.Dropped
	}
	return passed, dropped, nil
}

func (s *EBPFStats) Close() error {
	return s.m.Close()
}
